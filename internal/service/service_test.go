package service_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/solcials-sync/internal/cache"
	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/internal/rpc/rpctest"
	"github.com/d60-Lab/solcials-sync/internal/service"
)

var (
	programID = solana.MustPublicKeyFromBase58("2dMkuyNN2mUiSWyW1UGTRE7CkfULpudVdMCbASCChLpv")
	treasury  = solana.SysVarRentPubkey
	cid       = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
)

type env struct {
	t       *testing.T
	clock   clockwork.FakeClock
	ledger  *rpctest.Ledger
	client  *rpc.Client
	deriver *pda.Deriver
	repos   service.RelationshipDeps
}

func newEnv(t *testing.T) *env {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ledger := rpctest.NewLedger(programID, clock)
	policy := rpc.DefaultPolicy()
	policy.Budget = 1000
	policy.Spacing = 0
	client := rpc.NewClient(ledger, cache.NewMemory(clock), policy, rpc.WithClock(clock))
	t.Cleanup(client.Close)
	d := pda.New(programID)
	return &env{
		t: t, clock: clock, ledger: ledger, client: client, deriver: d,
		repos: service.RelationshipDeps{
			Follows:  repository.NewFollowRepository(client, d),
			Fans:     repository.NewFanRepository(client, d),
			Likes:    repository.NewLikeRepository(client, d),
			Profiles: repository.NewProfileRepository(client, d),
			Posts:    repository.NewPostRepository(client, d),
		},
	}
}

type user struct {
	addr     solana.PublicKey
	posts    service.PostService
	rels     service.RelationshipService
	profiles service.ProfileService
}

type fakeUploader struct{ got string }

func (u *fakeUploader) Upload(_ context.Context, name string, r io.Reader) (string, error) {
	b, _ := io.ReadAll(r)
	u.got = name + ":" + string(b)
	return cid, nil
}

func (e *env) user(signer service.Signer) *user {
	pub := service.NewPublisher(e.client, signer)
	u := &user{
		posts:    service.NewPostService(pub, e.repos.Profiles, &fakeUploader{}, e.deriver, treasury, e.clock),
		rels:     service.NewRelationshipService(pub, e.repos, e.deriver),
		profiles: service.NewProfileService(pub, e.repos.Profiles, e.deriver),
	}
	if signer != nil {
		u.addr, _ = signer.CurrentAddress()
	}
	return u
}

func (e *env) newUser() *user {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(e.t, err)
	return e.user(service.NewKeypairSigner(key))
}

func (e *env) profile(owner solana.PublicKey) model.UserProfile {
	addr, _, err := e.deriver.UserProfile(owner)
	require.NoError(e.t, err)
	data, ok := e.ledger.Account(addr)
	require.True(e.t, ok, "profile %s missing", owner)
	p, err := codec.DecodeUserProfile(data)
	require.NoError(e.t, err)
	return p
}

func (e *env) post(addr solana.PublicKey) model.Post {
	data, ok := e.ledger.Account(addr)
	require.True(e.t, ok, "post %s missing", addr)
	p, err := codec.DecodePost(data)
	require.NoError(e.t, err)
	return p
}

func TestCreateTextPostInitializesProfile(t *testing.T) {
	e := newEnv(t)
	alice := e.newUser()
	ctx := context.Background()

	r, err := alice.posts.CreateTextPost(ctx, "hello", nil)
	require.NoError(t, err)
	want, _, err := e.deriver.Post(alice.addr, e.clock.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, want, r.Address)

	p := e.post(r.Address)
	assert.Equal(t, "hello", p.Content)
	assert.Equal(t, alice.addr, p.Author)
	assert.EqualValues(t, 1, e.profile(alice.addr).PostCount)
	require.Len(t, e.ledger.Transactions(), 1)

	e.clock.Advance(time.Second)
	reply, err := alice.posts.CreateTextPost(ctx, "again", &r.Address)
	require.NoError(t, err)
	assert.Equal(t, &r.Address, e.post(reply.Address).ReplyTo)
	assert.EqualValues(t, 2, e.profile(alice.addr).PostCount)
}

func TestCreateTextPostValidatesBeforeNetwork(t *testing.T) {
	e := newEnv(t)
	alice := e.newUser()

	_, err := alice.posts.CreateTextPost(context.Background(), strings.Repeat("a", 281), nil)
	assert.ErrorIs(t, err, codec.ErrContentTooLong)
	_, err = alice.posts.CreateTextPost(context.Background(), "", nil)
	assert.ErrorIs(t, err, codec.ErrContentEmpty)
	assert.Zero(t, e.ledger.TotalCalls())
}

func TestWritesNeedWallet(t *testing.T) {
	e := newEnv(t)
	anon := e.user(nil)

	_, err := anon.posts.CreateTextPost(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, service.ErrNoWallet)
	_, err = anon.rels.Follow(context.Background(), treasury)
	assert.ErrorIs(t, err, service.ErrNoWallet)
}

type lazySigner struct{ addr solana.PublicKey }

func (s lazySigner) CurrentAddress() (solana.PublicKey, bool) { return s.addr, true }

func (s lazySigner) Sign(context.Context, *solana.Transaction) error { return nil }

func TestUnsignedTransactionIsRejected(t *testing.T) {
	e := newEnv(t)
	u := e.user(lazySigner{addr: treasury})

	_, err := u.profiles.Initialize(context.Background())
	assert.ErrorIs(t, err, service.ErrUnsigned)
	assert.Zero(t, e.ledger.Calls(rpctest.MethodSendRawTransaction))
}

func TestFollowLifecycle(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.newUser(), e.newUser()
	ctx := context.Background()

	_, err := alice.rels.Follow(ctx, bob.addr)
	assert.ErrorIs(t, err, service.ErrProfileNotFound)
	_, err = alice.rels.Follow(ctx, alice.addr)
	assert.ErrorIs(t, err, service.ErrFollowSelf)

	sig, err := bob.profiles.Initialize(ctx)
	require.NoError(t, err)
	assert.False(t, sig.IsZero())
	sig, err = bob.profiles.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, sig.IsZero())

	e.clock.Advance(5 * time.Minute)
	sig, err = alice.rels.Follow(ctx, bob.addr)
	require.NoError(t, err)
	assert.False(t, sig.IsZero())

	ok, err := alice.rels.IsFollowing(ctx, alice.addr, bob.addr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, e.profile(bob.addr).FollowersCount)
	assert.EqualValues(t, 1, e.profile(alice.addr).FollowingCount)

	fans, err := bob.rels.ListFans(ctx, bob.addr, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{alice.addr}, fans)
	following, err := alice.rels.ListFollowing(ctx, alice.addr, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{bob.addr}, following)

	// 重复关注幂等
	sig, err = alice.rels.Follow(ctx, bob.addr)
	require.NoError(t, err)
	assert.True(t, sig.IsZero())

	_, err = alice.rels.Unfollow(ctx, bob.addr)
	require.NoError(t, err)
	ok, err = alice.rels.IsFollowing(ctx, alice.addr, bob.addr)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, e.profile(bob.addr).FollowersCount)
}

func TestLikeAndUnlike(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.newUser(), e.newUser()
	ctx := context.Background()

	r, err := alice.posts.CreateTextPost(ctx, "like me", nil)
	require.NoError(t, err)

	_, err = bob.rels.Like(ctx, solana.PublicKey{7})
	assert.ErrorIs(t, err, service.ErrPostNotFound)

	_, err = bob.rels.Like(ctx, r.Address)
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.post(r.Address).Likes)

	sig, err := bob.rels.Like(ctx, r.Address)
	require.NoError(t, err)
	assert.True(t, sig.IsZero())

	_, err = bob.rels.Unlike(ctx, r.Address)
	require.NoError(t, err)
	assert.Zero(t, e.post(r.Address).Likes)
}

func TestImagePostAndLink(t *testing.T) {
	e := newEnv(t)
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	signer := service.NewKeypairSigner(key)
	up := &fakeUploader{}
	pub := service.NewPublisher(e.client, signer)
	posts := service.NewPostService(pub, e.repos.Profiles, up, e.deriver, treasury, e.clock)
	ctx := context.Background()

	r, err := posts.CreateImagePost(ctx, " sunset ", "sunset.jpg", strings.NewReader("jpeg"), nil)
	require.NoError(t, err)
	assert.Equal(t, "sunset.jpg:jpeg", up.got)

	p := e.post(r.Address)
	assert.Equal(t, model.PostKindImage, p.Kind)
	assert.Equal(t, "sunset ipfs://"+cid, p.Content)

	cnft := solana.TokenProgramID
	_, err = posts.LinkImage(ctx, r.Address, cnft)
	require.NoError(t, err)
	p = e.post(r.Address)
	assert.Equal(t, []solana.PublicKey{cnft}, p.ImageChunks)
	assert.EqualValues(t, 1, p.TotalChunks)

	_, err = posts.CreateImagePost(ctx, strings.Repeat("x", 260), "big.jpg", strings.NewReader("jpeg"), nil)
	assert.ErrorIs(t, err, codec.ErrContentTooLong)
}

func TestFailedTransactionSurfacesConfirmationError(t *testing.T) {
	e := newEnv(t)
	alice := e.newUser()
	ctx := context.Background()

	r, err := alice.posts.CreateTextPost(ctx, "plain text", nil)
	require.NoError(t, err)

	// 文本帖不能关联图片，程序执行失败
	_, err = alice.posts.LinkImage(ctx, r.Address, treasury)
	assert.ErrorIs(t, err, service.ErrConfirmation)
	assert.ErrorIs(t, err, rpc.ErrTransactionFailed)
	assert.Empty(t, e.post(r.Address).ImageChunks)
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	alice := e.newUser()
	ctx := context.Background()
	name, bio := "alice", "  "

	_, err := alice.profiles.Update(ctx, model.ProfileUpdate{Username: &name, Bio: &bio})
	require.NoError(t, err)

	p, err := alice.profiles.Get(ctx, alice.addr)
	require.NoError(t, err)
	require.NotNil(t, p.Username)
	assert.Equal(t, "alice", *p.Username)
	assert.Nil(t, p.Bio)

	long := strings.Repeat("n", 51)
	_, err = alice.profiles.Update(ctx, model.ProfileUpdate{Username: &long})
	assert.ErrorIs(t, err, codec.ErrFieldTooLong)
}
