package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/solcials-sync/internal/api"
	"github.com/d60-Lab/solcials-sync/internal/api/handler"
	"github.com/d60-Lab/solcials-sync/internal/api/middleware"
	"github.com/d60-Lab/solcials-sync/internal/cache"
	"github.com/d60-Lab/solcials-sync/internal/media"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/realtime"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/internal/rpc/rpctest"
	"github.com/d60-Lab/solcials-sync/internal/service"
)

const (
	secret = "test-secret"
	cid    = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
)

var programID = solana.MustPublicKeyFromBase58("2dMkuyNN2mUiSWyW1UGTRE7CkfULpudVdMCbASCChLpv")

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUploader struct{}

func (stubUploader) Upload(context.Context, string, io.Reader) (string, error) { return cid, nil }

type stubResolver map[string]string

func (r stubResolver) Resolve(_ context.Context, c string) (string, error) {
	if url, ok := r[c]; ok {
		return url, nil
	}
	return "", media.ErrUnavailable
}

type fixture struct {
	t       *testing.T
	clock   clockwork.FakeClock
	client  *rpc.Client
	deriver *pda.Deriver
	deps    service.RelationshipDeps
	hub     *realtime.Hub
	me      solana.PublicKey
	router  *gin.Engine
	token   string
}

func newFixture(t *testing.T, withWallet bool) *fixture {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ledger := rpctest.NewLedger(programID, clock)
	policy := rpc.DefaultPolicy()
	policy.Budget = 1000
	policy.Spacing = 0
	client := rpc.NewClient(ledger, cache.NewMemory(clock), policy, rpc.WithClock(clock))
	t.Cleanup(client.Close)

	d := pda.New(programID)
	deps := service.RelationshipDeps{
		Follows:  repository.NewFollowRepository(client, d),
		Fans:     repository.NewFanRepository(client, d),
		Likes:    repository.NewLikeRepository(client, d),
		Profiles: repository.NewProfileRepository(client, d),
		Posts:    repository.NewPostRepository(client, d),
	}
	f := &fixture{t: t, clock: clock, client: client, deriver: d, deps: deps, hub: realtime.NewHub(8)}
	t.Cleanup(f.hub.Close)

	var signer service.Signer
	if withWallet {
		key, err := solana.NewRandomPrivateKey()
		require.NoError(t, err)
		ks := service.NewKeypairSigner(key)
		f.me, _ = ks.CurrentAddress()
		signer = ks
	}
	pub := service.NewPublisher(client, signer)

	h := handler.New(handler.Deps{
		Posts:          deps.Posts,
		Likes:          deps.Likes,
		PostService:    service.NewPostService(pub, deps.Profiles, stubUploader{}, d, solana.SysVarRentPubkey, clock),
		RelService:     service.NewRelationshipService(pub, deps, d),
		ProfileService: service.NewProfileService(pub, deps.Profiles, d),
		Resolver:       stubResolver{cid: "https://ipfs.io/ipfs/" + cid},
		Feed:           f.hub,
	})
	f.router = api.NewRouter(api.RouterConfig{ServiceName: "solcials-test", JWTSecret: secret}, h)

	token, err := middleware.IssueToken(secret, f.me.String(), time.Hour)
	require.NoError(t, err)
	f.token = token
	return f
}

// other 以独立钱包创建资料，供关注测试使用
func (f *fixture) other() solana.PublicKey {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(f.t, err)
	pub := service.NewPublisher(f.client, service.NewKeypairSigner(key))
	_, err = service.NewProfileService(pub, f.deps.Profiles, f.deriver).Initialize(context.Background())
	require.NoError(f.t, err)
	return key.PublicKey()
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *fixture) do(method, path string, body any, auth bool) (int, envelope) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	return f.serve(req)
}

func (f *fixture) serve(req *http.Request) (int, envelope) {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), string(env.Data))
	return v
}

func TestWriteEndpointsRequireToken(t *testing.T) {
	f := newFixture(t, true)

	code, _ := f.do(http.MethodPost, "/api/v1/posts", gin.H{"content": "gm"}, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(http.MethodPost, "/api/v1/relations/follow", gin.H{"target": f.me.String()}, false)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCreateAndReadPost(t *testing.T) {
	f := newFixture(t, true)

	code, env := f.do(http.MethodPost, "/api/v1/posts", gin.H{"content": "gm"}, true)
	require.Equal(t, http.StatusOK, code, env.Message)
	receipt := decode[service.PostReceipt](t, env)
	assert.False(t, receipt.Signature.IsZero())

	code, env = f.do(http.MethodGet, "/api/v1/posts/"+receipt.Address.String(), nil, false)
	require.Equal(t, http.StatusOK, code, env.Message)
	post := decode[model.Post](t, env)
	assert.Equal(t, "gm", post.Content)
	assert.Equal(t, f.me, post.Author)

	code, env = f.do(http.MethodGet, "/api/v1/posts", nil, false)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]model.Post](t, env), 1)

	code, env = f.do(http.MethodGet, "/api/v1/users/"+f.me.String()+"/posts", nil, false)
	require.Equal(t, http.StatusOK, code)
	page := decode[struct {
		List []model.Post `json:"list"`
	}](t, env)
	require.Len(t, page.List, 1)
	assert.Equal(t, receipt.Address, page.List[0].Address)

	code, env = f.do(http.MethodGet, "/api/v1/users/"+f.me.String()+"/profile", nil, false)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, decode[model.UserProfile](t, env).PostCount)
}

func TestCreateImagePostMultipart(t *testing.T) {
	f := newFixture(t, true)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("content", "sunset"))
	fw, err := mw.CreateFormFile("image", "sunset.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("pixels"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token)
	code, env := f.serve(req)
	require.Equal(t, http.StatusOK, code, env.Message)
	receipt := decode[service.PostReceipt](t, env)

	_, env = f.do(http.MethodGet, "/api/v1/posts/"+receipt.Address.String(), nil, false)
	view := decode[struct {
		Content  string         `json:"content"`
		Kind     model.PostKind `json:"kind"`
		Caption  string         `json:"caption"`
		ImageCID string         `json:"image_cid"`
	}](t, env)
	assert.Equal(t, model.PostKindImage, view.Kind)
	assert.Equal(t, "sunset", view.Caption)
	assert.Equal(t, cid, view.ImageCID)
}

func TestFollowFlow(t *testing.T) {
	f := newFixture(t, true)
	bob := f.other()

	code, env := f.do(http.MethodPost, "/api/v1/relations/follow", gin.H{"target": bob.String()}, true)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, true, decode[map[string]any](t, env)["changed"])

	code, env = f.do(http.MethodPost, "/api/v1/relations/follow", gin.H{"target": bob.String()}, true)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, decode[map[string]any](t, env)["changed"])

	_, env = f.do(http.MethodGet, "/api/v1/relations/"+f.me.String()+"/follows/"+bob.String(), nil, false)
	assert.Equal(t, map[string]bool{"following": true}, decode[map[string]bool](t, env))

	_, env = f.do(http.MethodGet, "/api/v1/relations/"+bob.String()+"/fans", nil, false)
	fans := decode[struct {
		List []solana.PublicKey `json:"list"`
	}](t, env)
	assert.Equal(t, []solana.PublicKey{f.me}, fans.List)

	_, env = f.do(http.MethodGet, "/api/v1/relations/"+f.me.String()+"/following", nil, false)
	following := decode[struct {
		List []solana.PublicKey `json:"list"`
	}](t, env)
	assert.Equal(t, []solana.PublicKey{bob}, following.List)

	code, _ = f.do(http.MethodPost, "/api/v1/relations/unfollow", gin.H{"target": bob.String()}, true)
	require.Equal(t, http.StatusOK, code)
	_, env = f.do(http.MethodGet, "/api/v1/relations/"+f.me.String()+"/follows/"+bob.String(), nil, false)
	assert.Equal(t, map[string]bool{"following": false}, decode[map[string]bool](t, env))
}

func TestFollowErrors(t *testing.T) {
	f := newFixture(t, true)
	stranger, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	code, _ := f.do(http.MethodPost, "/api/v1/relations/follow", gin.H{"target": stranger.PublicKey().String()}, true)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodPost, "/api/v1/relations/follow", gin.H{"target": "not-a-key"}, true)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPost, "/api/v1/relations/follow", gin.H{}, true)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLikeAndUnlike(t *testing.T) {
	f := newFixture(t, true)
	_, env := f.do(http.MethodPost, "/api/v1/posts", gin.H{"content": "like me"}, true)
	receipt := decode[service.PostReceipt](t, env)
	path := "/api/v1/posts/" + receipt.Address.String()

	code, env := f.do(http.MethodPost, path+"/like", nil, true)
	require.Equal(t, http.StatusOK, code, env.Message)
	_, env = f.do(http.MethodGet, path, nil, false)
	assert.EqualValues(t, 1, decode[model.Post](t, env).Likes)

	_, env = f.do(http.MethodGet, path+"/likes", nil, false)
	likes := decode[struct {
		List []solana.PublicKey `json:"list"`
	}](t, env)
	assert.Equal(t, []solana.PublicKey{f.me}, likes.List)

	code, _ = f.do(http.MethodDelete, path+"/like", nil, true)
	require.Equal(t, http.StatusOK, code)
	_, env = f.do(http.MethodGet, path, nil, false)
	assert.EqualValues(t, 0, decode[model.Post](t, env).Likes)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, true)

	code, env := f.do(http.MethodPut, "/api/v1/users/me/profile", gin.H{"username": "alice", "bio": "builder"}, true)
	require.Equal(t, http.StatusOK, code, env.Message)

	_, env = f.do(http.MethodGet, "/api/v1/users/"+f.me.String()+"/profile", nil, false)
	p := decode[model.UserProfile](t, env)
	require.NotNil(t, p.Username)
	assert.Equal(t, "alice", *p.Username)

	code, _ = f.do(http.MethodPut, "/api/v1/users/me/profile", gin.H{"username": strings.Repeat("a", 51)}, true)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReadErrors(t *testing.T) {
	f := newFixture(t, true)
	missing, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	code, _ := f.do(http.MethodGet, "/api/v1/posts/not-base58!", nil, false)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodGet, "/api/v1/posts/"+missing.PublicKey().String(), nil, false)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/api/v1/users/"+missing.PublicKey().String()+"/profile", nil, false)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodPost, "/api/v1/posts", gin.H{"content": strings.Repeat("x", model.MaxContentLength+1)}, true)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWritesWithoutWallet(t *testing.T) {
	f := newFixture(t, false)

	code, _ := f.do(http.MethodPost, "/api/v1/posts", gin.H{"content": "gm"}, true)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestResolveMedia(t *testing.T) {
	f := newFixture(t, true)

	code, env := f.do(http.MethodGet, "/api/v1/media/"+cid, nil, false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://ipfs.io/ipfs/"+cid, decode[map[string]string](t, env)["url"])

	code, _ = f.do(http.MethodGet, "/api/v1/media/QmMissing", nil, false)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, true)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestStreamPushesBroadcastPosts(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + api.StreamPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	addr := solana.PublicKey{9}
	f.hub.Broadcast(model.Post{Address: addr, Author: f.me, Content: "live", Timestamp: 1714564800})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.Post
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, addr, got.Address)
	assert.Equal(t, "live", got.Content)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}
