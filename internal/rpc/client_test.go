package rpc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/solcials-sync/internal/cache"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/internal/rpc/rpctest"
)

var (
	programID = solana.MustPublicKeyFromBase58("2dMkuyNN2mUiSWyW1UGTRE7CkfULpudVdMCbASCChLpv")
	epoch     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	clock  clockwork.FakeClock
	ledger *rpctest.Ledger
	client *rpc.Client
}

func testPolicy() rpc.Policy {
	p := rpc.DefaultPolicy()
	p.Spacing = 0
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.RequestTimeout = time.Second
	return p
}

func newFixture(t *testing.T, p rpc.Policy) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	ledger := rpctest.NewLedger(programID, clock)
	client := rpc.NewClient(ledger, cache.NewMemory(clock), p, rpc.WithClock(clock))
	t.Cleanup(client.Close)
	return &fixture{clock: clock, ledger: ledger, client: client}
}

func addr(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	pk[31] = 0xaa
	return pk
}

func TestFetchCachesHitsAndAbsence(t *testing.T) {
	f := newFixture(t, testPolicy())
	ctx := context.Background()
	f.ledger.PutAccount(addr(1), []byte("payload"))

	got, err := f.client.Fetch(ctx, rpc.KindPosts, addr(1))
	require.NoError(t, err)
	assert.True(t, got.Exists)
	assert.Equal(t, rpc.SourceNetwork, got.Source)
	assert.Equal(t, []byte("payload"), got.Data)

	got, err = f.client.Fetch(ctx, rpc.KindPosts, addr(1))
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceCache, got.Source)

	missing, err := f.client.Fetch(ctx, rpc.KindPosts, addr(2))
	require.NoError(t, err)
	assert.False(t, missing.Exists)
	missing, err = f.client.Fetch(ctx, rpc.KindPosts, addr(2))
	require.NoError(t, err)
	assert.False(t, missing.Exists)
	assert.Equal(t, rpc.SourceCache, missing.Source)

	assert.Equal(t, 2, f.ledger.Calls(rpctest.MethodGetAccountInfo))
}

func TestFetchRefreshesAfterFreshTTL(t *testing.T) {
	f := newFixture(t, testPolicy())
	ctx := context.Background()
	f.ledger.PutAccount(addr(1), []byte("v1"))

	_, err := f.client.Fetch(ctx, rpc.KindPosts, addr(1))
	require.NoError(t, err)
	f.ledger.PutAccount(addr(1), []byte("v2"))
	f.clock.Advance(time.Minute)

	got, err := f.client.Fetch(ctx, rpc.KindPosts, addr(1))
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceNetwork, got.Source)
	assert.Equal(t, []byte("v2"), got.Data)
}

func TestBudgetHoldsForActualDispatches(t *testing.T) {
	f := newFixture(t, testPolicy())
	ctx := context.Background()

	var limited int
	for i := byte(0); i < 8; i++ {
		_, err := f.client.Fetch(ctx, rpc.KindProfiles, addr(i))
		if err != nil {
			assert.ErrorIs(t, err, rpc.ErrNoData)
			assert.ErrorIs(t, err, rpc.ErrRateLimited)
			limited++
		}
	}
	assert.Equal(t, 3, limited)
	assert.Equal(t, 5, f.ledger.Calls(rpctest.MethodGetAccountInfo))

	f.clock.Advance(time.Minute)
	_, err := f.client.Fetch(ctx, rpc.KindProfiles, addr(9))
	require.NoError(t, err)
	assert.Equal(t, 6, f.ledger.Calls(rpctest.MethodGetAccountInfo))
}

func TestOverBudgetFetchFailsBeforeSpacingWait(t *testing.T) {
	p := testPolicy()
	p.Budget = 1
	p.Window = time.Minute
	p.Spacing = 3 * time.Second
	f := newFixture(t, p)
	ctx := context.Background()

	_, err := f.client.Fetch(ctx, rpc.KindProfiles, addr(1))
	require.NoError(t, err)

	fetch := func(b byte) error {
		errc := make(chan error, 1)
		go func() {
			_, err := f.client.Fetch(ctx, rpc.KindProfiles, addr(b))
			errc <- err
		}()
		select {
		case err := <-errc:
			return err
		case <-time.After(time.Second):
			t.Fatal("fetch blocked on spacing while over budget")
			return nil
		}
	}
	for b := byte(2); b <= 3; b++ {
		err := fetch(b)
		assert.ErrorIs(t, err, rpc.ErrNoData)
		assert.ErrorIs(t, err, rpc.ErrRateLimited)
	}
	assert.Equal(t, 1, f.ledger.Calls(rpctest.MethodGetAccountInfo))
	assert.Equal(t, 0, f.client.Remaining())

	// 窗口滑过后恢复，被拒绝的请求没有推迟下一次派发
	f.clock.Advance(time.Minute)
	require.NoError(t, fetch(4))
	assert.Equal(t, 2, f.ledger.Calls(rpctest.MethodGetAccountInfo))
}

func TestTransientFailuresAreRetried(t *testing.T) {
	f := newFixture(t, testPolicy())
	f.ledger.PutAccount(addr(1), []byte("ok"))
	f.ledger.FailNext(rpctest.MethodGetAccountInfo, errors.New("connection reset by peer"), errors.New("EOF"))

	got, err := f.client.Fetch(context.Background(), rpc.KindPosts, addr(1))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), got.Data)
	assert.Equal(t, 3, f.ledger.Calls(rpctest.MethodGetAccountInfo))
}

func TestRetryBudgetExhaustedWithoutCache(t *testing.T) {
	f := newFixture(t, testPolicy())
	boom := errors.New("connection refused")
	f.ledger.FailNext(rpctest.MethodGetAccountInfo, boom, boom, boom, boom)

	got, err := f.client.Fetch(context.Background(), rpc.KindPosts, addr(1))
	assert.ErrorIs(t, err, rpc.ErrNoData)
	assert.ErrorIs(t, err, rpc.ErrTransientNetwork)
	assert.Equal(t, rpc.SourceNone, got.Source)
	assert.Equal(t, 3, f.ledger.Calls(rpctest.MethodGetAccountInfo))
}

func TestUpstreamRateLimitShortCircuitsRetries(t *testing.T) {
	f := newFixture(t, testPolicy())
	f.ledger.FailNext(rpctest.MethodGetProgramAccounts, errors.New("HTTP 429 Too Many Requests"))

	list, src, err := f.client.QueryByFilter(context.Background(), rpc.KindPosts, programID, nil)
	assert.ErrorIs(t, err, rpc.ErrRateLimitExceeded)
	assert.ErrorIs(t, err, rpc.ErrNoData)
	assert.Equal(t, rpc.SourceNone, src)
	assert.Empty(t, list)
	assert.NotNil(t, list)
	assert.Equal(t, 1, f.ledger.Calls(rpctest.MethodGetProgramAccounts))
}

func TestDegradesToStaleCopy(t *testing.T) {
	f := newFixture(t, testPolicy())
	ctx := context.Background()
	f.ledger.PutAccount(addr(3), []byte("kept"))

	filters := []rpc.Filter{rpc.Memcmp(0, []byte("ke"))}
	first, _, err := f.client.QueryByFilter(ctx, rpc.KindPosts, programID, filters)
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.clock.Advance(2 * time.Minute)
	f.ledger.FailNext(rpctest.MethodGetProgramAccounts, errors.New("rate limit reached"))

	again, src, err := f.client.QueryByFilter(ctx, rpc.KindPosts, programID, filters)
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceStale, src)
	assert.Equal(t, first, again)
}

func TestInvalidateDropsFreshEntries(t *testing.T) {
	f := newFixture(t, testPolicy())
	ctx := context.Background()
	f.ledger.PutAccount(addr(1), []byte("a"))

	_, err := f.client.Fetch(ctx, rpc.KindPosts, addr(1))
	require.NoError(t, err)
	_, err = f.client.Fetch(ctx, rpc.KindProfiles, addr(1))
	require.NoError(t, err)

	f.client.Invalidate(ctx, rpc.KindPosts)

	got, err := f.client.Fetch(ctx, rpc.KindPosts, addr(1))
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceNetwork, got.Source)
	got, err = f.client.Fetch(ctx, rpc.KindProfiles, addr(1))
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceCache, got.Source)
}

func TestRequestTimeoutMapsToErrTimeout(t *testing.T) {
	p := testPolicy()
	p.MaxRetries = 0
	p.RequestTimeout = 20 * time.Millisecond
	f := newFixture(t, p)
	f.ledger.SetHook(func(ctx context.Context, method string) { <-ctx.Done() })

	_, err := f.client.LatestBlockhash(context.Background())
	assert.ErrorIs(t, err, rpc.ErrTimeout)
	assert.True(t, rpc.IsThrottled(err))
}

func TestFetchManyReturnsExistingSubset(t *testing.T) {
	f := newFixture(t, testPolicy())
	f.ledger.PutAccount(addr(1), []byte("one"))
	f.ledger.PutAccount(addr(3), []byte("three"))

	got, src, err := f.client.FetchMany(context.Background(), rpc.KindProfiles, []solana.PublicKey{addr(1), addr(2), addr(3)})
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceNetwork, src)
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("three"), got[addr(3)])

	// same set in another order hits the cache
	_, src, err = f.client.FetchMany(context.Background(), rpc.KindProfiles, []solana.PublicKey{addr(3), addr(2), addr(1)})
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceCache, src)
}

func TestGetTransactionNotFoundIsNotCached(t *testing.T) {
	f := newFixture(t, testPolicy())
	sig := solana.SignatureFromBytes(make([]byte, 64))

	_, src, err := f.client.GetTransaction(context.Background(), sig)
	assert.ErrorIs(t, err, rpc.ErrTransactionNotFound)
	assert.Equal(t, rpc.SourceNone, src)

	f.ledger.PutTransaction(&rpc.TransactionDetail{Signature: sig, Slot: 9})
	d, src, err := f.client.GetTransaction(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, rpc.SourceNetwork, src)
	assert.EqualValues(t, 9, d.Slot)
}
