package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/solcials-sync/config"
	"github.com/d60-Lab/solcials-sync/internal/cache"
	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/internal/rpc/rpctest"
)

var programID = solana.MustPublicKeyFromBase58("2dMkuyNN2mUiSWyW1UGTRE7CkfULpudVdMCbASCChLpv")

type request struct {
	owner solana.PublicKey
	fans  bool
	page  int
}

func main() {
	ctx := context.Background()

	const (
		userCount   = 2000
		fansPerUser = 40
		requests    = 5000
		rpcDelay    = 2 * time.Millisecond // 模拟公共节点往返
	)

	fmt.Println("Seeding ledger...")
	ledger := rpctest.NewLedger(programID, nil)
	d := pda.New(programID)
	users := seed(ledger, d, userCount, fansPerUser)
	ledger.SetHook(func(context.Context, string) { time.Sleep(rpcDelay) })
	fmt.Printf("Ledger ready: %d profiles, %d follow relations\n", userCount, userCount*fansPerUser)

	reqs := makeRequests(users, requests)

	backends := []config.CacheConfig{{Backend: "memory"}}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		backends = append(backends, config.CacheConfig{Backend: "redis", RedisAddr: addr})
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "file:cachebench.db?cache=shared&mode=memory"
	}
	backends = append(backends, config.CacheConfig{Backend: "database", DatabaseDSN: dsn})

	fmt.Printf("\nRead latency (%d req, zipf skew, %v per upstream call)\n", requests, rpcDelay)
	for _, bc := range backends {
		res := runScenario(ctx, ledger, d, bc, reqs)
		fmt.Printf("%-10s avg=%v p95=%v p99=%v upstream=%d hit=%.1f%% mem=%s\n",
			bc.Backend, avg(res.durations), pct(res.durations, 0.95), pct(res.durations, 0.99),
			res.upstream, 100*(1-float64(res.upstream)/float64(len(reqs))), formatBytes(res.memoryBytes),
		)
	}
}

// seed 写入 n 个用户资料，每人 fans 个粉丝（粉丝取自相邻用户）
func seed(l *rpctest.Ledger, d *pda.Deriver, n, fans int) []solana.PublicKey {
	users := make([]solana.PublicKey, n)
	for i := range users {
		key, err := solana.NewRandomPrivateKey()
		mustDo(err)
		users[i] = key.PublicKey()
	}
	name := func(i int) *string { s := "user_" + strconv.Itoa(i); return &s }
	for i, u := range users {
		addr, bump, err := d.UserProfile(u)
		mustDo(err)
		l.PutAccount(addr, must(codec.EncodeUserProfileAccount(model.UserProfile{
			Owner: u, Username: name(i), FollowersCount: uint64(fans), FollowingCount: uint64(fans),
			CreatedAt: int64(1714564800 + i), Version: bump,
		})))
		for j := 1; j <= fans; j++ {
			follower := users[(i+j)%n]
			faddr, fbump, err := d.Follow(follower, u)
			mustDo(err)
			l.PutAccount(faddr, must(codec.EncodeFollowRelationAccount(model.FollowRelation{
				Follower: follower, Following: u, Timestamp: int64(1714564800 + j), Version: fbump,
			})))
		}
	}
	return users
}

type scenarioResult struct {
	durations   []time.Duration
	upstream    int
	memoryBytes int64
}

func runScenario(ctx context.Context, ledger *rpctest.Ledger, d *pda.Deriver, bc config.CacheConfig, reqs []request) scenarioResult {
	clock := clockwork.NewRealClock()
	store, closeStore, err := cache.Open(ctx, bc, clock)
	mustDo(err)
	defer func() { _ = closeStore() }()

	var rdb *redis.Client
	if bc.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: bc.RedisAddr})
		defer rdb.Close()
		rdb.FlushAll(ctx)
	}

	policy := rpc.DefaultPolicy()
	policy.Budget = math.MaxInt32
	policy.Spacing = 0
	client := rpc.NewClient(ledger, store, policy, rpc.WithClock(clock))
	defer client.Close()

	profiles := repository.NewProfileRepository(client, d)
	fans := repository.NewFanRepository(client, d)
	before := ledger.TotalCalls()

	fmt.Printf("  %s: running...", bc.Backend)
	res := scenarioResult{durations: make([]time.Duration, 0, len(reqs))}
	for _, r := range reqs {
		start := time.Now()
		if r.fans {
			_, err = fans.ListFans(ctx, r.owner, (r.page-1)*20, 20)
		} else {
			_, err = profiles.Get(ctx, r.owner)
		}
		mustDo(err)
		res.durations = append(res.durations, time.Since(start))
	}
	fmt.Println(" done")

	res.upstream = ledger.TotalCalls() - before
	if rdb != nil {
		if info, err := rdb.Info(ctx, "memory").Result(); err == nil {
			res.memoryBytes = parseRedisMemory(info)
		}
	}
	return res
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// makeRequests 按 zipf 分布挑选热点用户，约三成请求是粉丝列表
func makeRequests(users []solana.PublicKey, n int) []request {
	rnd := rand.New(rand.NewSource(42))
	zipf := rand.NewZipf(rnd, 1.2, 1, uint64(len(users)-1))
	out := make([]request, n)
	for i := range out {
		out[i] = request{owner: users[zipf.Uint64()], page: 1}
		if rnd.Float64() < 0.3 {
			out[i].fans = true
			out[i].page = 1 + rnd.Intn(2)
		}
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
