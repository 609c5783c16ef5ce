package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/cache"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

const (
	freshPrefix = "fresh:"
	stalePrefix = "stale:"
)

// Source 说明一次读取的数据来源
type Source int

const (
	SourceNone Source = iota
	SourceNetwork
	SourceCache
	SourceStale
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	case SourceStale:
		return "stale"
	default:
		return "none"
	}
}

// Fetched 单账户读取结果；Exists=false 表示链上不存在该账户
type Fetched struct {
	Data   []byte `json:"data"`
	Exists bool   `json:"exists"`
	Source Source `json:"-"`
}

type Option func(*Client)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// Client owns the limiter, queue and cache for one ledger endpoint.
// Reads never return raw transport errors: they degrade to the stale copy,
// or report ErrNoData.
type Client struct {
	transport Transport
	store     cache.Store
	policy    Policy
	clock     clockwork.Clock
	limiter   *SlidingWindow
	queue     *Queue
	tracer    trace.Tracer
}

func NewClient(transport Transport, store cache.Store, policy Policy, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		store:     store,
		policy:    policy,
		clock:     clockwork.NewRealClock(),
		tracer:    otel.Tracer("github.com/d60-Lab/solcials-sync/internal/rpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.QueueCapacity <= 0 {
		c.policy.QueueCapacity = 64
	}
	c.limiter = NewSlidingWindow(c.clock, c.policy.Budget, c.policy.Window)
	// 预算耗尽的请求在等待间隔前即被拒绝；队列是 limiter 唯一的消费者，
	// 放行后 job 内的 Allow 必然成功
	c.queue = NewQueue(c.clock, c.policy.Spacing, c.policy.QueueCapacity, WithGate(func() error {
		if c.limiter.Remaining() <= 0 {
			return ErrRateLimited
		}
		return nil
	}))
	return c
}

func (c *Client) Close() { c.queue.Close() }

// Remaining exposes the limiter's headroom.
func (c *Client) Remaining() int { return c.limiter.Remaining() }

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxInterval = c.policy.MaxDelay
	return b
}

// call runs fn through the queue with limiter check at dispatch, per-attempt
// timeout, and bounded retries for transient failures.
func call[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := c.tracer.Start(ctx, "rpc."+method)
	defer span.End()

	attempt := 0
	op := func() (T, error) {
		attempt++
		var out T
		err := c.queue.Do(ctx, func(jobCtx context.Context) error {
			if !c.limiter.Allow() {
				return ErrRateLimited
			}
			reqCtx, cancel := context.WithTimeout(jobCtx, c.policy.RequestTimeout)
			defer cancel()
			v, err := fn(reqCtx)
			if err != nil {
				return classify(reqCtx, err)
			}
			out = v
			return nil
		})
		if err != nil && !retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.policy.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("rpc retry scheduled",
				zap.String("method", method),
				zap.Error(err),
				zap.Duration("next", next),
			)
		}),
	)
	span.SetAttributes(attribute.Int("rpc.attempts", attempt))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

func cacheKey(kind Kind, method, params string) string {
	return string(kind) + ":" + method + ":" + params
}

// read is the cached read path shared by every query method.
func read[T any](ctx context.Context, c *Client, kind Kind, method, params string, fn func(context.Context) (T, error)) (T, Source, error) {
	key := cacheKey(kind, method, params)
	if v, ok, err := cache.GetJSON[T](ctx, c.store, freshPrefix+key); err != nil {
		logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return v, SourceCache, nil
	}

	v, err := call(ctx, c, method, fn)
	if err == nil {
		ttl := c.policy.ttl(kind)
		if serr := cache.SetJSON(ctx, c.store, freshPrefix+key, v, ttl.Fresh); serr != nil {
			logger.Warn("cache write failed", zap.String("key", key), zap.Error(serr))
		}
		if serr := cache.SetJSON(ctx, c.store, stalePrefix+key, v, ttl.Stale); serr != nil {
			logger.Warn("cache write failed", zap.String("key", key), zap.Error(serr))
		}
		return v, SourceNetwork, nil
	}

	if stale, ok, serr := cache.GetJSON[T](context.WithoutCancel(ctx), c.store, stalePrefix+key); serr == nil && ok {
		logger.Debug("serving stale copy", zap.String("key", key), zap.Error(err))
		return stale, SourceStale, nil
	}
	var zero T
	return zero, SourceNone, fmt.Errorf("%w: %s: %w", ErrNoData, method, err)
}

// Fetch reads one account. Absent accounts come back with Exists=false.
func (c *Client) Fetch(ctx context.Context, kind Kind, addr solana.PublicKey) (Fetched, error) {
	f, src, err := read(ctx, c, kind, "getAccountInfo", addr.String(), func(ctx context.Context) (Fetched, error) {
		data, err := c.transport.GetAccountInfo(ctx, addr)
		if errors.Is(err, ErrAccountNotFound) {
			return Fetched{}, nil
		}
		if err != nil {
			return Fetched{}, err
		}
		return Fetched{Data: data, Exists: true}, nil
	})
	f.Source = src
	return f, err
}

// FetchMany returns the subset of addrs that exist.
func (c *Client) FetchMany(ctx context.Context, kind Kind, addrs []solana.PublicKey) (map[solana.PublicKey][]byte, Source, error) {
	if len(addrs) == 0 {
		return map[solana.PublicKey][]byte{}, SourceCache, nil
	}
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.String()
	}
	sort.Strings(keys)

	found, src, err := read(ctx, c, kind, "getMultipleAccounts", strings.Join(keys, ","), func(ctx context.Context) ([]KeyedAccount, error) {
		datas, err := c.transport.GetMultipleAccounts(ctx, addrs)
		if err != nil {
			return nil, err
		}
		out := make([]KeyedAccount, 0, len(datas))
		for i, d := range datas {
			if d != nil && i < len(addrs) {
				out = append(out, KeyedAccount{Address: addrs[i], Data: d})
			}
		}
		return out, nil
	})
	m := make(map[solana.PublicKey][]byte, len(found))
	for _, ka := range found {
		m[ka.Address] = ka.Data
	}
	return m, src, err
}

func filterParams(program solana.PublicKey, filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.DataSize > 0 {
			parts = append(parts, fmt.Sprintf("size=%d", f.DataSize))
			continue
		}
		parts = append(parts, fmt.Sprintf("memcmp@%d=%s", f.Offset, solana.Base58(f.Bytes).String()))
	}
	sort.Strings(parts)
	return program.String() + "|" + strings.Join(parts, "|")
}

func (c *Client) QueryByFilter(ctx context.Context, kind Kind, program solana.PublicKey, filters []Filter) ([]KeyedAccount, Source, error) {
	list, src, err := read(ctx, c, kind, "getProgramAccounts", filterParams(program, filters), func(ctx context.Context) ([]KeyedAccount, error) {
		return c.transport.GetProgramAccounts(ctx, program, filters)
	})
	if list == nil {
		list = []KeyedAccount{}
	}
	return list, src, err
}

// GetTransaction is cached under KindTransactions. A signature the ledger
// does not know yet is not cached; the error wraps ErrTransactionNotFound.
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*TransactionDetail, Source, error) {
	return read(ctx, c, KindTransactions, "getTransaction", sig.String(), func(ctx context.Context) (*TransactionDetail, error) {
		return c.transport.GetTransaction(ctx, sig)
	})
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return call(ctx, c, "getLatestBlockhash", c.transport.GetLatestBlockhash)
}

// Pending 已提交待确认的交易
type Pending struct {
	client    *Client
	Signature solana.Signature
}

func (c *Client) Submit(ctx context.Context, raw []byte) (*Pending, error) {
	sig, err := call(ctx, c, "sendRawTransaction", func(ctx context.Context) (solana.Signature, error) {
		return c.transport.SendRawTransaction(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	return &Pending{client: c, Signature: sig}, nil
}

func (p *Pending) Confirm(ctx context.Context) error {
	_, err := call(ctx, p.client, "confirmTransaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.client.transport.ConfirmTransaction(ctx, p.Signature)
	})
	return err
}

// Invalidate drops fresh entries for the given kinds; stale copies stay as fallback.
func (c *Client) Invalidate(ctx context.Context, kinds ...Kind) {
	for _, k := range kinds {
		if err := c.store.RemovePrefix(ctx, freshPrefix+string(k)+":"); err != nil {
			logger.Warn("cache invalidation failed", zap.String("kind", string(k)), zap.Error(err))
		}
	}
}
