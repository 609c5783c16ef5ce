package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/codec"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

// TransactionSource is satisfied by *rpc.Client.
type TransactionSource interface {
	GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.TransactionDetail, rpc.Source, error)
}

type EngineConfig struct {
	ProgramID solana.PublicKey
	Poller    PollerConfig
	// Stream 为 nil 时只使用轮询
	Stream    *StreamConfig
	HubBuffer int
	// Since 是初始水位；0 表示从 Start 时刻开始，只推送之后的新帖
	Since        int64
	FetchQueue   int
	FetchTimeout time.Duration
}

type EngineOption func(*Engine)

func WithEngineClock(c clockwork.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

func WithDialer(d Dialer) EngineOption {
	return func(e *Engine) { e.dialer = d }
}

func WithRelay(r *Relay) EngineOption {
	return func(e *Engine) { e.relay = r }
}

// WithEngineErrors receives stream failures (ErrChannelClosed, ErrSubscriptionFailed).
func WithEngineErrors(fn func(error)) EngineOption {
	return func(e *Engine) { e.onError = fn }
}

// Engine 一个同步会话：轮询源与推送源共享同一水位，去重后分发给订阅者
type Engine struct {
	id      string
	cfg     EngineConfig
	txs     TransactionSource
	clock   clockwork.Clock
	dialer  Dialer
	relay   *Relay
	onError func(error)

	watermark *Watermark
	hub       *Hub
	poller    *Poller
	stream    *Stream

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	pending chan solana.Signature
	wg      sync.WaitGroup
}

func NewEngine(cfg EngineConfig, posts RecentSource, txs TransactionSource, opts ...EngineOption) *Engine {
	if cfg.FetchQueue <= 0 {
		cfg.FetchQueue = 64
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Minute
	}
	e := &Engine{
		id:      uuid.NewString(),
		cfg:     cfg,
		txs:     txs,
		clock:   clockwork.NewRealClock(),
		onError: func(error) {},
		hub:     NewHub(cfg.HubBuffer),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.watermark = NewWatermark(cfg.Since)
	e.poller = NewPoller(cfg.Poller, posts, func(p []model.Post) { e.deliver("poll", p, true) }, e.clock)
	if cfg.Stream != nil {
		sc := *cfg.Stream
		sc.ProgramID = cfg.ProgramID
		e.stream = NewStream(sc, e.dialer, e.handleMessage,
			WithStreamClock(e.clock),
			WithErrorHandler(e.reportError),
		)
	}
	return e
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) Watermark() int64 { return e.watermark.Value() }

func (e *Engine) Hub() *Hub { return e.hub }

// Stream returns nil when the engine only polls.
func (e *Engine) Stream() *Stream { return e.stream }

func (e *Engine) Subscribe() *Subscriber { return e.hub.Subscribe() }

func (e *Engine) Unsubscribe(id string) { e.hub.Unsubscribe(id) }

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	if e.cfg.Since == 0 {
		e.watermark.Raise(e.clock.Now().Unix())
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.pending = make(chan solana.Signature, e.cfg.FetchQueue)
	pending := e.pending
	e.mu.Unlock()

	logger.Info("sync engine started",
		zap.String("session", e.id),
		zap.Int64("watermark", e.watermark.Value()),
		zap.Duration("poll_interval", e.poller.Interval()),
		zap.Bool("streaming", e.stream != nil),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.fetchLoop(ctx, pending)
	}()
	if e.relay != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.relay.Run(ctx, func(p []model.Post) { e.deliver("relay", p, false) }); err != nil {
				logger.Warn("relay stopped", zap.Error(err))
			}
		}()
	}
	e.poller.Start()
	if e.stream != nil {
		e.stream.Start()
	}
	return nil
}

// Stop 停止所有定时器与连接；之后到达的结果直接丢弃
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	e.poller.Stop()
	if e.stream != nil {
		e.stream.Stop()
	}
	cancel()
	e.wg.Wait()
	logger.Info("sync engine stopped", zap.String("session", e.id))
}

func (e *Engine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) deliver(source string, posts []model.Post, share bool) {
	if !e.isRunning() {
		return
	}
	fresh := e.watermark.Admit(posts)
	if len(fresh) == 0 {
		return
	}
	e.hub.Broadcast(fresh...)
	logger.Debug("posts delivered",
		zap.String("session", e.id),
		zap.String("source", source),
		zap.Int("count", len(fresh)),
		zap.Int64("watermark", e.watermark.Value()),
	)
	if share && e.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.relay.Publish(ctx, fresh); err != nil {
			logger.Warn("relay publish failed", zap.Error(err))
		}
	}
}

func (e *Engine) handleMessage(msg Message) {
	switch msg.Kind {
	case MessageLogs:
		e.mu.Lock()
		pending, running := e.pending, e.running
		e.mu.Unlock()
		if !running {
			return
		}
		select {
		case pending <- msg.Signature:
		default:
			logger.Warn("transaction fetch queue full, dropping", zap.String("signature", msg.Signature.String()))
		}
	case MessageProgram:
		if codec.KindOf(msg.Data) != codec.KindPost {
			return
		}
		p, err := codec.DecodePost(msg.Data)
		if err != nil {
			logger.Debug("program notification discarded", zap.String("account", msg.Account.String()), zap.Error(err))
			return
		}
		p.Address = msg.Account
		e.deliver("stream", []model.Post{p}, true)
	}
}

func (e *Engine) fetchLoop(ctx context.Context, pending <-chan solana.Signature) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-pending:
			e.fetch(ctx, sig)
		}
	}
}

func (e *Engine) fetch(ctx context.Context, sig solana.Signature) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	detail, _, err := e.txs.GetTransaction(ctx, sig)
	if err != nil {
		if rpc.IsThrottled(err) {
			logger.Debug("transaction fetch skipped", zap.String("signature", sig.String()), zap.Error(err))
		} else {
			logger.Warn("transaction fetch failed", zap.String("signature", sig.String()), zap.Error(err))
		}
		return
	}
	posts, err := PostsFromTransaction(e.cfg.ProgramID, detail)
	if err != nil {
		logger.Debug("transaction discarded", zap.String("signature", sig.String()), zap.Error(err))
		return
	}
	if len(posts) > 0 {
		e.deliver("stream", posts, true)
	}
}

func (e *Engine) reportError(err error) {
	logger.Warn("stream error", zap.String("session", e.id), zap.Error(err))
	e.onError(err)
}
