package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

const MinPollInterval = time.Minute

// RecentSource is satisfied by repository.PostRepository.
type RecentSource interface {
	ListRecent(ctx context.Context, limit int) ([]model.Post, error)
}

type PollerConfig struct {
	Interval         time.Duration
	Limit            int
	FailureThreshold int
	Cooldown         time.Duration
	Timeout          time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:         MinPollInterval,
		Limit:            50,
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
		Timeout:          time.Minute,
	}
}

// Poller 定时拉取最新帖子；连续失败达到阈值后暂停，冷却结束自动恢复
type Poller struct {
	cfg     PollerConfig
	source  RecentSource
	deliver func([]model.Post)
	clock   clockwork.Clock

	mu       sync.Mutex
	running  bool
	paused   bool
	failures int
	gen      uint64
	timer    clockwork.Timer
}

func NewPoller(cfg PollerConfig, source RecentSource, deliver func([]model.Post), clock clockwork.Clock) *Poller {
	if cfg.Interval < MinPollInterval {
		cfg.Interval = MinPollInterval
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{cfg: cfg, source: source, deliver: deliver, clock: clock}
}

func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Start polls once right away, then every Interval.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.paused = false
	p.failures = 0
	p.gen++
	p.schedule(0, p.tick)
	p.mu.Unlock()
}

// schedule arms the next timer for the current run; caller holds p.mu.
func (p *Poller) schedule(d time.Duration, fn func(gen uint64)) {
	gen := p.gen
	p.timer = p.clock.AfterFunc(d, func() { fn(gen) })
}

func (p *Poller) current(gen uint64) bool {
	return p.running && p.gen == gen
}

func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Poller) tick(gen uint64) {
	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	posts, err := p.source.ListRecent(ctx, p.cfg.Limit)
	cancel()

	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return
	}
	if err == nil {
		p.failures = 0
		p.schedule(p.cfg.Interval, p.tick)
		p.mu.Unlock()
		p.deliver(posts)
		return
	}
	defer p.mu.Unlock()

	p.failures++
	if rpc.IsThrottled(err) {
		logger.Debug("poll skipped", zap.Int("failures", p.failures), zap.Error(err))
	} else {
		logger.Warn("poll failed", zap.Int("failures", p.failures), zap.Error(err))
	}
	if p.failures >= p.cfg.FailureThreshold {
		p.paused = true
		logger.Warn("polling paused", zap.Duration("cooldown", p.cfg.Cooldown))
		p.schedule(p.cfg.Cooldown, p.resume)
		return
	}
	p.schedule(p.cfg.Interval, p.tick)
}

func (p *Poller) resume(gen uint64) {
	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return
	}
	p.paused = false
	p.failures = 0
	p.mu.Unlock()
	logger.Info("polling resumed")
	p.tick(gen)
}
