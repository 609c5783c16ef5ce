// Package app wires config into the ledger client, repositories and the sync engine.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/config"
	"github.com/d60-Lab/solcials-sync/internal/cache"
	"github.com/d60-Lab/solcials-sync/internal/pda"
	"github.com/d60-Lab/solcials-sync/internal/realtime"
	"github.com/d60-Lab/solcials-sync/internal/repository"
	"github.com/d60-Lab/solcials-sync/internal/rpc"
	"github.com/d60-Lab/solcials-sync/internal/service"
	"github.com/d60-Lab/solcials-sync/internal/transport"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

type App struct {
	Config    *config.Config
	ProgramID solana.PublicKey
	Treasury  solana.PublicKey
	Clock     clockwork.Clock
	Store     cache.Store
	Client    *rpc.Client
	Deriver   *pda.Deriver
	Repos     service.RelationshipDeps
	// Signer 为 nil 表示只读模式
	Signer service.Signer

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.Ledger.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("parse program id: %w", err)
	}
	treasury, err := solana.PublicKeyFromBase58(cfg.Ledger.Treasury)
	if err != nil {
		return nil, fmt.Errorf("parse treasury: %w", err)
	}

	clock := clockwork.NewRealClock()
	store, closeStore, err := cache.Open(ctx, cfg.Cache, clock)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	a := &App{
		Config:    cfg,
		ProgramID: programID,
		Treasury:  treasury,
		Clock:     clock,
		Store:     store,
		Deriver:   pda.New(programID),
		closers:   []func() error{closeStore},
	}
	a.Client = rpc.NewClient(transport.New(cfg.Ledger.RPCURL), store, rpc.PolicyFromConfig(cfg), rpc.WithClock(clock))

	if cfg.Wallet.KeypairPath != "" {
		signer, err := service.LoadKeypairSigner(cfg.Wallet.KeypairPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		addr, _ := signer.CurrentAddress()
		logger.Info("wallet loaded", zap.String("address", addr.String()))
		a.Signer = signer
	}

	a.Repos = service.RelationshipDeps{
		Follows:  repository.NewFollowRepository(a.Client, a.Deriver),
		Fans:     repository.NewFanRepository(a.Client, a.Deriver),
		Likes:    repository.NewLikeRepository(a.Client, a.Deriver),
		Profiles: repository.NewProfileRepository(a.Client, a.Deriver),
		Posts:    repository.NewPostRepository(a.Client, a.Deriver),
	}
	return a, nil
}

func (a *App) Publisher() *service.Publisher {
	return service.NewPublisher(a.Client, a.Signer)
}

// Engine 按配置构建同步引擎；配置了 relay_channel 时通过 redis 在多个实例间共享新帖
func (a *App) Engine() *realtime.Engine {
	cfg := a.Config.Sync
	ec := realtime.EngineConfig{
		ProgramID: a.ProgramID,
		Poller: realtime.PollerConfig{
			Interval:         cfg.PollInterval,
			Limit:            cfg.PollLimit,
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.Cooldown,
			Timeout:          a.Config.RateLimit.RequestTimeout,
		},
	}
	if cfg.Streaming {
		sc := realtime.DefaultStreamConfig(a.Config.Ledger.WSURL, a.ProgramID)
		sc.Heartbeat = cfg.Heartbeat
		sc.ReconnectBase = cfg.ReconnectBase
		sc.ReconnectCap = cfg.ReconnectCap
		sc.MaxReconnects = cfg.MaxReconnects
		ec.Stream = &sc
	}

	opts := []realtime.EngineOption{
		realtime.WithEngineErrors(func(err error) {
			logger.Warn("sync engine error", zap.Error(err))
			// sentry 未初始化时为空操作
			sentry.CaptureException(err)
		}),
	}
	if cfg.RelayChannel != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Cache.RedisAddr,
			Password: a.Config.Cache.RedisPassword,
		})
		a.closers = append(a.closers, client.Close)
		opts = append(opts, realtime.WithRelay(realtime.NewRelay(client, cfg.RelayChannel, "")))
	}
	return realtime.NewEngine(ec, a.Repos.Posts, a.Client, opts...)
}

// HTTPClient 媒体上传与网关探测共用
func (a *App) HTTPClient() *http.Client {
	return &http.Client{Timeout: a.Config.RateLimit.RequestTimeout}
}

func (a *App) Close() {
	a.Client.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close resource", zap.Error(err))
		}
	}
}
