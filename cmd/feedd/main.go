package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/config"
	"github.com/d60-Lab/solcials-sync/internal/api"
	"github.com/d60-Lab/solcials-sync/internal/api/handler"
	"github.com/d60-Lab/solcials-sync/internal/app"
	"github.com/d60-Lab/solcials-sync/internal/media"
	"github.com/d60-Lab/solcials-sync/internal/service"
	"github.com/d60-Lab/solcials-sync/pkg/logger"
	"github.com/d60-Lab/solcials-sync/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Error("feedd exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if cfg.Telemetry.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Telemetry.SentryDSN,
			Environment: cfg.Telemetry.Environment,
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	engine := a.Engine()
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	httpClient := a.HTTPClient()
	pub := a.Publisher()
	h := handler.New(handler.Deps{
		Posts:          a.Repos.Posts,
		Likes:          a.Repos.Likes,
		PostService:    service.NewPostService(pub, a.Repos.Profiles, media.NewPinningUploader(cfg.Media.PinURL, cfg.Media.PinToken, httpClient), a.Deriver, a.Treasury, a.Clock),
		RelService:     service.NewRelationshipService(pub, a.Repos, a.Deriver),
		ProfileService: service.NewProfileService(pub, a.Repos.Profiles, a.Deriver),
		Resolver:       media.NewResolver(cfg.Media.Gateways, a.Store, cfg.Cache.MetadataTTL, httpClient),
		Feed:           engine,
	})

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(api.RouterConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		JWTSecret:   cfg.Auth.JWTSecret,
		Swagger:     cfg.Server.Mode != gin.ReleaseMode,
	}, h)

	srv := &http.Server{Addr: cfg.Server.Port, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("feedd listening",
			zap.String("addr", cfg.Server.Port),
			zap.String("program", a.ProgramID.String()),
			zap.Bool("writable", a.Signer != nil),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
