// Package identity assembles an identity deployment (auth-service or role-service) from its config.
package identity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/auth"
	config "github.com/NordCoder/Gatekeep/internal/config/identity"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/obs"
	pg "github.com/NordCoder/Gatekeep/internal/repository/postgres"
	svc "github.com/NordCoder/Gatekeep/internal/services/identity"
)

// Run serves until ctx is cancelled, then shuts down within cfg.Server.GracefulTimeout.
func Run(ctx context.Context, cfg *config.Config) error {
	logger, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting "+cfg.App.Name, zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	otelShutdown, err := initOTel(ctx, cfg)
	if err != nil {
		logger.Error("otel init", zap.Error(err))
		return err
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte(cfg.Auth.JWTSecret), TTL: cfg.Auth.TokenTTL})
	if err != nil {
		return err
	}
	hasher, err := auth.NewHasher(cfg.Password)
	if err != nil {
		return err
	}

	db, err := initDB(ctx, cfg)
	if err != nil {
		logger.Error("db connect", zap.Error(err))
		return err
	}
	defer db.Close()

	ev, err := initEvents(ctx, cfg, db, logger)
	if err != nil {
		logger.Error("events init", zap.Error(err))
		return err
	}
	defer func() { _ = ev.Close() }()

	deps := svc.Deps{
		Users:   pg.NewUserRepo(db),
		Details: pg.NewDetailRepo(db),
		Tx:      pg.NewTransactor(db, logger),
		Hasher:  hasher,
		Tokens:  tokens,
		Log:     logger,
	}
	if ev != nil {
		deps.Events = ev.sink
	}
	uc := svc.NewUsecase(deps, svc.Config{RegisterRole: user.Role(cfg.Identity.RegisterRole)})

	router := svc.NewRouter(svc.NewHandler(uc, tokens, logger), svc.RouterOpts{
		Routes: cfg.Identity.Routes,
		CORS:   cfg.CORS,
		Log:    logger,
		Health: db.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.HTTPHandler(router, cfg.App.Name),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	if ev != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev.runner.Run(runCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case runErr = <-errCh:
		if errors.Is(runErr, http.ErrServerClosed) {
			runErr = nil
		}
		if runErr != nil {
			logger.Error("http serve", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancelRun()
	wg.Wait()

	logger.Info("bye")
	return runErr
}
