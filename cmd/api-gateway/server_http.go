package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/auth"
	config "github.com/NordCoder/Gatekeep/internal/config/api-gateway"
	"github.com/NordCoder/Gatekeep/internal/obs"
	"github.com/NordCoder/Gatekeep/internal/services/api-gateway/proxy"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger) (*http.Server, error) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte(cfg.Auth.JWTSecret)})
	if err != nil {
		return nil, err
	}

	routes := make([]proxy.Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, proxy.Route{Prefix: r.Prefix, Upstream: r.Upstream, Protected: r.Protected})
	}

	router, err := proxy.NewRouter(proxy.Opts{
		Routes: routes,
		Tokens: tokens,
		CORS:   cfg.CORS,
		Log:    logger,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: cfg.Upstream.Timeout,
		},
	})
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.HTTPHandler(router, "api-gateway"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
