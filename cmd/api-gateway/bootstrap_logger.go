package main

import (
	config "github.com/NordCoder/Gatekeep/internal/config/api-gateway"
	"github.com/NordCoder/Gatekeep/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
