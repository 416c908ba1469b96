package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	app "github.com/NordCoder/Gatekeep/internal/app/identity"
	config "github.com/NordCoder/Gatekeep/internal/config/identity"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/services/identity"
)

func main() {
	cfgPath := flag.String("config", "config/auth-service.yaml", "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath, identity.AuthServiceRoutes(), user.RoleAdmin, 3001)
	if err != nil {
		panic(err)
	}
	if err := app.Run(rootCtx, cfg); err != nil {
		os.Exit(1)
	}
}
