package identity_config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/services/identity"
)

const (
	ErrNoSecret  ErrConfig = "auth.jwt_secret (JWT_SECRET) is required"
	ErrNoDSN     ErrConfig = "db.dsn (DB_DSN) is required"
	ErrNoBrokers ErrConfig = "events.brokers is required when events are enabled"
)

// Load reads the config of one identity deployment. routes supplies the deployment's defaults
// (prefix, paths, service name); role is the default registration role.
func Load(path string, routes identity.Routes, role user.Role, port int) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("app.name", routes.Service)
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", fmt.Sprintf(":%d", port))
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")

	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", routes.Service)
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("password.algorithm", "bcrypt")
	v.SetDefault("password.bcrypt_cost", 10)

	v.SetDefault("identity.service", routes.Service)
	v.SetDefault("identity.prefix", routes.Prefix)
	v.SetDefault("identity.register_path", routes.RegisterPath)
	v.SetDefault("identity.login_path", routes.LoginPath)
	v.SetDefault("identity.list_path", routes.ListPath)
	v.SetDefault("identity.register_role", string(role))

	v.SetDefault("events.enable", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "user-events")
	v.SetDefault("events.outbox.workers", 1)
	v.SetDefault("events.outbox.batch_size", 100)
	v.SetDefault("events.outbox.wait_time", "1s")
	v.SetDefault("events.outbox.in_progress_ttl", "1m")
	v.SetDefault("events.outbox.max_attempts", 8)
	v.SetDefault("events.outbox.retry_base", "5s")
	v.SetDefault("events.outbox.retry_max", "10m")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-Id"})

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("auth.token_ttl", "AUTH_TOKEN_TTL", "JWT_EXPIRES_IN")
	_ = v.BindEnv("db.dsn", "DB_DSN")
	_ = v.BindEnv("port", "PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if p := v.GetString("port"); p != "" {
		cfg.Server.HTTPAddr = ":" + p
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	if cfg.DB.DSN == "" {
		return nil, ErrNoDSN
	}
	if r := user.Role(cfg.Identity.RegisterRole); !r.Valid() {
		return nil, ErrConfig(fmt.Sprintf("identity.register_role %q is not a known role", cfg.Identity.RegisterRole))
	}
	if cfg.Events.Enable && len(cfg.Events.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return &cfg, nil
}
