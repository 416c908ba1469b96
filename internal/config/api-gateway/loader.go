package api_gateway_config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	ErrNoSecret ErrConfig = "auth.jwt_secret (JWT_SECRET) is required"
	ErrNoRoutes ErrConfig = "at least one route is required"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("app.name", "api-gateway")
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":3000")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("upstream.timeout", "10s")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "api-gateway")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-Id"})

	v.SetDefault("routes", []map[string]any{
		{"prefix": "/auth-service", "upstream": "http://auth-service:3001/auth", "protected": false},
		{"prefix": "/role-service", "upstream": "http://role-service:3002/roles", "protected": true},
	})

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("gateway_port", "GATEWAY_PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if port := v.GetString("gateway_port"); port != "" {
		cfg.Server.HTTPAddr = ":" + port
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	if len(cfg.Routes) == 0 {
		return nil, ErrNoRoutes
	}
	return &cfg, nil
}
