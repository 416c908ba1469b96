package identity_config

import (
	"time"

	"github.com/NordCoder/Gatekeep/internal/auth"
	"github.com/NordCoder/Gatekeep/internal/httpx"
	"github.com/NordCoder/Gatekeep/internal/obs"
	"github.com/NordCoder/Gatekeep/internal/outbox"
	pg "github.com/NordCoder/Gatekeep/internal/repository/postgres"
	"github.com/NordCoder/Gatekeep/internal/services/identity"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Auth struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type Identity struct {
	identity.Routes `mapstructure:",squash"`
	RegisterRole    string `mapstructure:"register_role"`
}

type Events struct {
	Enable  bool                `mapstructure:"enable"`
	Brokers []string            `mapstructure:"brokers"`
	Topic   string              `mapstructure:"topic"`
	Outbox  outbox.RunnerConfig `mapstructure:"outbox"`
}

type Config struct {
	App      App               `mapstructure:"app"`
	Server   Server            `mapstructure:"server"`
	DB       pg.Config         `mapstructure:"db"`
	OTEL     OTEL              `mapstructure:"otel"`
	Log      Log               `mapstructure:"log"`
	Auth     Auth              `mapstructure:"auth"`
	Password auth.HasherConfig `mapstructure:"password"`
	Identity Identity          `mapstructure:"identity"`
	Events   Events            `mapstructure:"events"`
	CORS     httpx.CORSConfig  `mapstructure:"cors"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
