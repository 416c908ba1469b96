package identity

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/httpx"
	"github.com/NordCoder/Gatekeep/internal/obs"
)

// Routes describes where one deployment mounts the identity endpoints.
type Routes struct {
	Service      string `mapstructure:"service"`
	Prefix       string `mapstructure:"prefix"`
	RegisterPath string `mapstructure:"register_path"`
	LoginPath    string `mapstructure:"login_path"`
	ListPath     string `mapstructure:"list_path"`
}

func AuthServiceRoutes() Routes {
	return Routes{Service: "auth-service", Prefix: "/auth", RegisterPath: "/register-admin", LoginPath: "/login", ListPath: "/users"}
}

func RoleServiceRoutes() Routes {
	return Routes{Service: "role-service", Prefix: "/roles", RegisterPath: "/", LoginPath: "/login", ListPath: "/"}
}

type RouterOpts struct {
	Routes Routes
	CORS   httpx.CORSConfig
	Log    *zap.Logger
	// Health backs /healthz; nil reports healthy.
	Health func(ctx context.Context) error
}

// NewRouter mounts the public register/login/validate/list endpoints and the gated user endpoints.
func NewRouter(h *Handler, o RouterOpts) *gin.Engine {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	rt := o.Routes

	r := gin.New()
	r.Use(httpx.Standard(rt.Service, log, o.CORS)...)
	obs.MountProbes(r, o.Health)

	g := r.Group(strings.TrimSuffix(rt.Prefix, "/"))
	g.GET("/health", h.Health(rt.Service))
	g.POST(rt.RegisterPath, h.Register)
	g.POST(rt.LoginPath, h.Login)
	g.GET("/validate", h.Validate)
	g.GET(rt.ListPath, h.ListUsers)

	users := g.Group("/users", httpx.Gate(h.tokens, log))
	users.GET("/:userId", h.GetUser)
	users.PUT("/:userId", h.UpdateUser)

	return r
}
