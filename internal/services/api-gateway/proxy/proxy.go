// Package proxy forwards gateway routes to the identity services, gating the protected ones.
package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/auth"
	"github.com/NordCoder/Gatekeep/internal/httpx"
	"github.com/NordCoder/Gatekeep/internal/obs"
)

const (
	HeaderUserID      = "X-User-Id"
	MsgUpstreamFailed = "Service unavailable"
)

type Route struct {
	Prefix    string
	Upstream  string
	Protected bool
}

type Opts struct {
	Routes    []Route
	Tokens    httpx.TokenValidator
	CORS      httpx.CORSConfig
	Log       *zap.Logger
	Transport http.RoundTripper
	Now       func() time.Time
}

// NewRouter builds the gateway engine: /api/health plus one catch-all per route.
func NewRouter(o Opts) (*gin.Engine, error) {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := o.Now
	if now == nil {
		now = time.Now
	}
	transport := obs.HTTPTransport(o.Transport)

	r := gin.New()
	r.Use(httpx.Standard("api-gateway", log, o.CORS)...)
	obs.MountProbes(r, nil)

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "UP",
			"timestamp": now().UTC().Format(time.RFC3339Nano),
		})
	})

	for _, rt := range o.Routes {
		rp, err := newReverseProxy(rt, transport, log)
		if err != nil {
			return nil, err
		}
		handlers := []gin.HandlerFunc{}
		if rt.Protected {
			handlers = append(handlers, httpx.Gate(o.Tokens, log))
		}
		handlers = append(handlers, gin.WrapH(rp))
		r.Any(strings.TrimSuffix(rt.Prefix, "/")+"/*path", handlers...)
		log.Info("gateway route",
			zap.String("prefix", rt.Prefix), zap.String("upstream", rt.Upstream), zap.Bool("protected", rt.Protected))
	}
	return r, nil
}

func newReverseProxy(rt Route, transport http.RoundTripper, log *zap.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rt.Upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("route %s: invalid upstream %q", rt.Prefix, rt.Upstream)
	}
	prefix := strings.TrimSuffix(rt.Prefix, "/")

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, prefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host

			// Never trust a caller-supplied identity header.
			pr.Out.Header.Del(HeaderUserID)
			if id, ok := auth.IdentityFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderUserID, strconv.FormatInt(id.ID, 10))
			}
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			obs.WithTrace(req.Context(), log).Warn("gateway upstream error",
				zap.String("prefix", rt.Prefix), zap.String("upstream", rt.Upstream), zap.Error(err))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(httpx.Envelope{
				Success: false, Message: MsgUpstreamFailed, StatusCode: http.StatusBadGateway,
			})
		},
	}, nil
}
