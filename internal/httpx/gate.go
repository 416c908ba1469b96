package httpx

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/auth"
	"github.com/NordCoder/Gatekeep/internal/obs"
)

const (
	MsgTokenMissing = "No token, authorization denied"
	MsgTokenInvalid = "Token is not valid"
)

type TokenValidator interface {
	Validate(token string) (auth.Identity, error)
}

type Outcome int

const (
	Allow Outcome = iota
	DenyUnauthorized
	DenyForbidden
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case DenyUnauthorized:
		return "unauthorized"
	default:
		return "forbidden"
	}
}

type Decision struct {
	Outcome  Outcome
	Reason   auth.Reason
	Identity auth.Identity
}

var gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_gate_decisions_total",
	Help: "Auth gate decisions by outcome and rejection reason.",
}, []string{"outcome", "reason"})

// ExtractToken reads a raw token or a "Bearer <token>" value from an Authorization header.
func ExtractToken(header string) (string, bool) {
	h := strings.TrimSpace(header)
	switch {
	case strings.EqualFold(h, "bearer"):
		h = ""
	case len(h) > 7 && strings.EqualFold(h[:7], "bearer "):
		h = strings.TrimSpace(h[7:])
	}
	return h, h != ""
}

// Evaluate runs the gate state machine for one Authorization header value.
func Evaluate(v TokenValidator, header string) Decision {
	token, ok := ExtractToken(header)
	if !ok {
		return Decision{Outcome: DenyUnauthorized, Reason: auth.ReasonMissing}
	}
	id, err := v.Validate(token)
	if err != nil {
		reason := auth.ReasonOf(err)
		if reason == auth.ReasonMissing {
			return Decision{Outcome: DenyUnauthorized, Reason: reason}
		}
		if reason == auth.ReasonNone {
			reason = auth.ReasonMalformed
		}
		return Decision{Outcome: DenyForbidden, Reason: reason}
	}
	return Decision{Outcome: Allow, Identity: id}
}

// Gate rejects requests without a valid token: 401 when none was supplied, 403 when it was rejected.
// On success the identity is attached to the request context.
func Gate(v TokenValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		d := Evaluate(v, c.GetHeader("Authorization"))
		gateDecisions.WithLabelValues(d.Outcome.String(), d.Reason.String()).Inc()

		switch d.Outcome {
		case DenyUnauthorized:
			Abort(c, http.StatusUnauthorized, MsgTokenMissing)
			return
		case DenyForbidden:
			obs.WithTrace(c.Request.Context(), log).Debug("auth.gate.deny",
				zap.String("path", c.FullPath()),
				zap.Stringer("reason", d.Reason),
			)
			Abort(c, http.StatusForbidden, MsgTokenInvalid)
			return
		}

		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), d.Identity))
		c.Next()
	}
}
