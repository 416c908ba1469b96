package identity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/auth"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/httpx"
	"github.com/NordCoder/Gatekeep/internal/obs"
)

const (
	MsgFieldsRequired = "All fields are required"
	MsgBadRequest     = "Invalid request body"
	MsgBadUserID      = "Invalid user id"
	MsgUnauthorized   = "Unauthorized"
	MsgTokenValid     = "Token is valid"
	MsgTokenRejected  = "Invalid or expired token"
)

type Service interface {
	Register(ctx context.Context, in RegisterInput) (auth.Identity, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	GetUser(ctx context.Context, id int64) (user.Projection, error)
	UpdateUser(ctx context.Context, id int64, in UpdateInput) (user.Projection, error)
	ListUsers(ctx context.Context, page, limit int) (*UserPage, error)
}

var _ Service = (*Usecase)(nil)

var errFieldsRequired = newError(KindValidation, MsgFieldsRequired, nil)

type Handler struct {
	svc    Service
	tokens httpx.TokenValidator
	log    *zap.Logger
}

func NewHandler(svc Service, tokens httpx.TokenValidator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, tokens: tokens, log: log}
}

// registerRequest accepts the display name as either "name" or "username".
type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// loginRequest accepts the email in "email", or in "username" for older clients.
type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type updateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email" binding:"omitempty,email"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errFieldsRequired)
		return
	}
	name := req.Username
	if name == "" {
		name = req.Name
	}
	if name == "" {
		h.fail(c, errFieldsRequired)
		return
	}
	// bcrypt's limit is in bytes; binding's max counts runes
	if len(req.Password) > auth.MaxPasswordBytes {
		h.fail(c, newError(KindValidation, MsgPasswordTooLong, nil))
		return
	}

	id, err := h.svc.Register(c.Request.Context(), RegisterInput{Username: name, Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(c, err)
		return
	}
	httpx.OK(c, http.StatusCreated, id, MsgUserCreated)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errFieldsRequired)
		return
	}
	email := req.Email
	if email == "" {
		email = req.Username
	}
	if email == "" {
		h.fail(c, errFieldsRequired)
		return
	}

	res, err := h.svc.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, res, MsgLoginOK)
}

// Validate reports whether the caller's token is acceptable without going through the gate.
func (h *Handler) Validate(c *gin.Context) {
	d := httpx.Evaluate(h.tokens, c.GetHeader("Authorization"))
	switch d.Outcome {
	case httpx.DenyUnauthorized:
		h.fail(c, newError(KindTokenMissing, MsgUnauthorized, nil))
	case httpx.DenyForbidden:
		obs.WithTrace(c.Request.Context(), h.log).Debug("identity.validate.reject", zap.Stringer("reason", d.Reason))
		h.fail(c, newError(KindTokenInvalid, MsgTokenRejected, nil))
	default:
		httpx.OK(c, http.StatusOK, d.Identity, MsgTokenValid)
	}
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	p, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, p, MsgUserFetched)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, newError(KindValidation, MsgBadRequest, err))
		return
	}

	p, err := h.svc.UpdateUser(c.Request.Context(), id, UpdateInput{Username: req.Username, Email: req.Email})
	if err != nil {
		h.fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, p, MsgUserUpdated)
}

func (h *Handler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultPageLimit)))

	res, err := h.svc.ListUsers(c.Request.Context(), page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, res, MsgUsersFetched)
}

func (h *Handler) Health(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		httpx.OK(c, http.StatusOK, gin.H{"service": service}, service+" is running")
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		obs.WithTrace(c.Request.Context(), h.log).Error("identity.unclassified", zap.Error(err))
		e = newError(KindServer, MsgServerError, err)
	}
	httpx.Fail(c, e.Kind.Status(), e.Message)
}

func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(c, KindValidation.Status(), MsgBadUserID)
		return 0, false
	}
	return id, true
}
