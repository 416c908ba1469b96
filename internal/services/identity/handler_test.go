package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/httpx"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode"`
}

type apiClient struct {
	t *testing.T
	r http.Handler
}

func newAPI(t *testing.T, f *fixture, routes Routes) *apiClient {
	t.Helper()
	h := NewHandler(f.uc, f.tokens, zap.NewNop())
	return &apiClient{t: t, r: NewRouter(h, RouterOpts{Routes: routes, Log: zap.NewNop()})}
}

func (a *apiClient) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHTTP_AliceScenario(t *testing.T) {
	f := newFixture(t, user.RoleCustomer)
	api := newAPI(t, f, RoleServiceRoutes())

	code, env := api.do(http.MethodPost, "/roles/", "", gin.H{"username": "alice", "email": "a@x.com", "password": "secret123"})
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, env.Success)
	assert.Equal(t, MsgUserCreated, env.Message)
	created := decode[map[string]any](t, env.Data)
	assert.Equal(t, "alice", created["username"])
	assert.Equal(t, "a@x.com", created["email"])
	assert.NotNil(t, created["id"])
	assert.NotContains(t, string(env.Data), "password")

	code, env = api.do(http.MethodPost, "/roles/login", "", gin.H{"email": "a@x.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgLoginOK, env.Message)
	login := decode[LoginResult](t, env.Data)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "a@x.com", login.User.Email)
	assert.NotContains(t, string(env.Data), "password_hash")

	code, env = api.do(http.MethodGet, "/roles/validate", "Bearer "+login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgTokenValid, env.Message)

	code, env = api.do(http.MethodGet, "/roles/users/1", "Bearer "+login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	p := decode[user.Projection](t, env.Data)
	assert.Equal(t, user.RoleCustomer, p.Role)
}

func TestHTTP_RegisterAcceptsName(t *testing.T) {
	f := newFixture(t, user.RoleAdmin)
	api := newAPI(t, f, AuthServiceRoutes())

	code, env := api.do(http.MethodPost, "/auth/register-admin", "", gin.H{"name": "root", "email": "root@x.io", "password": "pw"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "root", decode[map[string]any](t, env.Data)["username"])

	code, env = api.do(http.MethodPost, "/auth/register-admin", "", gin.H{"name": "root", "email": "root@x.io", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgUserExists, env.Message)
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)
}

func TestHTTP_RegisterValidation(t *testing.T) {
	f := newFixture(t, user.RoleCustomer)
	api := newAPI(t, f, RoleServiceRoutes())

	for _, body := range []gin.H{
		{"email": "a@x.com", "password": "pw"},
		{"username": "a", "password": "pw"},
		{"username": "a", "email": "a@x.com"},
		{"username": "a", "email": "not-an-email", "password": "pw"},
	} {
		code, env := api.do(http.MethodPost, "/roles/", "", body)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, MsgFieldsRequired, env.Message)
	}
	assert.Zero(t, f.users.count())
}

func TestHTTP_RegisterPasswordByteLimit(t *testing.T) {
	f := newFixture(t, user.RoleAdmin)
	api := newAPI(t, f, AuthServiceRoutes())

	// 72 runes but 144 bytes: over bcrypt's limit
	code, env := api.do(http.MethodPost, "/auth/register-admin", "", gin.H{
		"username": "root", "email": "root@x.io", "password": strings.Repeat("é", 72),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgPasswordTooLong, env.Message)
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)
	assert.Zero(t, f.users.count())

	code, _ = api.do(http.MethodPost, "/auth/register-admin", "", gin.H{
		"username": "root", "email": "root@x.io", "password": strings.Repeat("é", 36),
	})
	assert.Equal(t, http.StatusCreated, code)
}

func TestHTTP_LoginByUsernameField(t *testing.T) {
	f := newFixture(t, user.RoleAdmin)
	api := newAPI(t, f, AuthServiceRoutes())
	register(t, f, "root", "root@x.io")

	code, _ := api.do(http.MethodPost, "/auth/login", "", gin.H{"username": "root@x.io", "password": "secret123"})
	assert.Equal(t, http.StatusOK, code)

	code, env := api.do(http.MethodPost, "/auth/login", "", gin.H{"username": "root@x.io", "password": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgInvalidCredentials, env.Message)

	code, env = api.do(http.MethodPost, "/auth/login", "", gin.H{"email": "ghost@x.io", "password": "nope"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, MsgInvalidCredentials, env.Message)
}

func TestHTTP_GateDistinguishesMissingFromInvalid(t *testing.T) {
	f := newFixture(t, user.RoleCustomer)
	api := newAPI(t, f, RoleServiceRoutes())
	register(t, f, "alice", "a@x.com")

	code, env := api.do(http.MethodGet, "/roles/users/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, httpx.MsgTokenMissing, env.Message)

	code, env = api.do(http.MethodGet, "/roles/users/1", "Bearer not.a.token", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, httpx.MsgTokenInvalid, env.Message)

	code, env = api.do(http.MethodGet, "/roles/validate", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, MsgUnauthorized, env.Message)

	code, env = api.do(http.MethodGet, "/roles/validate", "Bearer not.a.token", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, MsgTokenRejected, env.Message)
}

func TestHTTP_PartialUpdate(t *testing.T) {
	f := newFixture(t, user.RoleCustomer)
	api := newAPI(t, f, AuthServiceRoutes())
	id := register(t, f, "alice", "a@x.com")
	res, err := f.uc.Login(t.Context(), "a@x.com", "secret123")
	require.NoError(t, err)
	bearer := "Bearer " + res.Token

	code, env := api.do(http.MethodPut, "/auth/users/1", bearer, gin.H{"username": "bob"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgUserUpdated, env.Message)
	p := decode[user.Projection](t, env.Data)
	assert.Equal(t, "bob", p.Username)
	assert.Equal(t, id.Email, p.Email)

	code, env = api.do(http.MethodPut, "/auth/users/1", bearer, nil)
	require.Equal(t, http.StatusOK, code)
	p = decode[user.Projection](t, env.Data)
	assert.Equal(t, "bob", p.Username)
	assert.Equal(t, id.Email, p.Email)

	code, env = api.do(http.MethodPut, "/auth/users/abc", bearer, gin.H{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgBadUserID, env.Message)

	code, env = api.do(http.MethodGet, "/auth/users/77", bearer, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, MsgUserNotFound, env.Message)
}

func TestHTTP_ListUsers(t *testing.T) {
	f := newFixture(t, user.RoleAdmin)
	api := newAPI(t, f, AuthServiceRoutes())
	register(t, f, "a", "a@x.io")
	register(t, f, "b", "b@x.io")
	register(t, f, "c", "c@x.io")

	code, env := api.do(http.MethodGet, "/auth/users?page=2&limit=2", "", nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[UserPage](t, env.Data)
	assert.Equal(t, 3, page.TotalUsers)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 2, page.CurrentPage)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "a", page.Users[0].Username)
}

func TestHTTP_Health(t *testing.T) {
	f := newFixture(t, user.RoleCustomer)
	api := newAPI(t, f, RoleServiceRoutes())

	code, env := api.do(http.MethodGet, "/roles/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}
