//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cfg struct {
	GatewayBase string // http://localhost:3000
	AuthBase    string // http://localhost:3001
}

func loadCfg() cfg {
	return cfg{
		GatewayBase: getenv("E2E_GATEWAY_BASE", "http://localhost:3000"),
		AuthBase:    getenv("E2E_AUTH_BASE", "http://localhost:3001"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode"`
}

type loginData struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	} `json:"user"`
}

var client = &http.Client{Timeout: 10 * time.Second}

func call(t *testing.T, method, url, bearer string, in any) (int, envelope) {
	t.Helper()
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "%s %s => %s", method, url, raw)
	return resp.StatusCode, env
}

func TestE2E_RegisterLoginThroughGateway(t *testing.T) {
	c := loadCfg()
	email := fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano())

	code, env := call(t, http.MethodPost, c.GatewayBase+"/role-service/", "", map[string]string{
		"username": "e2e", "email": email, "password": "secret123",
	})
	// role-service routes sit behind the gate, even registration
	require.Equal(t, http.StatusUnauthorized, code, env.Message)

	code, env = call(t, http.MethodPost, c.AuthBase+"/auth/register-admin", "", map[string]string{
		"name": "e2e-admin", "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = call(t, http.MethodPost, c.GatewayBase+"/auth-service/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	var login loginData
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)
	assert.Equal(t, "ADMIN", login.User.Role)

	userURL := fmt.Sprintf("%s/auth-service/users/%d", c.GatewayBase, login.User.ID)

	code, _ = call(t, http.MethodGet, userURL, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, http.MethodGet, userURL, "not-a-token", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = call(t, http.MethodPut, userURL, login.Token, map[string]string{"username": "renamed"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Contains(t, string(env.Data), `"renamed"`)
	assert.Contains(t, string(env.Data), email)

	code, env = call(t, http.MethodGet, c.GatewayBase+"/auth-service/validate", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Token is valid", env.Message)
}

func TestE2E_GatewayHealth(t *testing.T) {
	c := loadCfg()
	resp, err := client.Get(c.GatewayBase + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "UP", body["status"])
}
