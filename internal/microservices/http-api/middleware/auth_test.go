package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsdist/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupRouter(t *testing.T, scopes ...string) (*gin.Engine, service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/protected", AuthMiddleware(auth), RequireScopes(scopes...), func(c *gin.Context) {
		subject, _ := c.Get("subject")
		c.String(http.StatusOK, subject.(string))
	})
	return r, auth
}

func request(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r, auth := setupRouter(t, service.ScopePublish)

	valid, err := auth.IssueToken("ops", []string{service.ScopePublish}, time.Minute)
	require.NoError(t, err)
	expired, err := auth.IssueToken("ops", []string{service.ScopePublish}, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(r, tt.header)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := request(r, "Bearer "+valid)
	assert.Equal(t, "ops", w.Body.String())
}

func TestRequireScopes(t *testing.T) {
	r, auth := setupRouter(t, service.ScopeSubscribersWrite)

	tests := []struct {
		name   string
		scopes []string
		status int
	}{
		{"exact scope", []string{service.ScopeSubscribersWrite}, http.StatusOK},
		{"wildcard scope", []string{"subscribers:*"}, http.StatusOK},
		{"admin scope", []string{service.ScopeAdmin}, http.StatusOK},
		{"other scope", []string{service.ScopeSubscribersRead}, http.StatusForbidden},
		{"no scopes", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := auth.IssueToken("ops", tt.scopes, time.Minute)
			require.NoError(t, err)
			w := request(r, "Bearer "+token)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
