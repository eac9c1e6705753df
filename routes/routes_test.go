package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/token-auth-api/app"
	"github.com/upb/token-auth-api/config"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories/memory"
	"github.com/upb/token-auth-api/services"
	"github.com/upb/token-auth-api/token"
	"go.uber.org/zap"
)

var testSecret = []byte("routes-test-secret-0123456789abcdef")

type server struct {
	deps    *app.Dependencies
	handler http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Port: 8080},
		Token: config.TokenConfig{
			Secret:       testSecret,
			Issuer:       "token-auth-api",
			TTL:          time.Hour,
			RefreshLimit: 1,
			ClockSkew:    time.Second,
		},
		Auth:  config.AuthConfig{BcryptCost: 4},
		Audit: config.AuditConfig{BufferSize: 100, WorkerCount: 1},
		CORS:  config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Observability: config.ObservabilityConfig{
			LogLevel: "info",
		},
	}

	deps, err := app.NewDependencies(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(ctx) })

	create := func(username, password string, authorities ...models.Authority) *models.User {
		user, err := deps.UserService.CreateUser(ctx, services.CreateUserInput{
			Username:    username,
			Email:       username + "@example.com",
			Password:    password,
			Authorities: authorities,
		})
		require.NoError(t, err)
		return user
	}
	create("alice", "wonderland", models.AuthorityAdmin, models.AuthorityUser)
	create("bob", "the-builder", models.AuthorityUser)
	carol := create("carol", "disabled-account", models.AuthorityUser)
	require.NoError(t, deps.Users.(*memory.UserRepository).SetActive(carol.ID, false))

	return &server{deps: deps, handler: SetupRoutes(deps)}
}

func (s *server) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *server) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth", "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response models.AuthenticationToken
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotEmpty(t, response.Token)
	return response.Token
}

func TestLoginAndRefresh(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	original := s.login(t, "alice", "wonderland")
	originalClaims, err := s.deps.Tokens.ParseToken(ctx, original)
	require.NoError(t, err)
	assert.Equal(t, "alice", originalClaims.Username)
	assert.ElementsMatch(t, []string{"ADMIN", "USER"}, originalClaims.Authorities)

	w := s.do(t, http.MethodPost, "/auth/refresh", original, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var refreshed models.AuthenticationToken
	require.NoError(t, json.NewDecoder(w.Body).Decode(&refreshed))
	refreshedClaims, err := s.deps.Tokens.ParseToken(ctx, refreshed.Token)
	require.NoError(t, err)

	assert.Equal(t, "alice", refreshedClaims.Username)
	assert.ElementsMatch(t, originalClaims.Authorities, refreshedClaims.Authorities)
	assert.True(t, refreshedClaims.ExpiresAt.After(originalClaims.ExpiresAt))

	t.Run("refreshed token no longer authenticates", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/greetings/protected", original, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("refresh limit is enforced", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/auth/refresh", refreshed.Token, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("login by email", func(t *testing.T) {
		s.login(t, "alice@example.com", "wonderland")
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(s.deps.Metrics.TokensIssued.WithLabelValues("login")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.deps.Metrics.TokensIssued.WithLabelValues("refresh")))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newServer(t)

	attempts := []string{
		`{"username":"alice","password":"wrong-password"}`,
		`{"username":"nobody","password":"wrong-password"}`,
		`{"username":"carol","password":"disabled-account"}`,
	}

	var bodies []string
	for _, body := range attempts {
		w := s.do(t, http.MethodPost, "/auth", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		bodies = append(bodies, w.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
	assert.Equal(t, 3.0, testutil.ToFloat64(s.deps.Metrics.LoginFailures))
}

func TestLoginBadRequest(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/auth", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/auth", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnonymousAccess(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"public greeting", http.MethodGet, "/api/greetings/public", http.StatusOK},
		{"protected greeting", http.MethodGet, "/api/greetings/protected", http.StatusUnauthorized},
		{"current user", http.MethodGet, "/api/users/me", http.StatusOK},
		{"user list", http.MethodGet, "/api/users", http.StatusUnauthorized},
		{"refresh", http.MethodPost, "/auth/refresh", http.StatusUnauthorized},
		{"liveness", http.MethodGet, "/healthz", http.StatusOK},
		{"readiness", http.MethodGet, "/readyz", http.StatusOK},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, "", "")
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, `Bearer realm="api"`, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRoleBasedAccess(t *testing.T) {
	s := newServer(t)
	alice := s.login(t, "alice", "wonderland")
	bob := s.login(t, "bob", "the-builder")

	t.Run("user without admin authority is forbidden", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/users", bob, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin lists users", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/users", alice, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":3`)
		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("protected greeting names the caller", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/greetings/protected", bob, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "bob")
	})

	t.Run("current user", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/users/me", bob, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"authenticated":true`)
		assert.Contains(t, w.Body.String(), `"username":"bob"`)
	})
}

func TestInvalidTokensDowngradeToAnonymous(t *testing.T) {
	s := newServer(t)
	valid := s.login(t, "bob", "the-builder")

	// Signed with the server secret, but issued two hours ago with a one hour TTL
	past := time.Now().Add(-2 * time.Hour)
	oldTokens, err := token.NewService(token.Config{
		Secret: testSecret,
		Issuer: "token-auth-api",
		TTL:    time.Hour,
	}, token.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, err := oldTokens.IssueToken("bob", []string{"USER"})
	require.NoError(t, err)

	tampered := valid[:len(valid)-3] + "abc"
	if tampered == valid {
		tampered = valid[:len(valid)-3] + "xyz"
	}

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"tampered", tampered},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" on protected route", func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/greetings/protected", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})

		t.Run(tt.name+" on public route", func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/greetings/public", tt.token, "")
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	assert.GreaterOrEqual(t, testutil.ToFloat64(s.deps.Metrics.Authentications.WithLabelValues("invalid", "expired")), 2.0)
}

func TestDeactivatedUserLosesAccess(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	bob := s.login(t, "bob", "the-builder")

	w := s.do(t, http.MethodGet, "/api/greetings/protected", bob, "")
	require.Equal(t, http.StatusOK, w.Code)

	user, err := s.deps.Users.FindByUsernameOrEmail(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, s.deps.Users.(*memory.UserRepository).SetActive(user.ID, false))

	w = s.do(t, http.MethodGet, "/api/greetings/protected", bob, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEmailShapedSubjectCannotBorrowIdentity(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	_, err := s.deps.UserService.CreateUser(ctx, services.CreateUserInput{
		Username:    "alice@example.com",
		Email:       "mallory@example.com",
		Password:    "mallory-password",
		Authorities: []models.Authority{models.AuthorityUser},
	})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	// A validly signed token whose subject is alice's email resolves to nobody
	forged, err := s.deps.Tokens.IssueToken("alice@example.com", []string{"USER"})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		w := s.do(t, http.MethodGet, "/api/users", forged, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/users/me", forged, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)
	assert.Equal(t, 21.0, testutil.ToFloat64(s.deps.Metrics.Authentications.WithLabelValues("invalid", "unknown_user")))
}
