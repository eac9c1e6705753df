package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/token-auth-api/middleware"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/services"
	"go.uber.org/zap"
)

// MockUserReader is a mock implementation of UserReader
type MockUserReader struct {
	mock.Mock
}

func (m *MockUserReader) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	args := m.Called(ctx, limit, offset)
	if u := args.Get(0); u != nil {
		return u.([]*models.User), args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *MockUserReader) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserReader) CurrentUser(ctx context.Context, identity *models.UserIdentity) (*models.User, error) {
	args := m.Called(ctx, identity)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleListUsers(t *testing.T) {
	logger := zap.NewNop()

	t.Run("returns page without password hashes", func(t *testing.T) {
		users := new(MockUserReader)
		alice := models.NewUser("alice", "alice@example.com", "$2a$secret-hash", models.AuthorityAdmin)
		users.On("ListUsers", mock.Anything, 10, 5).Return([]*models.User{alice}, 6, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/users?limit=10&offset=5", nil)
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleListUsers(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "secret-hash")

		var response UserListResponse
		decodeData(t, w, &response)
		require.Len(t, response.Users, 1)
		assert.Equal(t, "alice", response.Users[0].Username)
		assert.Equal(t, []string{"ADMIN"}, response.Users[0].Authorities)
		assert.Equal(t, 6, response.Total)
		users.AssertExpectations(t)
	})

	t.Run("empty store returns empty list", func(t *testing.T) {
		users := new(MockUserReader)
		users.On("ListUsers", mock.Anything, 0, 0).Return([]*models.User{}, 0, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleListUsers(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"users":[]`)
	})

	t.Run("invalid limit", func(t *testing.T) {
		users := new(MockUserReader)

		req := httptest.NewRequest(http.MethodGet, "/api/users?limit=abc", nil)
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleListUsers(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		users.AssertNotCalled(t, "ListUsers", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure is internal error", func(t *testing.T) {
		users := new(MockUserReader)
		users.On("ListUsers", mock.Anything, 0, 0).
			Return(nil, 0, services.WrapInternal("failed to list users", errors.New("db down")))

		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleListUsers(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "db down")
	})
}

func TestHandleGetUser(t *testing.T) {
	logger := zap.NewNop()

	t.Run("found", func(t *testing.T) {
		users := new(MockUserReader)
		bob := models.NewUser("bob", "bob@example.com", "hash", models.AuthorityUser)
		users.On("GetUser", mock.Anything, bob.ID).Return(bob, nil)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/users/"+bob.ID.String(), nil), "userID", bob.ID.String())
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleGetUser(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response UserResponse
		decodeData(t, w, &response)
		assert.Equal(t, bob.ID, response.ID)
	})

	t.Run("not found", func(t *testing.T) {
		users := new(MockUserReader)
		id := uuid.New()
		users.On("GetUser", mock.Anything, id).Return(nil, services.ErrUserNotFound)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/users/"+id.String(), nil), "userID", id.String())
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleGetUser(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		users := new(MockUserReader)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/users/nope", nil), "userID", "nope")
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleGetUser(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleCurrentUser(t *testing.T) {
	logger := zap.NewNop()

	t.Run("anonymous caller", func(t *testing.T) {
		users := new(MockUserReader)

		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleCurrentUser(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response CurrentUserResponse
		decodeData(t, w, &response)
		assert.False(t, response.Authenticated)
		assert.Empty(t, response.Scheme)
		assert.Nil(t, response.User)
		users.AssertNotCalled(t, "CurrentUser", mock.Anything, mock.Anything)
	})

	t.Run("authenticated caller", func(t *testing.T) {
		users := new(MockUserReader)
		alice := models.NewUser("alice", "alice@example.com", "hash", models.AuthorityAdmin, models.AuthorityUser)
		users.On("CurrentUser", mock.Anything, mock.MatchedBy(func(i *models.UserIdentity) bool {
			return i.Username == "alice"
		})).Return(alice, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		sc := middleware.NewSecurityContext(alice.Identity(), nil, true)
		req = req.WithContext(middleware.WithSecurityContext(req.Context(), sc))
		w := httptest.NewRecorder()
		NewUserHandler(users, logger).HandleCurrentUser(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response CurrentUserResponse
		decodeData(t, w, &response)
		assert.True(t, response.Authenticated)
		assert.True(t, response.Secure)
		assert.Equal(t, middleware.SchemeBearer, response.Scheme)
		require.NotNil(t, response.User)
		assert.Equal(t, "alice", response.User.Username)
	})
}

func TestGreetings(t *testing.T) {
	t.Run("public", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandlePublicGreeting(w, httptest.NewRequest(http.MethodGet, "/api/greetings/public", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response GreetingResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.NotEmpty(t, response.Message)
	})

	t.Run("protected names the caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/greetings/protected", nil)
		sc := middleware.NewSecurityContext(&models.UserIdentity{Username: "bob"}, nil, false)
		req = req.WithContext(middleware.WithSecurityContext(req.Context(), sc))
		w := httptest.NewRecorder()

		HandleProtectedGreeting(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Hello bob")
	})
}
