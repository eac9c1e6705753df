package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/token-auth-api/middleware"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/utils"
	"go.uber.org/zap"
)

// UserReader is the read side of the user service
type UserReader interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CurrentUser(ctx context.Context, identity *models.UserIdentity) (*models.User, error)
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Active      bool      `json:"active"`
	Authorities []string  `json:"authorities"`
	CreatedAt   string    `json:"created_at"`
}

// UserListResponse is a page of users
type UserListResponse struct {
	Users  []UserResponse `json:"users"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// CurrentUserResponse describes the caller. User is omitted for anonymous callers.
type CurrentUserResponse struct {
	Authenticated bool          `json:"authenticated"`
	Scheme        string        `json:"scheme,omitempty"`
	Secure        bool          `json:"secure"`
	User          *UserResponse `json:"user,omitempty"`
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	users  UserReader
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserReader, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// HandleListUsers handles GET /api/users
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := utils.QueryInt(r, "limit", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	offset, err := utils.QueryInt(r, "offset", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	h.logger.Debug("listing users",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	users, total, err := h.users.ListUsers(ctx, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	response := UserListResponse{
		Users:  make([]UserResponse, 0, len(users)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, u := range users {
		response.Users = append(response.Users, toUserResponse(u))
	}

	_ = utils.WriteOK(w, response)
}

// HandleGetUser handles GET /api/users/{userID}
func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.ParseUUID(chi.URLParam(r, "userID"), "user ID")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, toUserResponse(user))
}

// HandleCurrentUser handles GET /api/users/me
func (h *UserHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := middleware.GetSecurityContext(ctx)

	response := CurrentUserResponse{
		Authenticated: sc.IsAuthenticated(),
		Scheme:        sc.AuthenticationScheme(),
		Secure:        sc.IsSecure(),
	}

	if sc.IsAuthenticated() {
		user, err := h.users.CurrentUser(ctx, sc.Identity())
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		u := toUserResponse(user)
		response.User = &u
	}

	_ = utils.WriteOK(w, response)
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Active:      u.Active,
		Authorities: u.AuthorityNames(),
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}
