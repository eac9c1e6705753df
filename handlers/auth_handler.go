package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/token-auth-api/middleware"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/token"
	"github.com/upb/token-auth-api/utils"
	"go.uber.org/zap"
)

// maxCredentialsBytes bounds the login request body
const maxCredentialsBytes = 16 << 10

// Authenticator exchanges credentials and tokens
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.AuthenticationToken, error)
	Refresh(ctx context.Context, claims *token.Claims) (*models.AuthenticationToken, error)
}

// AuthHandler handles the token endpoints
type AuthHandler struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth Authenticator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// HandleLogin handles POST /auth
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var creds models.Credentials
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCredentialsBytes))
	if err := decoder.Decode(&creds); err != nil {
		h.logger.Debug("invalid login body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(creds); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.auth.Login(ctx, creds)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	writeToken(w, result, h.logger)
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := middleware.GetSecurityContext(ctx).Claims()
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.auth.Refresh(ctx, claims)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	writeToken(w, result, h.logger)
}

func writeToken(w http.ResponseWriter, result *models.AuthenticationToken, logger *zap.Logger) {
	w.Header().Set("Cache-Control", "no-store")
	if err := utils.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error("failed to write token response", zap.Error(err))
	}
}
