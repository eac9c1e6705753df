package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/token-auth-api/app"
	"github.com/upb/token-auth-api/handlers"
	"github.com/upb/token-auth-api/internal/policy"
	"github.com/upb/token-auth-api/utils"
	"go.uber.org/zap"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(deps.Metrics.Instrument)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"WWW-Authenticate", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           deps.Config.CORS.MaxAge,
	}))

	// Every request gets a SecurityContext; each route then declares its operation
	r.Use(deps.AuthMiddleware.Authenticate)
	authorize := deps.AuthzMiddleware.Authorize

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	healthHandler := handlers.NewHealthHandler(db, deps.Logger)
	if deps.RedisStore != nil {
		healthHandler.AddCheck("redis", handlers.PingCheck(deps.RedisStore))
	}
	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.UserService, deps.Logger)

	// Health check endpoints
	r.With(authorize(policy.OpHealth)).Get("/healthz", healthHandler.HandleHealth)
	r.With(authorize(policy.OpReadiness)).Get("/readyz", healthHandler.HandleReadiness)

	// Token endpoints
	r.Route("/auth", func(r chi.Router) {
		r.With(authorize(policy.OpLogin)).Post("/", authHandler.HandleLogin)
		r.With(authorize(policy.OpRefresh)).Post("/refresh", authHandler.HandleRefresh)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/greetings", func(r chi.Router) {
			r.With(authorize(policy.OpPublicGreeting)).Get("/public", handlers.HandlePublicGreeting)
			r.With(authorize(policy.OpProtectedGreeting)).Get("/protected", handlers.HandleProtectedGreeting)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(authorize(policy.OpListUsers)).Get("/", userHandler.HandleListUsers)
			r.With(authorize(policy.OpCurrentUser)).Get("/me", userHandler.HandleCurrentUser)
			r.With(authorize(policy.OpGetUser)).Get("/{userID}", userHandler.HandleGetUser)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusMethodNotAllowed, utils.ErrorResponse{
			Error:   "method_not_allowed",
			Message: "method not allowed",
		})
	})

	return r
}

// requestLogger writes one structured access log line per request.
// The Authorization header is never logged.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
