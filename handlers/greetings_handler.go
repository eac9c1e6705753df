package handlers

import (
	"fmt"
	"net/http"

	"github.com/upb/token-auth-api/middleware"
	"github.com/upb/token-auth-api/utils"
)

// GreetingResponse is the body of the greeting endpoints
type GreetingResponse struct {
	Message string `json:"message"`
}

// HandlePublicGreeting handles GET /api/greetings/public
func HandlePublicGreeting(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, GreetingResponse{Message: "Hello from a public endpoint!"})
}

// HandleProtectedGreeting handles GET /api/greetings/protected
func HandleProtectedGreeting(w http.ResponseWriter, r *http.Request) {
	username := middleware.GetSecurityContext(r.Context()).Username()
	_ = utils.WriteJSON(w, http.StatusOK, GreetingResponse{
		Message: fmt.Sprintf("Hello %s, this is a protected endpoint!", username),
	})
}
