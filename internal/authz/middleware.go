package authz

import (
	"encoding/json"
	"net/http"
)

type denial struct {
	Error    string `json:"error"`
	Required Role   `json:"required"`
}

func deny(w http.ResponseWriter, status int, msg string, required Role) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(denial{Error: msg, Required: required})
}

// RequireRole admits requests whose identity holds at least the required role.
// Requests without an identity get 401, known identities below the tier get 403.
func RequireRole(required Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserIDFromRequest(r); !ok {
				deny(w, http.StatusUnauthorized, "authentication required", required)
				return
			}
			role, ok := RoleFromRequest(r)
			if !ok || !role.HasAtLeast(required) {
				deny(w, http.StatusForbidden, "insufficient permissions", required)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRoleHandler(required Role, next http.Handler) http.Handler {
	return RequireRole(required)(next)
}
