package auth

import (
	"net/http"
)

// AuthResult contains the result of an authentication attempt
type AuthResult struct {
	Authenticated bool
	// Status is 401 for a missing token and 403 for a wrong one.
	Status int
	Error  string
}

// Authenticate checks the Authorization header against adminKey.
// An empty adminKey disables authentication.
func Authenticate(authHeader, adminKey string) AuthResult {
	if adminKey == "" {
		return AuthResult{Authenticated: true}
	}
	token := ExtractBearerToken(authHeader)
	if token == "" {
		return AuthResult{Status: http.StatusUnauthorized, Error: "missing bearer token"}
	}
	if !VerifyAPIKeyConstantTime(token, adminKey) {
		return AuthResult{Status: http.StatusForbidden, Error: "invalid token"}
	}
	return AuthResult{Authenticated: true}
}

// DenyFunc writes the rejection response.
type DenyFunc func(w http.ResponseWriter, r *http.Request, status int, message string)

// RequireAdminKey is a middleware that requires the admin key as a bearer
// token when adminKey is set.
func RequireAdminKey(adminKey string, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := Authenticate(r.Header.Get("Authorization"), adminKey)
			if !result.Authenticated {
				deny(w, r, result.Status, result.Error)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
