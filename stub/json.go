package stub

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/natthaphon/linkfeed/auth"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withClaims(ctx context.Context, claims *auth.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// claimsFrom returns the claims the auth middleware stored on the request.
// It panics if the route was not wrapped with bearerAuth.
func claimsFrom(r *http.Request) *auth.UserClaims {
	return r.Context().Value(claimsKey).(*auth.UserClaims)
}
