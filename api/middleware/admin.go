package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/teamprint-backend/api/responses"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

const adminTokenHeader = "X-Admin-Token"

// AdminToken guards operator endpoints with a shared token sent either as
// X-Admin-Token or as a bearer token. An empty configured token rejects every
// request.
func AdminToken(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(adminTokenHeader))
			if provided == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					provided = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
				}
			}
			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
