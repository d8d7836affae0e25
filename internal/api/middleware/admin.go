package middleware

import (
	"net/http"

	"github.com/forgeline/genrelay/internal/api/shared"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the admin key.
const AdminKeyHeader = "X-Admin-Key"

// AdminMiddleware guards administrative routes with a single shared key,
// compared against its bcrypt hash.
type AdminMiddleware struct {
	keyHash []byte
}

// NewAdminMiddleware creates the guard. An empty hash disables every
// admin route.
func NewAdminMiddleware(keyHash string) *AdminMiddleware {
	return &AdminMiddleware{keyHash: []byte(keyHash)}
}

// Enabled reports whether an admin key is configured.
func (m *AdminMiddleware) Enabled() bool {
	return len(m.keyHash) > 0
}

// Authorize rejects requests without the admin key. While disabled, admin
// routes answer 404.
func (m *AdminMiddleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			shared.RespondWithError(w, r, http.StatusNotFound, "Not found")
			return
		}

		key := r.Header.Get(AdminKeyHeader)
		if key == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if err := bcrypt.CompareHashAndPassword(m.keyHash, []byte(key)); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Unauthorized", err,
				shared.WithElevatedLogLevel())
			return
		}
		next.ServeHTTP(w, r)
	})
}
