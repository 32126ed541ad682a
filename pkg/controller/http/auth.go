package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
)

var errUnauthorized = goerr.New("authentication required")

// bearerAuth rejects requests whose bearer token does not equal token
func bearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, given, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				errutil.HandleHTTP(r.Context(), w, errUnauthorized, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(given)), expected) != 1 {
				errutil.HandleHTTP(r.Context(), w,
					goerr.Wrap(errUnauthorized, "invalid token"),
					http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
