// Package metadata copies caller identification headers into the request
// context so identity events carry a run ID and operator.
package metadata

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"roster/pkg/requestcontext"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderOperator  = "X-Operator"
)

// RunMetadata uses X-Request-ID as the run ID, generating one when absent,
// and echoes it on the response.
func RunMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if runID == "" {
			runID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, runID)

		ctx := requestcontext.WithRunID(r.Context(), runID)
		if op := strings.TrimSpace(r.Header.Get(HeaderOperator)); op != "" {
			ctx = requestcontext.WithOperator(ctx, op)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
