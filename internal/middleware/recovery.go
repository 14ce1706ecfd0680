package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/finbot/finbot/internal/models"
	"github.com/rs/zerolog/log"
)

// PanicRecorder receives recovered handler panics. *security.AuditLogger satisfies it.
type PanicRecorder interface {
	LogPanic(requestID, route string, recovered any)
}

// Recovery answers a panicking handler with 500 and reports the panic to
// audit, which may be nil. It must run inside RequestID to log the id.
func Recovery(audit PanicRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				reqID := GetRequestID(r.Context())
				route := routePattern(r)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", reqID).
					Str("route", route).
					Msg("handler panicked")
				if audit != nil {
					audit.LogPanic(reqID, route, rec)
				}
				models.WriteError(w, http.StatusInternalServerError, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
