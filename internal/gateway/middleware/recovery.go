package middleware

import (
	"net/http"
	"runtime/debug"

	"lchbot/internal/gateway/handlers"
	"lchbot/pkg/logger"
)

// Recovery returns a middleware that recovers from panics. Combined with the
// dispatcher's own handler isolation this keeps the ingestion server alive
// indefinitely under malformed input.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error().
					Interface("error", err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				handlers.SendError(
					w,
					http.StatusInternalServerError,
					handlers.ErrCodeInternalError,
					"internal server error",
				)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
