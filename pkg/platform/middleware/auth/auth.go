package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "complyhub/pkg/domain-errors"
	"complyhub/pkg/platform/httputil"
	request "complyhub/pkg/platform/middleware/request"
	"complyhub/pkg/requestcontext"
)

// ActorValidator validates a bearer token and returns the actor it was issued to.
type ActorValidator interface {
	ValidateActor(token string) (string, error)
}

// RequireActor rejects requests without a valid bearer token and stores the
// authenticated actor in the request context for the module engine to stamp
// on state changes.
func RequireActor(validator ActorValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			actor, err := validator.ValidateActor(token)
			if dErrors.HasCode(err, dErrors.CodeForbidden) {
				logger.WarnContext(ctx, "forbidden access - token lacks module administration",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
