package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/hourbook/libs/auth"
)

// UserIDHeader carries the requester id when a trusted gateway has already authenticated the call.
const UserIDHeader = "X-User-Id"

func RequesterFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequester).(string)
	return v
}

func ContextWithRequester(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, userID)
}

// RequesterConfig selects how the requester id is established. With a JWTSecret, a valid HS256
// bearer token is required and its subject becomes the requester. TrustGatewayHeader accepts
// X-User-Id as-is and is meant for deployments behind an authenticating gateway.
type RequesterConfig struct {
	JWTSecret          string
	TrustGatewayHeader bool
}

// WithRequester rejects requests without an identity with 401.
func WithRequester(cfg RequesterConfig, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""
			if token, ok := bearerToken(r); ok && cfg.JWTSecret != "" {
				claims, err := auth.ParseAndVerifyHS256(token, cfg.JWTSecret)
				if err != nil {
					logger.Debug("bearer token rejected", "err", err)
					WriteError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				userID = claims.Sub
			} else if cfg.TrustGatewayHeader {
				userID = strings.TrimSpace(r.Header.Get(UserIDHeader))
			}

			if userID == "" {
				WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithRequester(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}
