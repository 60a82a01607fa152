package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type ctxKey string

const OperatorIDKey ctxKey = "operatorID"

// TokenMiddleware authenticates requests against a static set of API tokens,
// each mapped to the operator id it acts as. The token is read from the
// Authorization bearer header and, for websocket handshakes, from ?token=.
func TokenMiddleware(tokens map[string]int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			if token == "" {
				log.Debug("no token", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			operatorID, ok := lookup(tokens, token)
			if !ok {
				log.Info("unknown token", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithOperatorID(r.Context(), operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func lookup(tokens map[string]int64, token string) (int64, bool) {
	for known, id := range tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return id, true
		}
	}
	return 0, false
}

func WithOperatorID(ctx context.Context, operatorID int64) context.Context {
	return context.WithValue(ctx, OperatorIDKey, operatorID)
}

func GetOperatorID(ctx context.Context) (int64, error) {
	operatorID, ok := ctx.Value(OperatorIDKey).(int64)
	if !ok {
		return 0, errors.New("operatorID not found in context")
	}
	return operatorID, nil
}
