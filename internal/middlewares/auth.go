package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sbilibin2017/gw-items-api/internal/logger"
	"github.com/sbilibin2017/gw-items-api/internal/models"
)

//go:generate mockgen -source=auth.go -destination=auth_mock.go -package=middlewares

// Tokener extracts the bearer token from a request.
type Tokener interface {
	GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error)
}

// UserResolver maps a bearer token to the user it authenticates.
type UserResolver interface {
	ResolveCurrentUser(ctx context.Context, tokenString string) (*models.User, error)
}

// AuthMiddleware resolves the current user before the protected handler runs.
// The handler is never invoked for an unauthenticated request.
func AuthMiddleware(tokener Tokener, resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tokenString, err := tokener.GetTokenFromRequest(ctx, r)
			if err != nil {
				logger.Log.Infow("authorization failed", "err", err)
				writeUnauthorized(w)
				return
			}

			user, err := resolver.ResolveCurrentUser(ctx, tokenString)
			if err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					logger.Log.Infow("authorization failed", "err", err)
					writeUnauthorized(w)
					return
				}
				logger.Log.Errorw("failed to resolve current user", "err", err)
				writeDetail(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(ctx, user, tokenString)))
		})
	}
}

type authContextKey int

const (
	userKey authContextKey = iota
	tokenKey
)

// ContextWithUser stores the authenticated user and its token in ctx.
func ContextWithUser(ctx context.Context, user *models.User, tokenString string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, tokenString)
}

// CurrentUserFromContext returns the user stored by AuthMiddleware, or nil.
func CurrentUserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// TokenFromContext returns the bearer token accepted by AuthMiddleware.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Detail: detail})
}
