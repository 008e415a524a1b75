package services

import (
	"context"
	"errors"
	"time"

	"github.com/sbilibin2017/gw-items-api/internal/jwt"
	"github.com/sbilibin2017/gw-items-api/internal/logger"
	"github.com/sbilibin2017/gw-items-api/internal/models"
)

//go:generate mockgen -source=auth.go -destination=auth_mock.go -package=services

// UserReader defines read-only operations for users.
type UserReader interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserWriter defines write operations for users.
type UserWriter interface {
	Create(ctx context.Context, username, email, passwordHash string) (*models.User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) (bool, error)
}

// TokenIssuer issues and verifies bearer tokens.
type TokenIssuer interface {
	Issue(subject string, now time.Time) (string, error)
	Verify(tokenString string, now time.Time) (*jwt.Claims, error)
}

// TokenDenylist keeps revoked token IDs.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthService handles registration, login and bearer token resolution.
type AuthService struct {
	reader   UserReader
	writer   UserWriter
	hasher   PasswordHasher
	tokens   TokenIssuer
	denylist TokenDenylist
	now      func() time.Time
}

// AuthServiceOpt configures an AuthService.
type AuthServiceOpt func(*AuthService)

// WithDenylist enables token revocation.
func WithDenylist(denylist TokenDenylist) AuthServiceOpt {
	return func(s *AuthService) {
		s.denylist = denylist
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AuthServiceOpt {
	return func(s *AuthService) {
		s.now = now
	}
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(reader UserReader, writer UserWriter, hasher PasswordHasher, tokens TokenIssuer, opts ...AuthServiceOpt) *AuthService {
	svc := &AuthService{
		reader: reader,
		writer: writer,
		hasher: hasher,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates a new user. The username is checked before the email, so
// when both are taken models.ErrDuplicateUsername is returned. The unique
// constraints in storage remain authoritative for concurrent registrations.
func (svc *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if err := svc.ensureFree(ctx, svc.reader.GetByUsername, username, models.ErrDuplicateUsername); err != nil {
		return nil, err
	}
	if err := svc.ensureFree(ctx, svc.reader.GetByEmail, email, models.ErrDuplicateEmail); err != nil {
		return nil, err
	}

	hashedPassword, err := svc.hasher.Hash(ctx, password)
	if err != nil {
		logger.Log.Errorw("failed to hash password", "err", err)
		return nil, err
	}

	user, err := svc.writer.Create(ctx, username, email, hashedPassword)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateUsername) || errors.Is(err, models.ErrDuplicateEmail) {
			logger.Log.Warnw("registration lost uniqueness race", "username", username, "err", err)
			return nil, err
		}
		logger.Log.Errorw("failed to save user", "err", err)
		return nil, err
	}

	user.PasswordHash = ""
	return user, nil
}

func (svc *AuthService) ensureFree(
	ctx context.Context,
	lookup func(context.Context, string) (*models.User, error),
	value string,
	taken error,
) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		logger.Log.Infow("registration rejected", "reason", taken)
		return taken
	case errors.Is(err, models.ErrUserNotFound):
		return nil
	default:
		logger.Log.Errorw("failed to check user exists", "err", err)
		return err
	}
}

// Login verifies the credentials and returns a bearer token bound to the
// username. An unknown username and a wrong password both yield
// models.ErrIncorrectCredentials, and both pay for one hash comparison.
func (svc *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := svc.reader.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		logger.Log.Errorw("failed to get user", "err", err)
		return "", err
	}

	var hash string
	if user != nil {
		hash = user.PasswordHash
	}

	ok, err := svc.hasher.Verify(ctx, password, hash)
	if err != nil {
		logger.Log.Errorw("failed to verify password", "err", err)
		return "", err
	}
	if user == nil || !ok {
		logger.Log.Infow("invalid credentials", "username", username)
		return "", models.ErrIncorrectCredentials
	}

	token, err := svc.tokens.Issue(user.Username, svc.now())
	if err != nil {
		logger.Log.Errorw("failed to generate JWT", "err", err)
		return "", err
	}

	return token, nil
}

// ResolveCurrentUser maps a bearer token to an active user. Every
// authentication failure is models.ErrUnauthorized; storage failures are
// returned as is. It never mutates state.
func (svc *AuthService) ResolveCurrentUser(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := svc.tokens.Verify(tokenString, svc.now())
	if err != nil {
		logger.Log.Infow("token rejected", "err", err)
		return nil, models.ErrUnauthorized
	}

	if svc.denylist != nil {
		revoked, err := svc.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			logger.Log.Errorw("failed to check token revocation", "err", err)
			return nil, err
		}
		if revoked {
			logger.Log.Infow("revoked token presented", "subject", claims.Subject)
			return nil, models.ErrUnauthorized
		}
	}

	user, err := svc.reader.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			logger.Log.Infow("token subject no longer exists", "subject", claims.Subject)
			return nil, models.ErrUnauthorized
		}
		logger.Log.Errorw("failed to get user", "err", err)
		return nil, err
	}

	if !user.IsActive {
		logger.Log.Infow("inactive user presented token", "subject", claims.Subject)
		return nil, models.ErrUnauthorized
	}

	return user, nil
}

// Logout revokes the token until it expires. Without a denylist it only
// validates the token.
func (svc *AuthService) Logout(ctx context.Context, tokenString string) error {
	now := svc.now()
	claims, err := svc.tokens.Verify(tokenString, now)
	if err != nil {
		return models.ErrUnauthorized
	}

	if svc.denylist == nil {
		logger.Log.Warnw("token denylist not configured, logout is a no-op", "subject", claims.Subject)
		return nil
	}

	if err := svc.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Sub(now)); err != nil {
		logger.Log.Errorw("failed to revoke token", "err", err)
		return err
	}
	return nil
}
