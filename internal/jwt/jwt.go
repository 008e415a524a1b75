package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultExpiration is the token lifetime used when none is configured.
const DefaultExpiration = 30 * time.Minute

var (
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoToken is returned when the request carries no usable bearer token.
	ErrNoToken = errors.New("bearer token missing")
)

// Claims is the payload of an access token. Subject holds the username.
type Claims struct {
	jwt.RegisteredClaims
}

// JWT issues and verifies HS256 access tokens with a process-wide secret.
// The secret is fixed for the lifetime of the process; changing it
// invalidates every outstanding token.
type JWT struct {
	secretKey []byte
	exp       time.Duration
}

// Opt configures a JWT.
type Opt func(*JWT)

// WithSecretKey sets the signing secret.
func WithSecretKey(secret string) Opt {
	return func(j *JWT) {
		j.secretKey = []byte(secret)
	}
}

// WithExpiration sets the token lifetime.
func WithExpiration(exp time.Duration) Opt {
	return func(j *JWT) {
		j.exp = exp
	}
}

// New creates a new JWT instance.
func New(opts ...Opt) *JWT {
	j := &JWT{exp: DefaultExpiration}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Issue signs a token for subject, valid from now until now+expiration.
func (j *JWT) Issue(subject string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.exp)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// Verify checks the signature, algorithm and expiry of tokenString as of now
// and returns its claims. There is no leeway: a token is accepted up to and
// including its expiry instant and rejected after it.
func (j *JWT) Verify(tokenString string, now time.Time) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return j.secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	// time claims are checked here because the library treats now == exp as expired
	switch {
	case claims.ExpiresAt == nil:
		return nil, fmt.Errorf("%w: expiration missing", ErrInvalidToken)
	case now.After(claims.ExpiresAt.Time):
		return nil, fmt.Errorf("%w: token is expired", ErrInvalidToken)
	case claims.NotBefore != nil && now.Before(claims.NotBefore.Time):
		return nil, fmt.Errorf("%w: token is not valid yet", ErrInvalidToken)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}

	return claims, nil
}

// GetTokenFromRequest extracts the token string from the Authorization header.
func (j *JWT) GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoToken
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrNoToken)
	}

	return parts[1], nil
}
