package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/sbilibin2017/gw-items-api/internal/jwt"
	"github.com/sbilibin2017/gw-items-api/internal/models"
	"github.com/sbilibin2017/gw-items-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authMocks struct {
	reader   *services.MockUserReader
	writer   *services.MockUserWriter
	hasher   *services.MockPasswordHasher
	tokens   *services.MockTokenIssuer
	denylist *services.MockTokenDenylist
}

var fixedNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newAuthService(t *testing.T, withDenylist bool) (*services.AuthService, authMocks) {
	ctrl := gomock.NewController(t)
	m := authMocks{
		reader:   services.NewMockUserReader(ctrl),
		writer:   services.NewMockUserWriter(ctrl),
		hasher:   services.NewMockPasswordHasher(ctrl),
		tokens:   services.NewMockTokenIssuer(ctrl),
		denylist: services.NewMockTokenDenylist(ctrl),
	}

	opts := []services.AuthServiceOpt{services.WithClock(func() time.Time { return fixedNow })}
	if withDenylist {
		opts = append(opts, services.WithDenylist(m.denylist))
	}
	return services.NewAuthService(m.reader, m.writer, m.hasher, m.tokens, opts...), m
}

func claimsFor(subject, id string, exp time.Time) *jwt.Claims {
	return &jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{
		ID:        id,
		Subject:   subject,
		ExpiresAt: gojwt.NewNumericDate(exp),
	}}
}

func TestAuthService_Register(t *testing.T) {
	dbErr := errors.New("db error")

	tests := []struct {
		name    string
		setup   func(m authMocks)
		wantErr error
	}{
		{
			name: "successful registration",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound)
				m.reader.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, models.ErrUserNotFound)
				m.hasher.EXPECT().Hash(gomock.Any(), "pass123").Return("hashed", nil)
				m.writer.EXPECT().Create(gomock.Any(), "alice", "alice@example.com", "hashed").
					Return(&models.User{ID: 1, Username: "alice", Email: "alice@example.com", PasswordHash: "hashed", IsActive: true}, nil)
			},
		},
		{
			name: "username taken",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(&models.User{ID: 1}, nil)
			},
			wantErr: models.ErrDuplicateUsername,
		},
		{
			name: "email taken",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound)
				m.reader.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(&models.User{ID: 2}, nil)
			},
			wantErr: models.ErrDuplicateEmail,
		},
		{
			name: "lost race on username",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound)
				m.reader.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, models.ErrUserNotFound)
				m.hasher.EXPECT().Hash(gomock.Any(), "pass123").Return("hashed", nil)
				m.writer.EXPECT().Create(gomock.Any(), "alice", "alice@example.com", "hashed").Return(nil, models.ErrDuplicateUsername)
			},
			wantErr: models.ErrDuplicateUsername,
		},
		{
			name: "lookup error",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, dbErr)
			},
			wantErr: dbErr,
		},
		{
			name: "hash error",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound)
				m.reader.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, models.ErrUserNotFound)
				m.hasher.EXPECT().Hash(gomock.Any(), "pass123").Return("", context.Canceled)
			},
			wantErr: context.Canceled,
		},
		{
			name: "writer error",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound)
				m.reader.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, models.ErrUserNotFound)
				m.hasher.EXPECT().Hash(gomock.Any(), "pass123").Return("hashed", nil)
				m.writer.EXPECT().Create(gomock.Any(), "alice", "alice@example.com", "hashed").Return(nil, dbErr)
			},
			wantErr: dbErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newAuthService(t, false)
			tt.setup(m)

			user, err := svc.Register(context.Background(), "alice", "alice@example.com", "pass123")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, int64(1), user.ID)
			assert.Empty(t, user.PasswordHash)

			body, err := json.Marshal(user)
			require.NoError(t, err)
			assert.NotContains(t, string(body), "pass123")
			assert.NotContains(t, string(body), "hashed")
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	alice := &models.User{ID: 1, Username: "alice", PasswordHash: "hashed", IsActive: true}

	tests := []struct {
		name      string
		setup     func(m authMocks)
		wantToken string
		wantErr   error
	}{
		{
			name: "successful login",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(alice, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "hashed").Return(true, nil)
				m.tokens.EXPECT().Issue("alice", fixedNow).Return("token123", nil)
			},
			wantToken: "token123",
		},
		{
			name: "wrong password",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(alice, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "hashed").Return(false, nil)
			},
			wantErr: models.ErrIncorrectCredentials,
		},
		{
			name: "unknown user still verifies against decoy",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "").Return(false, nil)
			},
			wantErr: models.ErrIncorrectCredentials,
		},
		{
			name: "reader error",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, errors.New("db error"))
			},
			wantErr: errors.New("db error"),
		},
		{
			name: "token error",
			setup: func(m authMocks) {
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(alice, nil)
				m.hasher.EXPECT().Verify(gomock.Any(), "secret", "hashed").Return(true, nil)
				m.tokens.EXPECT().Issue("alice", fixedNow).Return("", errors.New("jwt error"))
			},
			wantErr: errors.New("jwt error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newAuthService(t, false)
			tt.setup(m)

			token, err := svc.Login(context.Background(), "alice", "secret")
			if tt.wantErr != nil {
				assert.EqualError(t, err, tt.wantErr.Error())
				assert.Empty(t, token)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantToken, token)
			}
		})
	}
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	svc, m := newAuthService(t, false)

	m.reader.EXPECT().GetByUsername(gomock.Any(), "ghost").Return(nil, models.ErrUserNotFound)
	m.hasher.EXPECT().Verify(gomock.Any(), "pw", "").Return(false, nil)
	_, unknownErr := svc.Login(context.Background(), "ghost", "pw")

	m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(&models.User{Username: "alice", PasswordHash: "h"}, nil)
	m.hasher.EXPECT().Verify(gomock.Any(), "pw", "h").Return(false, nil)
	_, wrongErr := svc.Login(context.Background(), "alice", "pw")

	assert.Equal(t, unknownErr, wrongErr)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestAuthService_ResolveCurrentUser(t *testing.T) {
	exp := fixedNow.Add(30 * time.Minute)
	active := &models.User{ID: 1, Username: "alice", IsActive: true}

	tests := []struct {
		name         string
		withDenylist bool
		setup        func(m authMocks)
		want         *models.User
		wantErr      error
	}{
		{
			name: "valid token",
			setup: func(m authMocks) {
				m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(active, nil)
			},
			want: active,
		},
		{
			name: "invalid token",
			setup: func(m authMocks) {
				m.tokens.EXPECT().Verify("tok", fixedNow).Return(nil, jwt.ErrInvalidToken)
			},
			wantErr: models.ErrUnauthorized,
		},
		{
			name: "user deleted",
			setup: func(m authMocks) {
				m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, models.ErrUserNotFound)
			},
			wantErr: models.ErrUnauthorized,
		},
		{
			name: "inactive user",
			setup: func(m authMocks) {
				m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(&models.User{ID: 1, Username: "alice"}, nil)
			},
			wantErr: models.ErrUnauthorized,
		},
		{
			name: "storage error is not unauthorized",
			setup: func(m authMocks) {
				m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(nil, errors.New("db error"))
			},
			wantErr: errors.New("db error"),
		},
		{
			name:         "revoked token",
			withDenylist: true,
			setup: func(m authMocks) {
				m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
				m.denylist.EXPECT().IsRevoked(gomock.Any(), "jti").Return(true, nil)
			},
			wantErr: models.ErrUnauthorized,
		},
		{
			name:         "not revoked",
			withDenylist: true,
			setup: func(m authMocks) {
				m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
				m.denylist.EXPECT().IsRevoked(gomock.Any(), "jti").Return(false, nil)
				m.reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(active, nil)
			},
			want: active,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newAuthService(t, tt.withDenylist)
			tt.setup(m)

			user, err := svc.ResolveCurrentUser(context.Background(), "tok")
			if tt.wantErr != nil {
				assert.EqualError(t, err, tt.wantErr.Error())
				assert.Nil(t, user)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, user)
			}
		})
	}
}

func TestAuthService_LoginThenResolve(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := services.NewMockUserReader(ctrl)
	hasher := services.NewMockPasswordHasher(ctrl)

	issuer := jwt.New(jwt.WithSecretKey("secret"), jwt.WithExpiration(30*time.Minute))
	now := fixedNow
	svc := services.NewAuthService(reader, services.NewMockUserWriter(ctrl), hasher, issuer,
		services.WithClock(func() time.Time { return now }))

	alice := &models.User{ID: 1, Username: "alice", PasswordHash: "hashed", IsActive: true}
	reader.EXPECT().GetByUsername(gomock.Any(), "alice").Return(alice, nil).Times(2)
	hasher.EXPECT().Verify(gomock.Any(), "secret", "hashed").Return(true, nil)

	token, err := svc.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	user, err := svc.ResolveCurrentUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, alice, user)

	// past expiry the same token is rejected before any lookup
	now = fixedNow.Add(30*time.Minute + time.Second)
	_, err = svc.ResolveCurrentUser(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthService_Logout(t *testing.T) {
	exp := fixedNow.Add(10 * time.Minute)

	t.Run("revokes until expiry", func(t *testing.T) {
		svc, m := newAuthService(t, true)
		m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
		m.denylist.EXPECT().Revoke(gomock.Any(), "jti", 10*time.Minute).Return(nil)

		assert.NoError(t, svc.Logout(context.Background(), "tok"))
	})

	t.Run("invalid token", func(t *testing.T) {
		svc, m := newAuthService(t, true)
		m.tokens.EXPECT().Verify("tok", fixedNow).Return(nil, jwt.ErrInvalidToken)

		assert.ErrorIs(t, svc.Logout(context.Background(), "tok"), models.ErrUnauthorized)
	})

	t.Run("no denylist", func(t *testing.T) {
		svc, m := newAuthService(t, false)
		m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)

		assert.NoError(t, svc.Logout(context.Background(), "tok"))
	})

	t.Run("denylist error", func(t *testing.T) {
		svc, m := newAuthService(t, true)
		m.tokens.EXPECT().Verify("tok", fixedNow).Return(claimsFor("alice", "jti", exp), nil)
		m.denylist.EXPECT().Revoke(gomock.Any(), "jti", 10*time.Minute).Return(errors.New("redis down"))

		assert.EqualError(t, svc.Logout(context.Background(), "tok"), "redis down")
	})
}
