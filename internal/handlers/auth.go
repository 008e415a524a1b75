package handlers

import (
	"context"
	"net/http"

	"github.com/sbilibin2017/gw-items-api/internal/middlewares"
	"github.com/sbilibin2017/gw-items-api/internal/models"
)

//go:generate mockgen -source=auth.go -destination=auth_mock.go -package=handlers

// Registerer defines the interface that the registration service must implement.
type Registerer interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
}

// Loginer defines the interface that the login service must implement.
type Loginer interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Logouter revokes a bearer token.
type Logouter interface {
	Logout(ctx context.Context, tokenString string) error
}

// NewRegisterHandler returns an HTTP handler for user registration.
// @Summary Register a new user
// @Description Creates a new user account. Username and email must be unique; the username is checked first.
// @Tags auth
// @Accept json
// @Produce json
// @Param registerRequest body models.RegisterRequest true "User registration request"
// @Success 200 {object} models.User "Registered user"
// @Failure 400 {object} models.ErrorResponse "Username already registered / Email already registered"
// @Failure 422 {object} models.ErrorResponse "Invalid request body"
// @Router /auth/register [post]
func NewRegisterHandler(svc Registerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		user, err := svc.Register(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

// NewTokenHandler returns an HTTP handler that exchanges form credentials for a bearer token.
// @Summary Log in
// @Description Authenticate with username and password (form encoded) and return a bearer token
// @Tags auth
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Username"
// @Param password formData string true "Password"
// @Success 200 {object} models.TokenResponse "Bearer token"
// @Failure 401 {object} models.ErrorResponse "Incorrect username or password"
// @Failure 422 {object} models.ErrorResponse "Missing credentials"
// @Router /auth/token [post]
func NewTokenHandler(svc Loginer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid form body")
			return
		}

		username := r.PostForm.Get("username")
		password := r.PostForm.Get("password")
		if username == "" || password == "" {
			writeDetail(w, http.StatusUnprocessableEntity, "Fields 'username' and 'password' are required")
			return
		}

		token, err := svc.Login(r.Context(), username, password)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, models.TokenResponse{
			AccessToken: token,
			TokenType:   "bearer",
		})
	}
}

// NewMeHandler returns an HTTP handler that reports the authenticated user.
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User "Authenticated user"
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Router /auth/me [get]
func NewMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUserFromContext(r.Context())
		if user == nil {
			writeServiceError(w, r, models.ErrUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// NewLogoutHandler returns an HTTP handler that revokes the presented token.
// @Summary Log out
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.MessageResponse "Token revoked"
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Router /auth/logout [post]
func NewLogoutHandler(svc Logouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Logout(r.Context(), middlewares.TokenFromContext(r.Context())); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Successfully logged out"})
	}
}
