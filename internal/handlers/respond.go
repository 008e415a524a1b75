package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sbilibin2017/gw-items-api/internal/logger"
	"github.com/sbilibin2017/gw-items-api/internal/middlewares"
	"github.com/sbilibin2017/gw-items-api/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSkip  = 0
	defaultLimit = 10
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// maxbytes limits the encoded length in bytes, as bcrypt does
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorw("failed to encode response", "err", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

// writeServiceError maps domain errors to their HTTP status and detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrDuplicateUsername):
		writeDetail(w, http.StatusBadRequest, "Username already registered")
	case errors.Is(err, models.ErrDuplicateEmail):
		writeDetail(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, models.ErrIncorrectCredentials):
		writeUnauthorized(w, "Incorrect username or password")
	case errors.Is(err, models.ErrUnauthorized):
		writeUnauthorized(w, "Could not validate credentials")
	case errors.Is(err, models.ErrForbidden):
		writeDetail(w, http.StatusForbidden, "Not enough permissions")
	case errors.Is(err, models.ErrItemNotFound):
		writeDetail(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		writeDetail(w, http.StatusUnprocessableEntity, "Field 'password' must be at most 72 bytes")
	default:
		logger.Log.Errorw("internal server error",
			"request_id", middlewares.RequestIDFromContext(r.Context()),
			"err", err,
		)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes a 422 and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, validationDetail(err))
		return false
	}
	return true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "email":
		return fmt.Sprintf("Field '%s' must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("Field '%s' must be at most %s characters", fe.Field(), fe.Param())
	case "maxbytes":
		return fmt.Sprintf("Field '%s' must be at most %s bytes", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' is invalid", fe.Field())
	}
}

// pagination parses skip and limit query parameters.
func pagination(r *http.Request) (skip, limit int, err error) {
	skip, limit = defaultSkip, defaultLimit

	if v := r.URL.Query().Get("skip"); v != "" {
		skip, err = strconv.Atoi(v)
		if err != nil || skip < 0 {
			return 0, 0, fmt.Errorf("invalid skip %q", v)
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
	}
	return skip, limit, nil
}
