package models

import "errors"

var (
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already registered")
	// ErrDuplicateEmail is returned when the email is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrIncorrectCredentials is returned by login for an unknown user or a wrong password.
	ErrIncorrectCredentials = errors.New("incorrect username or password")
	// ErrUnauthorized is returned when a bearer token cannot be resolved to an active user.
	ErrUnauthorized = errors.New("could not validate credentials")
	// ErrForbidden is returned when an authenticated user is not the owner of a resource.
	ErrForbidden = errors.New("not enough permissions")

	ErrUserNotFound = errors.New("user not found")
	ErrItemNotFound = errors.New("item not found")
)
