package models

import "time"

// User represents a user record in the database.
// PasswordHash is never serialized.
type User struct {
	ID           int64      `json:"id" db:"id"`                 // Primary key
	Username     string     `json:"username" db:"username"`     // Unique, case-sensitive
	Email        string     `json:"email" db:"email"`           // Unique email
	PasswordHash string     `json:"-" db:"hashed_password"`     // bcrypt hash
	IsActive     bool       `json:"is_active" db:"is_active"`   // Inactive users cannot authenticate
	CreatedAt    time.Time  `json:"created_at" db:"created_at"` // Creation timestamp
	UpdatedAt    *time.Time `json:"updated_at" db:"updated_at"` // Last update timestamp
}
