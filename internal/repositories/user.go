package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-items-api/internal/models"
)

// Constraint names declared by the users migration.
const (
	usersUsernameKey = "users_username_key"
	usersEmailKey    = "users_email_key"
)

const userColumns = `id, username, email, hashed_password, is_active, created_at, updated_at`

type UserReadRepository struct {
	db       *sqlx.DB
	txGetter TxGetter
}

func NewUserReadRepository(db *sqlx.DB, txGetter TxGetter) *UserReadRepository {
	return &UserReadRepository{db: db, txGetter: txGetter}
}

// GetByUsername returns models.ErrUserNotFound when no user has the username.
func (r *UserReadRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, "username", username)
}

// GetByEmail returns models.ErrUserNotFound when no user has the email.
func (r *UserReadRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserReadRepository) getBy(ctx context.Context, column string, value any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	var user models.User
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &user, query, value)

	var found any
	if err == nil {
		found = user.ID
	}
	logQuery(query, []any{value}, found, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return &user, nil
}

type UserWriteRepository struct {
	db       *sqlx.DB
	txGetter TxGetter
}

func NewUserWriteRepository(db *sqlx.DB, txGetter TxGetter) *UserWriteRepository {
	return &UserWriteRepository{db: db, txGetter: txGetter}
}

// Create inserts a user. Unique violations on username or email are
// returned as models.ErrDuplicateUsername and models.ErrDuplicateEmail.
func (r *UserWriteRepository) Create(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	const query = `
		INSERT INTO users (username, email, hashed_password, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		RETURNING ` + userColumns

	var user models.User
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &user, query, username, email, passwordHash)

	// the hash is never logged
	var created any
	if err == nil {
		created = user.ID
	}
	logQuery(query, []any{username, email}, created, err)

	if err != nil {
		if pgErr, ok := pgError(err, pgUniqueViolation); ok {
			switch pgErr.ConstraintName {
			case usersUsernameKey:
				return nil, models.ErrDuplicateUsername
			case usersEmailKey:
				return nil, models.ErrDuplicateEmail
			}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}
