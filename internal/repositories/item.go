package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-items-api/internal/models"
)

const itemColumns = `id, title, description, owner_id, created_at, updated_at`

// ItemReadRepository handles item read operations
type ItemReadRepository struct {
	db       *sqlx.DB
	txGetter TxGetter
}

func NewItemReadRepository(db *sqlx.DB, txGetter TxGetter) *ItemReadRepository {
	return &ItemReadRepository{db: db, txGetter: txGetter}
}

// GetByID returns models.ErrItemNotFound when the item does not exist.
func (r *ItemReadRepository) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	const query = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	var item models.Item
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &item, query, id)
	logQuery(query, []any{id}, item.ID, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// List returns a page of all items ordered by id.
func (r *ItemReadRepository) List(ctx context.Context, offset, limit int) ([]models.Item, error) {
	const query = `
		SELECT ` + itemColumns + `
		FROM items
		ORDER BY id
		OFFSET $1 LIMIT $2
	`

	items := []models.Item{}
	err := sqlx.SelectContext(ctx, executor(ctx, r.db, r.txGetter), &items, query, offset, limit)
	logQuery(query, []any{offset, limit}, len(items), err)

	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ListByOwner returns a page of the items owned by ownerID ordered by id.
func (r *ItemReadRepository) ListByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]models.Item, error) {
	const query = `
		SELECT ` + itemColumns + `
		FROM items
		WHERE owner_id = $1
		ORDER BY id
		OFFSET $2 LIMIT $3
	`

	items := []models.Item{}
	err := sqlx.SelectContext(ctx, executor(ctx, r.db, r.txGetter), &items, query, ownerID, offset, limit)
	logQuery(query, []any{ownerID, offset, limit}, len(items), err)

	if err != nil {
		return nil, fmt.Errorf("list items by owner: %w", err)
	}
	return items, nil
}

// ItemWriteRepository handles item write operations
type ItemWriteRepository struct {
	db       *sqlx.DB
	txGetter TxGetter
}

func NewItemWriteRepository(db *sqlx.DB, txGetter TxGetter) *ItemWriteRepository {
	return &ItemWriteRepository{db: db, txGetter: txGetter}
}

// Create inserts an item owned by ownerID. A missing owner is reported as
// models.ErrUserNotFound.
func (r *ItemWriteRepository) Create(ctx context.Context, ownerID int64, title string, description *string) (*models.Item, error) {
	const query = `
		INSERT INTO items (title, description, owner_id, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING ` + itemColumns

	var item models.Item
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &item, query, title, description, ownerID)
	logQuery(query, []any{title, description, ownerID}, item.ID, err)

	if err != nil {
		if _, ok := pgError(err, pgForeignKeyViolation); ok {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("create item: %w", err)
	}
	return &item, nil
}

// Update applies patch to the item. owner_id is never touched.
func (r *ItemWriteRepository) Update(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error) {
	const query = `
		UPDATE items
		SET title = COALESCE($2, title),
		    description = CASE WHEN $3 THEN $4 ELSE description END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + itemColumns

	args := []any{id, patch.Title, patch.DescriptionSet, patch.Description}

	var item models.Item
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &item, query, args...)
	logQuery(query, args, item.ID, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrItemNotFound
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	return &item, nil
}

// Delete removes the item.
func (r *ItemWriteRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM items WHERE id = $1`

	res, err := executor(ctx, r.db, r.txGetter).ExecContext(ctx, query, id)
	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}
	logQuery(query, []any{id}, rowsAffected, err)

	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrItemNotFound
	}
	return nil
}
