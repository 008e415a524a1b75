package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sbilibin2017/gw-items-api/internal/middlewares"
	"github.com/sbilibin2017/gw-items-api/internal/models"
)

//go:generate mockgen -source=items.go -destination=items_mock.go -package=handlers

// ItemCreator creates items.
type ItemCreator interface {
	Create(ctx context.Context, owner *models.User, title string, description *string) (*models.Item, error)
}

// ItemGetter loads a single item.
type ItemGetter interface {
	Get(ctx context.Context, id int64) (*models.Item, error)
}

// ItemLister lists items, optionally restricted to an owner.
type ItemLister interface {
	List(ctx context.Context, skip, limit int) ([]models.Item, error)
	ListByOwner(ctx context.Context, owner *models.User, skip, limit int) ([]models.Item, error)
}

// ItemUpdater applies a patch to an owned item.
type ItemUpdater interface {
	Update(ctx context.Context, user *models.User, id int64, patch models.ItemPatch) (*models.Item, error)
}

// ItemDeleter deletes an owned item.
type ItemDeleter interface {
	Delete(ctx context.Context, user *models.User, id int64) error
}

// NewCreateItemHandler returns an HTTP handler that creates an item owned by the caller.
// @Summary Create item
// @Tags items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param item body models.ItemCreateRequest true "Item"
// @Success 200 {object} models.Item "Created item"
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Failure 422 {object} models.ErrorResponse "Invalid request body"
// @Router /items/ [post]
func NewCreateItemHandler(svc ItemCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUserFromContext(r.Context())
		if user == nil {
			writeServiceError(w, r, models.ErrUnauthorized)
			return
		}

		var req models.ItemCreateRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		item, err := svc.Create(r.Context(), user, req.Title, req.Description)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// NewListItemsHandler returns an HTTP handler listing all items.
// @Summary List items
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size" default(10)
// @Success 200 {array} models.Item
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Failure 422 {object} models.ErrorResponse "Invalid pagination"
// @Router /items/ [get]
func NewListItemsHandler(svc ItemLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, limit, err := pagination(r)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid pagination parameters")
			return
		}

		items, err := svc.List(r.Context(), skip, limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(items))
	}
}

// NewListMyItemsHandler returns an HTTP handler listing the caller's items.
// @Summary List my items
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size" default(10)
// @Success 200 {array} models.Item
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Failure 422 {object} models.ErrorResponse "Invalid pagination"
// @Router /items/my-items [get]
func NewListMyItemsHandler(svc ItemLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUserFromContext(r.Context())
		if user == nil {
			writeServiceError(w, r, models.ErrUnauthorized)
			return
		}

		skip, limit, err := pagination(r)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid pagination parameters")
			return
		}

		items, err := svc.ListByOwner(r.Context(), user, skip, limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(items))
	}
}

// NewGetItemHandler returns an HTTP handler that loads any item by id.
// @Summary Get item
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param id path int true "Item ID"
// @Success 200 {object} models.Item
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Failure 404 {object} models.ErrorResponse "Item not found"
// @Router /items/{id} [get]
func NewGetItemHandler(svc ItemGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := itemID(w, r)
		if !ok {
			return
		}

		item, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// NewUpdateItemHandler returns an HTTP handler that patches an item owned by the caller.
// @Summary Update item
// @Tags items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Item ID"
// @Param item body models.ItemUpdateRequest true "Fields to change"
// @Success 200 {object} models.Item
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Failure 403 {object} models.ErrorResponse "Not enough permissions"
// @Failure 404 {object} models.ErrorResponse "Item not found"
// @Failure 422 {object} models.ErrorResponse "Invalid request body"
// @Router /items/{id} [put]
func NewUpdateItemHandler(svc ItemUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUserFromContext(r.Context())
		if user == nil {
			writeServiceError(w, r, models.ErrUnauthorized)
			return
		}

		id, ok := itemID(w, r)
		if !ok {
			return
		}

		var req models.ItemUpdateRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		item, err := svc.Update(r.Context(), user, id, req.Patch())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// NewDeleteItemHandler returns an HTTP handler that deletes an item owned by the caller.
// @Summary Delete item
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param id path int true "Item ID"
// @Success 200 {object} models.MessageResponse "Item deleted successfully"
// @Failure 401 {object} models.ErrorResponse "Could not validate credentials"
// @Failure 403 {object} models.ErrorResponse "Not enough permissions"
// @Failure 404 {object} models.ErrorResponse "Item not found"
// @Router /items/{id} [delete]
func NewDeleteItemHandler(svc ItemDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middlewares.CurrentUserFromContext(r.Context())
		if user == nil {
			writeServiceError(w, r, models.ErrUnauthorized)
			return
		}

		id, ok := itemID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), user, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Item deleted successfully"})
	}
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid item id")
		return 0, false
	}
	return id, true
}

func nonNil(items []models.Item) []models.Item {
	if items == nil {
		return []models.Item{}
	}
	return items
}
