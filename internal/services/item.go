package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-items-api/internal/logger"
	"github.com/sbilibin2017/gw-items-api/internal/models"
	"github.com/segmentio/kafka-go"
)

//go:generate mockgen -source=item.go -destination=item_mock.go -package=services

// ItemReader defines read operations for items.
type ItemReader interface {
	GetByID(ctx context.Context, id int64) (*models.Item, error)
	List(ctx context.Context, offset, limit int) ([]models.Item, error)
	ListByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]models.Item, error)
}

// ItemWriter defines write operations for items.
type ItemWriter interface {
	Create(ctx context.Context, ownerID int64, title string, description *string) (*models.Item, error)
	Update(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error)
	Delete(ctx context.Context, id int64) error
}

// KafkaWriter defines a Kafka writer abstraction.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ItemService handles owner-scoped item operations and event publishing.
type ItemService struct {
	reader      ItemReader
	writer      ItemWriter
	kafkaWriter KafkaWriter
}

// NewItemService creates a new ItemService. kafkaWriter may be nil.
func NewItemService(reader ItemReader, writer ItemWriter, kafkaWriter KafkaWriter) *ItemService {
	return &ItemService{
		reader:      reader,
		writer:      writer,
		kafkaWriter: kafkaWriter,
	}
}

// CheckOwner returns models.ErrForbidden unless user owns item.
func CheckOwner(user *models.User, item *models.Item) error {
	if user == nil || item == nil || user.ID != item.OwnerID {
		return models.ErrForbidden
	}
	return nil
}

// Create stores a new item owned by owner.
func (s *ItemService) Create(ctx context.Context, owner *models.User, title string, description *string) (*models.Item, error) {
	item, err := s.writer.Create(ctx, owner.ID, title, description)
	if err != nil {
		logger.Log.Errorw("failed to create item", "ownerID", owner.ID, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, models.ItemCreated, item, owner)
	return item, nil
}

// Get returns any item by id. Reads are not owner-restricted.
func (s *ItemService) Get(ctx context.Context, id int64) (*models.Item, error) {
	item, err := s.reader.GetByID(ctx, id)
	if err != nil {
		logger.Log.Infow("failed to get item", "itemID", id, "error", err)
		return nil, err
	}
	return item, nil
}

// List returns a page of all items.
func (s *ItemService) List(ctx context.Context, skip, limit int) ([]models.Item, error) {
	items, err := s.reader.List(ctx, skip, limit)
	if err != nil {
		logger.Log.Errorw("failed to list items", "error", err)
		return nil, err
	}
	return items, nil
}

// ListByOwner returns a page of the items owned by owner.
func (s *ItemService) ListByOwner(ctx context.Context, owner *models.User, skip, limit int) ([]models.Item, error) {
	items, err := s.reader.ListByOwner(ctx, owner.ID, skip, limit)
	if err != nil {
		logger.Log.Errorw("failed to list items by owner", "ownerID", owner.ID, "error", err)
		return nil, err
	}
	return items, nil
}

// Update applies patch to the item if user owns it.
func (s *ItemService) Update(ctx context.Context, user *models.User, id int64, patch models.ItemPatch) (*models.Item, error) {
	item, err := s.reader.GetByID(ctx, id)
	if err != nil {
		logger.Log.Infow("failed to get item for update", "itemID", id, "error", err)
		return nil, err
	}

	if err := CheckOwner(user, item); err != nil {
		logger.Log.Warnw("update denied", "itemID", id, "ownerID", item.OwnerID, "error", err)
		return nil, err
	}

	if patch.Empty() {
		return item, nil
	}

	updated, err := s.writer.Update(ctx, id, patch)
	if err != nil {
		logger.Log.Errorw("failed to update item", "itemID", id, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, models.ItemUpdated, updated, user)
	return updated, nil
}

// Delete removes the item if user owns it.
func (s *ItemService) Delete(ctx context.Context, user *models.User, id int64) error {
	item, err := s.reader.GetByID(ctx, id)
	if err != nil {
		logger.Log.Infow("failed to get item for delete", "itemID", id, "error", err)
		return err
	}

	if err := CheckOwner(user, item); err != nil {
		logger.Log.Warnw("delete denied", "itemID", id, "ownerID", item.OwnerID, "error", err)
		return err
	}

	if err := s.writer.Delete(ctx, id); err != nil {
		logger.Log.Errorw("failed to delete item", "itemID", id, "error", err)
		return err
	}

	s.publishEvent(ctx, models.ItemDeleted, item, user)
	return nil
}

// publishEvent publishes an item event to Kafka. Failures are logged only.
func (s *ItemService) publishEvent(ctx context.Context, operation string, item *models.Item, actor *models.User) {
	if s.kafkaWriter == nil {
		logger.Log.Debugw("Kafka writer not configured, skipping publishing", "itemID", item.ID)
		return
	}

	event := models.ItemEvent{
		EventID:   uuid.NewString(),
		Operation: operation,
		ItemID:    item.ID,
		OwnerID:   item.OwnerID,
		ActorID:   actor.ID,
		Timestamp: time.Now().Unix(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorw("Failed to marshal item event for Kafka", "event_id", event.EventID, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(item.ID, 10)),
		Value: data,
	}

	if err := s.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		logger.Log.Errorw("Failed to publish item event to Kafka", "event_id", event.EventID, "error", err)
	} else {
		logger.Log.Infow("Item event published to Kafka", "event_id", event.EventID, "operation", operation)
	}
}
