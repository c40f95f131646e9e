package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/CUknot/marketplace_chat/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewMessage carries the fields needed to persist a message.
// Sender always comes from the authenticated connection.
type NewMessage struct {
	Content    string
	Sender     auth.Identity
	ReceiverID string
	RoomID     string
	ListingID  string
}

// MessageStore persists chat messages with gorm
type MessageStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db, now: time.Now}
}

// Create saves a new unread message and returns it with its generated id and timestamp
func (s *MessageStore) Create(ctx context.Context, in NewMessage) (*models.Message, error) {
	now := s.now().UTC()
	message := models.Message{
		ID:          uuid.NewString(),
		Content:     in.Content,
		SenderID:    in.Sender.UserID,
		SenderName:  in.Sender.DisplayName(),
		SenderEmail: in.Sender.Email,
		ReceiverID:  in.ReceiverID,
		RoomID:      in.RoomID,
		ListingID:   in.ListingID,
		Read:        false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return nil, fmt.Errorf("%w: create message: %v", ErrPersistence, err)
	}
	return &message, nil
}

// MarkRead flags the message as read. Marking an already read message is a no-op.
func (s *MessageStore) MarkRead(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	if err := s.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: find message: %v", ErrPersistence, err)
	}

	if message.Read {
		return &message, nil
	}

	if err := s.db.WithContext(ctx).Model(&message).Update("read", true).Error; err != nil {
		return nil, fmt.Errorf("%w: mark read: %v", ErrPersistence, err)
	}
	message.Read = true
	return &message, nil
}

// Conversation returns the messages exchanged between two users, oldest first.
// A non-empty listingID narrows the result to that listing.
func (s *MessageStore) Conversation(ctx context.Context, userID, otherID, listingID string) ([]models.Message, error) {
	query := s.db.WithContext(ctx).
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			userID, otherID, otherID, userID)
	if listingID != "" {
		query = query.Where("listing_id = ?", listingID)
	}

	var messages []models.Message
	if err := query.Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("%w: conversation: %v", ErrPersistence, err)
	}
	return messages, nil
}

// UnreadCount counts the unread messages addressed to userID
func (s *MessageStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: unread count: %v", ErrPersistence, err)
	}
	return count, nil
}
