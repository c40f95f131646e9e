package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/CUknot/marketplace_chat/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenLookup resolves a user's device token. An empty token means none is registered.
type TokenLookup interface {
	FindPushToken(ctx context.Context, userID string) (string, error)
}

// TokenRegistry stores device tokens
type TokenRegistry interface {
	TokenLookup
	SavePushToken(ctx context.Context, userID, token string) error
}

// PushTokenStore keeps device tokens in the database
type PushTokenStore struct {
	db *gorm.DB
}

func NewPushTokenStore(db *gorm.DB) *PushTokenStore {
	return &PushTokenStore{db: db}
}

func (s *PushTokenStore) FindPushToken(ctx context.Context, userID string) (string, error) {
	var pt models.PushToken
	if err := s.db.WithContext(ctx).First(&pt, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: find push token: %v", ErrPersistence, err)
	}
	return pt.Token, nil
}

// SavePushToken registers token for userID, replacing any previous one
func (s *PushTokenStore) SavePushToken(ctx context.Context, userID, token string) error {
	pt := models.PushToken{UserID: userID, Token: token}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(&pt).Error
	if err != nil {
		return fmt.Errorf("%w: save push token: %v", ErrPersistence, err)
	}
	return nil
}
