package models

import (
	"time"
)

// Message is a persisted chat message. Only Read changes after creation.
type Message struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	SenderID    string    `gorm:"size:64;not null;index" json:"senderId"`
	SenderName  string    `gorm:"size:255" json:"senderName"`
	SenderEmail string    `gorm:"size:255" json:"senderEmail,omitempty"`
	ReceiverID  string    `gorm:"size:64;not null;index" json:"receiverId"`
	RoomID      string    `gorm:"size:128;index" json:"roomId,omitempty"`
	ListingID   string    `gorm:"size:64;index" json:"listingId,omitempty"`
	Read        bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
