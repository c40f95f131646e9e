package models

import (
	"time"
)

// PushToken maps a user to the device token used for push notifications
type PushToken struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"userId"`
	Token     string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
