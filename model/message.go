package model

import (
	"time"

	"gorm.io/datatypes"
)

// Attachment is one inline file carried by a message.
// Data is a base64 data URL as produced by the browser FileReader.
type Attachment struct {
	Data string `json:"data"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Message belongs to exactly one Chat. It must carry non-empty text or at
// least one attachment. Messages are never deleted; the only mutation is
// flipping IsRead.
type Message struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"message_id"`
	ChatID      int64          `gorm:"index:idx_message_chat;not null" json:"user_chat_id"`
	SenderID    int64          `gorm:"not null" json:"sender_id"`
	Text        string         `gorm:"type:text" json:"text"`
	Attachments datatypes.JSON `json:"attachments,omitempty"` // []Attachment
	IsRead      bool           `gorm:"default:false" json:"is_read"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
