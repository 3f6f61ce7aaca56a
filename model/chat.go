package model

import "time"

// Chat is a one-to-one conversation. Participant IDs are stored in
// canonical order (UserID1 < UserID2); the composite unique index makes
// concurrent get-or-create safe for the same pair.
type Chat struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"user_chat_id"`
	UserID1   int64     `gorm:"column:user_id_1;uniqueIndex:idx_chat_pair;not null" json:"user_id_1"`
	UserID2   int64     `gorm:"column:user_id_2;uniqueIndex:idx_chat_pair;not null" json:"user_id_2"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// OtherParticipant returns the participant that is not userID.
func (c *Chat) OtherParticipant(userID int64) int64 {
	if c.UserID1 == userID {
		return c.UserID2
	}
	return c.UserID1
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Chat) HasParticipant(userID int64) bool {
	return c.UserID1 == userID || c.UserID2 == userID
}
