package model

import "time"

// User represents a registered account.
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"user_id"`
	Username     string    `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string    `gorm:"size:64;not null" json:"-"`
	FullName     string    `gorm:"size:64;not null" json:"full_name"`
	UserImage    string    `gorm:"type:text" json:"user_image,omitempty"` // base64 data URL, optional
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Profile is the public view of a User, safe to return to other users.
type Profile struct {
	ID        int64  `json:"user_id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	UserImage string `json:"user_image,omitempty"`
}

// PublicProfile returns the public fields of the user.
func (u *User) PublicProfile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		UserImage: u.UserImage,
	}
}
