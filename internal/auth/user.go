package auth

import "time"

type User struct {
	ID           uint64 `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Nickname     string `gorm:"size:64;not null;default:''"`

	// SecondMe credential. A user with a non-null AccessToken is
	// "authorized": the worker generates content on their behalf.
	// Refresh/expiry is handled by the route layer, not here.
	AccessToken    *string `gorm:"type:text"`
	SecondmeUserID *string `gorm:"size:64;index"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
}
