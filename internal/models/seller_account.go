package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SellerAccount holds an organizer's linked provider credential. Linking
// itself happens outside this service; the token is refreshed here.
type SellerAccount struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	SellerID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	ProviderUserID string    `gorm:"size:64"`
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Linked reports whether the organizer can receive payments at all.
func (account *SellerAccount) Linked() bool {
	return account.AccessToken != ""
}

// ExpiresWithin reports whether the access token is expired or will be
// within d. Tokens without an expiry never expire.
func (account *SellerAccount) ExpiresWithin(now time.Time, d time.Duration) bool {
	if account.TokenExpiresAt == nil {
		return false
	}
	return !now.Add(d).Before(*account.TokenExpiresAt)
}

func (account *SellerAccount) BeforeCreate(tx *gorm.DB) (err error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return
}
