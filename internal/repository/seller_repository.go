package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SellerAccountRepo struct {
	db *gorm.DB
}

func NewSellerAccountRepo(db *gorm.DB) *SellerAccountRepo {
	return &SellerAccountRepo{db: db}
}

// Find returns the organizer's linked account, or ErrSellerNotLinked.
func (r *SellerAccountRepo) Find(ctx context.Context, sellerID uuid.UUID) (*models.SellerAccount, error) {
	var account models.SellerAccount
	err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSellerNotLinked
		}
		return nil, err
	}
	if !account.Linked() {
		return nil, ErrSellerNotLinked
	}
	return &account, nil
}

// AccessToken returns the organizer credential used to create preferences
// on their behalf. An expired credential is reported, never returned.
func (r *SellerAccountRepo) AccessToken(ctx context.Context, sellerID uuid.UUID) (string, error) {
	account, err := r.Find(ctx, sellerID)
	if err != nil {
		return "", err
	}
	if account.ExpiresWithin(time.Now(), 0) {
		return "", ErrSellerTokenExpired
	}
	return account.AccessToken, nil
}

// SaveToken stores a renewed credential. An empty refresh token keeps the
// stored one.
func (r *SellerAccountRepo) SaveToken(ctx context.Context, sellerID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	updates := map[string]interface{}{
		"access_token":     accessToken,
		"token_expires_at": expiresAt,
		"updated_at":       time.Now().UTC(),
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	res := r.db.WithContext(ctx).Model(&models.SellerAccount{}).Where("seller_id = ?", sellerID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSellerNotLinked
	}
	return nil
}

// Unlink drops the organizer's credentials; they have to link again.
func (r *SellerAccountRepo) Unlink(ctx context.Context, sellerID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.SellerAccount{}).Where("seller_id = ?", sellerID).
		Updates(map[string]interface{}{
			"access_token":     "",
			"refresh_token":    "",
			"token_expires_at": nil,
			"updated_at":       time.Now().UTC(),
		}).Error
}
