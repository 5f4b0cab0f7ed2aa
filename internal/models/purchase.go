package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseHistory is the buyer facing, denormalized record of a completed purchase.
type PurchaseHistory struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	BuyerID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrderID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	ReservationID uuid.UUID       `gorm:"type:uuid;not null"`
	EventID       uuid.UUID       `gorm:"type:uuid;not null"`
	Quantity      int             `gorm:"not null"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	Status        string          `gorm:"size:20;not null"`
	PurchasedAt   time.Time       `gorm:"not null"`
	EventAt       time.Time
}

func (PurchaseHistory) TableName() string {
	return "purchase_history"
}

func (purchase *PurchaseHistory) BeforeCreate(tx *gorm.DB) (err error) {
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	return
}
