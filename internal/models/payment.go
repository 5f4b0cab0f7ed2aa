package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PaymentMethodMercadoPago = "mercadopago"
	PaymentCompleted         = "COMPLETED"
)

// Payment is the ledger row written once per issued order.
type Payment struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	ReservationID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	BuyerID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProviderPaymentID string          `gorm:"size:64;not null"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency          string          `gorm:"size:3;not null"`
	Method            string          `gorm:"size:32;not null"`
	Status            string          `gorm:"size:20;not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (payment *Payment) BeforeCreate(tx *gorm.DB) (err error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return
}
