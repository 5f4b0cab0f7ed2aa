package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MovementSale = "SALE"

type InventoryMovement struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;index"`
	BuyerID    uuid.UUID `gorm:"type:uuid;not null;index"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity   int       `gorm:"not null"`
	Kind       string    `gorm:"size:20;not null"`
	At         time.Time `gorm:"not null"`
}

func (movement *InventoryMovement) BeforeCreate(tx *gorm.DB) (err error) {
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	return
}
