package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
)

type Reservation struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	BuyerID    uuid.UUID `gorm:"type:uuid;not null;index"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;index"`
	DateID     uuid.UUID `gorm:"type:uuid;not null"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null"`
	Quantity   int       `gorm:"not null"`
	Status     string    `gorm:"size:20;not null;default:'CONFIRMED'"`
	Tickets    []Ticket  `gorm:"foreignKey:ReservationID"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (reservation *Reservation) BeforeCreate(tx *gorm.DB) (err error) {
	if reservation.ID == uuid.Nil {
		reservation.ID = uuid.New()
	}
	return
}
