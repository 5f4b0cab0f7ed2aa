package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TicketValid     = "VALID"
	TicketUsed      = "USED"
	TicketCancelled = "CANCELLED"
)

type Ticket struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	ReservationID uuid.UUID `gorm:"type:uuid;not null;index"`
	Code          string    `gorm:"size:64;uniqueIndex;not null"`
	Status        string    `gorm:"size:20;not null;default:'VALID'"`
	UsedAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
