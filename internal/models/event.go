package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	ID        uuid.UUID   `gorm:"type:uuid;primary_key"`
	Title     string      `gorm:"not null"`
	Location  string
	SellerID  uuid.UUID   `gorm:"type:uuid;not null;index"`
	Dates     []EventDate `gorm:"foreignKey:EventID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventDate struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;index"`
	StartsAt  time.Time `gorm:"not null"`
	EndsAt    *time.Time
	CreatedAt time.Time
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}

func (date *EventDate) BeforeCreate(tx *gorm.DB) (err error) {
	if date.ID == uuid.Nil {
		date.ID = uuid.New()
	}
	return
}
