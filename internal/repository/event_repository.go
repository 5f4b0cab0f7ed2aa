package repository

import (
	"context"
	"errors"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// CountOnSale counts the event's categories that still have capacity.
func (r *EventRepo) CountOnSale(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).
		Where("event_id = ? AND capacity > 0", eventID).
		Count(&n).Error
	return n, err
}
