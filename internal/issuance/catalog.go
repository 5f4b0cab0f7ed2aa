package issuance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrDateNotFound     = errors.New("event date not found")
	ErrCategoryNotFound = errors.New("ticket category not found")
)

// Selection is the event context recorded on an order at checkout.
type Selection struct {
	EventID      string
	DateID       string
	CategoryID   string
	CategoryName string
}

// Placement is the concrete event, date and stock row tickets are issued for.
type Placement struct {
	Event    models.Event
	Date     models.EventDate
	Category models.Category
}

// Catalog resolves a selection inside the issuance transaction.
type Catalog interface {
	Resolve(ctx context.Context, tx *gorm.DB, sel Selection) (*Placement, error)
}

// GormCatalog reads the event tables directly. Explicit ids always win; a
// missing date falls back to the earliest one and a missing category to a
// case-insensitive name match, then to the event's first category.
type GormCatalog struct{}

func (GormCatalog) Resolve(ctx context.Context, tx *gorm.DB, sel Selection) (*Placement, error) {
	db := tx.WithContext(ctx)
	var p Placement

	eventID, err := uuid.Parse(sel.EventID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrEventNotFound, sel.EventID)
	}
	if err := first(db.Where("id = ?", eventID), &p.Event, ErrEventNotFound); err != nil {
		return nil, err
	}

	dateQuery := db.Where("event_id = ?", eventID)
	if id, err := uuid.Parse(sel.DateID); err == nil {
		dateQuery = dateQuery.Where("id = ?", id)
	} else {
		dateQuery = dateQuery.Order("starts_at ASC")
	}
	if err := first(dateQuery, &p.Date, ErrDateNotFound); err != nil {
		return nil, err
	}

	if id, err := uuid.Parse(sel.CategoryID); err == nil {
		err := first(db.Where("id = ? AND event_id = ?", id, eventID), &p.Category, ErrCategoryNotFound)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}
	if name := strings.TrimSpace(sel.CategoryName); name != "" {
		err := first(db.Where("event_id = ? AND LOWER(name) = ?", eventID, strings.ToLower(name)), &p.Category, ErrCategoryNotFound)
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, ErrCategoryNotFound) {
			return nil, err
		}
	}
	if err := first(db.Where("event_id = ?", eventID).Order("created_at ASC"), &p.Category, ErrCategoryNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func first(query *gorm.DB, dest interface{}, notFound error) error {
	if err := query.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound
		}
		return err
	}
	return nil
}
