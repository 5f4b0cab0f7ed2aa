package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketEntry is a ticket together with what it grants entry to.
type TicketEntry struct {
	Ticket      models.Ticket
	Reservation models.Reservation
	Event       models.Event
}

type TicketRepo struct {
	db *gorm.DB
}

func NewTicketRepo(db *gorm.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

func (r *TicketRepo) FindByCode(ctx context.Context, code string) (*TicketEntry, error) {
	return findEntry(r.db.WithContext(ctx), code)
}

func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Joins("JOIN reservations ON reservations.id = tickets.reservation_id").
		Where("reservations.order_id = ?", orderID).
		Order("tickets.created_at ASC").
		Find(&tickets).Error
	return tickets, err
}

// MarkUsed admits a ticket at the door. Only the event's seller may do so and
// a code can be used once.
func (r *TicketRepo) MarkUsed(ctx context.Context, code string, sellerID uuid.UUID) (*TicketEntry, error) {
	var entry *TicketEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := findEntry(tx, code)
		if err != nil {
			return err
		}
		if found.Event.SellerID != sellerID {
			return ErrForbidden
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Ticket{}).
			Where("id = ? AND status = ?", found.Ticket.ID, models.TicketValid).
			Updates(map[string]interface{}{"status": models.TicketUsed, "used_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrTicketNotValid
		}
		found.Ticket.Status = models.TicketUsed
		found.Ticket.UsedAt = &now
		entry = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func findEntry(db *gorm.DB, code string) (*TicketEntry, error) {
	var entry TicketEntry
	if err := db.Where("code = ?", code).First(&entry.Ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	if err := db.First(&entry.Reservation, "id = ?", entry.Ticket.ReservationID).Error; err != nil {
		return nil, err
	}
	if err := db.First(&entry.Event, "id = ?", entry.Reservation.EventID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
