package repository

import (
	"context"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Purchase is a purchase history row with the event it was for.
type Purchase struct {
	models.PurchaseHistory
	Event models.Event
}

// BuyerTicket is a ticket with everything a buyer needs to show it.
type BuyerTicket struct {
	Ticket      models.Ticket
	Reservation models.Reservation
	Event       models.Event
	Date        models.EventDate
	Category    models.Category
}

type TicketFilter struct {
	EventID uuid.UUID
	Status  string
}

// BuyerRepo serves a buyer's own history. Orders are matched by the buyer
// recorded at checkout, purchases and tickets by the buyer they were issued to.
type BuyerRepo struct {
	db *gorm.DB
}

func NewBuyerRepo(db *gorm.DB) *BuyerRepo {
	return &BuyerRepo{db: db}
}

func (r *BuyerRepo) ListOrders(ctx context.Context, buyerID uuid.UUID, status models.OrderStatus, page, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Where(datatypes.JSONQuery("metadata").Equals(buyerID.String(), "buyerId"))
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	if err := query.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *BuyerRepo) ListPurchases(ctx context.Context, buyerID uuid.UUID, page, limit int) ([]Purchase, error) {
	db := r.db.WithContext(ctx)
	var history []models.PurchaseHistory
	err := db.Where("buyer_id = ?", buyerID).
		Order("purchased_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&history).Error
	if err != nil {
		return nil, err
	}

	eventIDs := make([]uuid.UUID, 0, len(history))
	for _, h := range history {
		eventIDs = append(eventIDs, h.EventID)
	}
	events, err := loadByID[models.Event](db, eventIDs, func(e models.Event) uuid.UUID { return e.ID })
	if err != nil {
		return nil, err
	}

	purchases := make([]Purchase, 0, len(history))
	for _, h := range history {
		purchases = append(purchases, Purchase{PurchaseHistory: h, Event: events[h.EventID]})
	}
	return purchases, nil
}

func (r *BuyerRepo) ListTickets(ctx context.Context, buyerID uuid.UUID, filter TicketFilter, page, limit int) ([]BuyerTicket, int64, error) {
	db := r.db.WithContext(ctx)
	query := db.Model(&models.Ticket{}).
		Joins("JOIN reservations ON reservations.id = tickets.reservation_id").
		Where("reservations.buyer_id = ?", buyerID)
	if filter.EventID != uuid.Nil {
		query = query.Where("reservations.event_id = ?", filter.EventID)
	}
	if filter.Status != "" {
		query = query.Where("tickets.status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var tickets []models.Ticket
	err := query.Order("tickets.updated_at DESC").Order("tickets.code ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&tickets).Error
	if err != nil {
		return nil, 0, err
	}

	reservationIDs := make([]uuid.UUID, 0, len(tickets))
	for _, t := range tickets {
		reservationIDs = append(reservationIDs, t.ReservationID)
	}
	reservations, err := loadByID[models.Reservation](db, reservationIDs, func(r models.Reservation) uuid.UUID { return r.ID })
	if err != nil {
		return nil, 0, err
	}
	var eventIDs, dateIDs, categoryIDs []uuid.UUID
	for _, res := range reservations {
		eventIDs = append(eventIDs, res.EventID)
		dateIDs = append(dateIDs, res.DateID)
		categoryIDs = append(categoryIDs, res.CategoryID)
	}
	events, err := loadByID[models.Event](db, eventIDs, func(e models.Event) uuid.UUID { return e.ID })
	if err != nil {
		return nil, 0, err
	}
	dates, err := loadByID[models.EventDate](db, dateIDs, func(d models.EventDate) uuid.UUID { return d.ID })
	if err != nil {
		return nil, 0, err
	}
	categories, err := loadByID[models.Category](db, categoryIDs, func(c models.Category) uuid.UUID { return c.ID })
	if err != nil {
		return nil, 0, err
	}

	out := make([]BuyerTicket, 0, len(tickets))
	for _, t := range tickets {
		res := reservations[t.ReservationID]
		out = append(out, BuyerTicket{
			Ticket:      t,
			Reservation: res,
			Event:       events[res.EventID],
			Date:        dates[res.DateID],
			Category:    categories[res.CategoryID],
		})
	}
	return out, total, nil
}

// loadByID fetches rows for ids in one query and indexes them by key.
func loadByID[T any](db *gorm.DB, ids []uuid.UUID, key func(T) uuid.UUID) (map[uuid.UUID]T, error) {
	byID := make(map[uuid.UUID]T, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	var rows []T
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		byID[key(row)] = row
	}
	return byID, nil
}
