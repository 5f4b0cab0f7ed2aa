package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentUpdate is what a resolved provider payment asks of an order.
type PaymentUpdate struct {
	Target          models.OrderStatus
	PaymentID       string
	MerchantOrderID string
	At              time.Time
}

// Transition describes the effect of ApplyPayment on one order.
type Transition struct {
	Order    *models.Order
	From     models.OrderStatus
	To       models.OrderStatus
	Admitted bool
}

// IssueFunc runs inside the admission transaction. Returning an error rolls
// back the admission together with everything the function wrote.
type IssueFunc func(tx *gorm.DB, order *models.Order) error

type OrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Create(ctx context.Context, order *models.Order) error {
	if _, err := r.FindByReference(ctx, order.ExternalReference); err == nil {
		return ErrDuplicateReference
	} else if !errors.Is(err, ErrOrderNotFound) {
		return err
	}

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		// Lost a race against a concurrent checkout with the same reference.
		if _, findErr := r.FindByReference(ctx, order.ExternalReference); findErr == nil {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *OrderRepo) FindByReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("external_reference = ?", ref).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, status models.OrderStatus, page, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("seller_id = ?", sellerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListStale returns orders in one of statuses last touched between after and
// before, oldest first. A zero after leaves the window open.
func (r *OrderRepo) ListStale(ctx context.Context, statuses []models.OrderStatus, after, before time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).Where("status IN ? AND updated_at < ?", statuses, before)
	if !after.IsZero() {
		query = query.Where("updated_at >= ?", after)
	}
	err := query.Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListApprovedWithoutReservation finds paid orders whose issuance never landed.
func (r *OrderRepo) ListApprovedWithoutReservation(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("orders.*").
		Joins("LEFT JOIN reservations ON reservations.order_id = orders.id").
		Where("orders.status = ? AND reservations.id IS NULL", models.OrderApproved).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ApplyPayment moves the order identified by ref toward upd.Target in one
// transaction. The first arrival at APPROVED is admitted for issuance and
// issue runs against the same transaction.
func (r *OrderRepo) ApplyPayment(ctx context.Context, ref string, upd PaymentUpdate, issue IssueFunc) (*Transition, error) {
	if upd.At.IsZero() {
		upd.At = time.Now().UTC()
	}

	var transition *Transition
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockByReference(tx, ref)
		if err != nil {
			return err
		}
		t := &Transition{Order: order, From: order.Status, To: order.Status}

		if !order.Status.CanTransitionTo(upd.Target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, upd.Target)
		}

		if upd.Target == models.OrderApproved && order.Status.Admissible() {
			admitted, err := r.AdmitForIssuance(tx, order, upd)
			if err != nil {
				return err
			}
			if !admitted {
				if err := tx.First(order, "id = ?", order.ID).Error; err != nil {
					return err
				}
				t.To = order.Status
				transition = t
				return nil
			}
			t.Admitted = true
			t.To = models.OrderApproved
			if issue != nil {
				if err := issue(tx, order); err != nil {
					return err
				}
			}
			transition = t
			return nil
		}

		changed, err := compareAndSetStatus(tx, order, upd)
		if err != nil {
			return err
		}
		if changed {
			t.To = upd.Target
		}
		transition = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

// AdmitForIssuance flips the order to APPROVED only if its persisted status
// is still admissible. Exactly one caller per order can observe true.
func (r *OrderRepo) AdmitForIssuance(tx *gorm.DB, order *models.Order, upd PaymentUpdate) (bool, error) {
	at := upd.At
	updates := map[string]interface{}{
		"status":     models.OrderApproved,
		"paid_at":    at,
		"updated_at": at,
	}
	if upd.PaymentID != "" {
		updates["payment_id"] = upd.PaymentID
	}
	if upd.MerchantOrderID != "" {
		updates["merchant_order_id"] = upd.MerchantOrderID
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND status IN ?", order.ID, models.AdmissibleStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}

	order.Status = models.OrderApproved
	order.PaidAt = &at
	if upd.PaymentID != "" {
		order.PaymentID = &upd.PaymentID
	}
	if upd.MerchantOrderID != "" {
		order.MerchantOrderID = &upd.MerchantOrderID
	}
	return true, nil
}

func compareAndSetStatus(tx *gorm.DB, order *models.Order, upd PaymentUpdate) (bool, error) {
	updates := map[string]interface{}{
		"status":     upd.Target,
		"updated_at": upd.At,
	}
	if upd.PaymentID != "" {
		updates["payment_id"] = upd.PaymentID
	}
	if upd.MerchantOrderID != "" {
		updates["merchant_order_id"] = upd.MerchantOrderID
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	order.Status = upd.Target
	if upd.PaymentID != "" {
		order.PaymentID = &upd.PaymentID
	}
	return true, nil
}

func lockByReference(tx *gorm.DB, ref string) (*models.Order, error) {
	query := tx.Where("external_reference = ?", ref)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// RecoverIssuance runs issue for an APPROVED order that has no reservation.
// It reports false when there was nothing to recover.
func (r *OrderRepo) RecoverIssuance(ctx context.Context, ref string, issue IssueFunc) (bool, error) {
	recovered := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockByReference(tx, ref)
		if err != nil {
			return err
		}
		if order.Status != models.OrderApproved {
			return nil
		}
		var reservations int64
		if err := tx.Model(&models.Reservation{}).Where("order_id = ?", order.ID).Count(&reservations).Error; err != nil {
			return err
		}
		if reservations > 0 {
			return nil
		}
		if err := issue(tx, order); err != nil {
			return err
		}
		recovered = true
		return nil
	})
	return recovered, err
}
