package issuance

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrIssuance        = errors.New("ticket issuance failed")
	ErrInvalidQuantity = errors.New("order carries no ticket quantity")
)

const (
	guestName = "Invitado"

	// GuestEmailDomain marks placeholder addresses that cannot receive mail.
	GuestEmailDomain = "ticketeate.local"
)

// PaymentInfo is the part of the provider payment record issuance needs.
type PaymentInfo struct {
	PaymentID  string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	PayerName  string
	Units      int
}

type Result struct {
	Buyer       models.User
	Reservation models.Reservation
	Tickets     []models.Ticket
	Placement   Placement
}

type Issuer struct {
	catalog Catalog
	newCode func() string
	now     func() time.Time
}

type Option func(*Issuer)

// WithCodeSource replaces the ticket code generator.
func WithCodeSource(fn func() string) Option {
	return func(i *Issuer) { i.newCode = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) { i.now = fn }
}

func NewIssuer(catalog Catalog, opts ...Option) *Issuer {
	if catalog == nil {
		catalog = GormCatalog{}
	}
	i := &Issuer{
		catalog: catalog,
		newCode: NewTicketCode,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewTicketCode returns 32 uppercase hex characters from a random uuid.
func NewTicketCode() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

// Issue writes the reservation, tickets, ledger payment, inventory movement
// and purchase history for an admitted order. tx must be the admission
// transaction; any error leaves it to be rolled back.
func (i *Issuer) Issue(ctx context.Context, tx *gorm.DB, order *models.Order, payment PaymentInfo) (*Result, error) {
	res, err := i.issue(ctx, tx.WithContext(ctx), order, payment)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s: %w", ErrIssuance, order.ExternalReference, err)
	}
	return res, nil
}

func (i *Issuer) issue(ctx context.Context, tx *gorm.DB, order *models.Order, payment PaymentInfo) (*Result, error) {
	meta, err := order.DecodeMetadata()
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	quantity := meta.Units()
	if quantity <= 0 {
		quantity = payment.Units
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	now := i.now()
	result := &Result{}

	buyer, err := resolveBuyer(tx, order, meta, payment)
	if err != nil {
		return nil, fmt.Errorf("resolve buyer: %w", err)
	}
	result.Buyer = *buyer

	placement, err := i.catalog.Resolve(ctx, tx, Selection{
		EventID:      meta.EventID,
		DateID:       meta.DateID,
		CategoryID:   meta.CategoryID,
		CategoryName: meta.CategoryName,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve placement: %w", err)
	}
	result.Placement = *placement

	result.Reservation = models.Reservation{
		OrderID:    order.ID,
		BuyerID:    buyer.ID,
		EventID:    placement.Event.ID,
		DateID:     placement.Date.ID,
		CategoryID: placement.Category.ID,
		Quantity:   quantity,
		Status:     models.ReservationConfirmed,
	}
	if err := tx.Create(&result.Reservation).Error; err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	result.Tickets = make([]models.Ticket, 0, quantity)
	for n := 0; n < quantity; n++ {
		ticket := models.Ticket{
			ReservationID: result.Reservation.ID,
			Code:          i.newCode(),
			Status:        models.TicketValid,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			return nil, fmt.Errorf("create ticket %d/%d: %w", n+1, quantity, err)
		}
		result.Tickets = append(result.Tickets, ticket)
	}

	amount := payment.Amount
	if amount.IsZero() {
		amount = order.Amount
	}
	currency := payment.Currency
	if currency == "" {
		currency = order.Currency
	}

	ledger := models.Payment{
		OrderID:           order.ID,
		ReservationID:     result.Reservation.ID,
		BuyerID:           buyer.ID,
		ProviderPaymentID: payment.PaymentID,
		Amount:            amount,
		Currency:          currency,
		Method:            models.PaymentMethodMercadoPago,
		Status:            models.PaymentCompleted,
	}
	if err := tx.Create(&ledger).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	movement := models.InventoryMovement{
		CategoryID: placement.Category.ID,
		BuyerID:    buyer.ID,
		OrderID:    order.ID,
		Quantity:   quantity,
		Kind:       models.MovementSale,
		At:         now,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, fmt.Errorf("create inventory movement: %w", err)
	}

	history := models.PurchaseHistory{
		BuyerID:       buyer.ID,
		OrderID:       order.ID,
		ReservationID: result.Reservation.ID,
		EventID:       placement.Event.ID,
		Quantity:      quantity,
		TotalAmount:   amount,
		Currency:      currency,
		Status:        models.PaymentCompleted,
		PurchasedAt:   now,
		EventAt:       placement.Date.StartsAt,
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, fmt.Errorf("create purchase history: %w", err)
	}

	return result, nil
}

// resolveBuyer finds the buyer by id, then by email, creating a guest
// profile when neither exists. Creation is idempotent on email.
func resolveBuyer(tx *gorm.DB, order *models.Order, meta models.OrderMetadata, payment PaymentInfo) (*models.User, error) {
	buyerID, idErr := uuid.Parse(meta.BuyerID)
	if idErr == nil {
		var user models.User
		err := tx.First(&user, "id = ?", buyerID).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	email := strings.ToLower(strings.TrimSpace(meta.BuyerEmail))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(payment.PayerEmail))
	}
	if email == "" {
		email = fmt.Sprintf("guest-%s@%s", order.ID, GuestEmailDomain)
	}
	name := strings.TrimSpace(meta.BuyerName)
	if name == "" {
		name = strings.TrimSpace(payment.PayerName)
	}
	if name == "" {
		name = guestName
	}

	guest := models.User{Email: email, Name: name, Guest: true}
	if idErr == nil {
		guest.ID = buyerID
	}
	err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&guest).Error
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := tx.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
