package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending     OrderStatus = "PENDING"
	OrderProcessing  OrderStatus = "PROCESSING"
	OrderApproved    OrderStatus = "APPROVED"
	OrderRejected    OrderStatus = "REJECTED"
	OrderCancelled   OrderStatus = "CANCELLED"
	OrderRefunded    OrderStatus = "REFUNDED"
	OrderChargedBack OrderStatus = "CHARGED_BACK"
	OrderUnknown     OrderStatus = "UNKNOWN"
)

// AdmissibleStatuses are the statuses from which an order may be admitted
// into APPROVED and have its tickets issued.
var AdmissibleStatuses = []OrderStatus{
	OrderPending,
	OrderProcessing,
	OrderUnknown,
	OrderRejected,
	OrderCancelled,
}

// Admissible reports whether reaching APPROVED from s triggers issuance.
func (s OrderStatus) Admissible() bool {
	for _, a := range AdmissibleStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from s to target is legal.
// Once an order has been paid it can only be re-confirmed, refunded or
// charged back; a refunded or charged back order never returns to APPROVED.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.Admissible() {
		return true
	}
	switch s {
	case OrderApproved:
		return target == OrderApproved || target == OrderRefunded || target == OrderChargedBack
	case OrderRefunded, OrderChargedBack:
		return target == OrderRefunded || target == OrderChargedBack
	}
	return false
}

// Wire is the lowercase form used in API responses.
func (s OrderStatus) Wire() string {
	return strings.ToLower(string(s))
}

type Order struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primary_key"`
	ExternalReference    string          `gorm:"size:128;uniqueIndex;not null"`
	PreferenceID         string          `gorm:"size:128;index"`
	PaymentID            *string         `gorm:"size:64;index"`
	MerchantOrderID      *string         `gorm:"size:64"`
	SellerID             uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount               decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	MarketplaceFeeAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency             string          `gorm:"size:3;not null"`
	Status               OrderStatus     `gorm:"size:20;not null;default:'PENDING';index"`
	PaidAt               *time.Time
	Metadata             datatypes.JSON
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OrderMetadata is the buyer, event and cart context captured at checkout.
type OrderMetadata struct {
	BuyerID      string     `json:"buyerId,omitempty"`
	BuyerEmail   string     `json:"buyerEmail,omitempty"`
	BuyerName    string     `json:"buyerName,omitempty"`
	EventID      string     `json:"eventId,omitempty"`
	DateID       string     `json:"dateId,omitempty"`
	CategoryID   string     `json:"categoryId,omitempty"`
	CategoryName string     `json:"categoryName,omitempty"`
	Quantity     int        `json:"quantity,omitempty"`
	Items        []CartItem `json:"items,omitempty"`
}

type CartItem struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Currency  string          `json:"currency"`
}

// Units is the number of tickets the cart pays for.
func (m OrderMetadata) Units() int {
	if m.Quantity > 0 {
		return m.Quantity
	}
	units := 0
	for _, item := range m.Items {
		units += item.Quantity
	}
	return units
}

func (order *Order) DecodeMetadata() (OrderMetadata, error) {
	var meta OrderMetadata
	if len(order.Metadata) == 0 {
		return meta, nil
	}
	err := json.Unmarshal(order.Metadata, &meta)
	return meta, err
}

func (order *Order) SetMetadata(meta OrderMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	order.Metadata = datatypes.JSON(raw)
	return nil
}

func (order *Order) BeforeCreate(tx *gorm.DB) (err error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = OrderPending
	}
	return
}
