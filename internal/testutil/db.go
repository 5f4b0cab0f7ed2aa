// Package testutil provides a migrated sqlite database and marketplace
// fixtures for package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/config"
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := config.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Marketplace is one organizer with one event, one date and one category.
type Marketplace struct {
	SellerID uuid.UUID
	Event    models.Event
	Date     models.EventDate
	Category models.Category
}

func SeedMarketplace(t *testing.T, db *gorm.DB) *Marketplace {
	t.Helper()
	m := &Marketplace{SellerID: uuid.New()}

	account := models.SellerAccount{SellerID: m.SellerID, ProviderUserID: "mp-user-1", AccessToken: "seller-token"}
	m.Event = models.Event{Title: "Festival de Primavera", Location: "Cuenca", SellerID: m.SellerID}
	mustCreate(t, db, &account)
	mustCreate(t, db, &m.Event)

	m.Date = models.EventDate{EventID: m.Event.ID, StartsAt: time.Date(2026, 11, 20, 21, 0, 0, 0, time.UTC)}
	m.Category = models.Category{EventID: m.Event.ID, Name: "Campo", Price: decimal.RequireFromString("100.00"), Capacity: 500}
	mustCreate(t, db, &m.Date)
	mustCreate(t, db, &m.Category)
	return m
}

// SeedOrder stores a PENDING order for quantity units of the marketplace category.
func SeedOrder(t *testing.T, db *gorm.DB, m *Marketplace, ref string, quantity int) *models.Order {
	t.Helper()
	unit := m.Category.Price
	total := unit.Mul(decimal.NewFromInt(int64(quantity)))
	order := &models.Order{
		ExternalReference:    ref,
		PreferenceID:         "pref-" + ref,
		SellerID:             m.SellerID,
		Amount:               total,
		MarketplaceFeeAmount: total.Mul(decimal.RequireFromString("0.10")).Round(2),
		Currency:             "ARS",
		Status:               models.OrderPending,
	}
	meta := models.OrderMetadata{
		BuyerEmail: "ana@example.com",
		BuyerName:  "Ana Paz",
		EventID:    m.Event.ID.String(),
		DateID:     m.Date.ID.String(),
		CategoryID: m.Category.ID.String(),
		Quantity:   quantity,
		Items: []models.CartItem{{
			Title:     m.Category.Name,
			Quantity:  quantity,
			UnitPrice: unit,
			Currency:  "ARS",
		}},
	}
	if err := order.SetMetadata(meta); err != nil {
		t.Fatalf("failed to encode metadata: %v", err)
	}
	mustCreate(t, db, order)
	return order
}

func Count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("failed to seed %T: %v", value, err)
	}
}
