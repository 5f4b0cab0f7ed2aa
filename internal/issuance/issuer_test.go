package issuance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/issuance"
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/cuencadelplata/ticketeate-sub002/internal/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func issue(t *testing.T, db *gorm.DB, issuer *issuance.Issuer, order *models.Order, info issuance.PaymentInfo) (*issuance.Result, error) {
	t.Helper()
	var res *issuance.Result
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = issuer.Issue(context.Background(), tx, order, info)
		return err
	})
	return res, err
}

func TestIssueWritesTheWholeSale(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	order := testutil.SeedOrder(t, db, m, "ext-123", 2)

	res, err := issue(t, db, issuance.NewIssuer(nil), order, issuance.PaymentInfo{
		PaymentID: "PAY-9",
		Amount:    decimal.RequireFromString("200.00"),
		Currency:  "ARS",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Reservation.Quantity != 2 || res.Reservation.Status != models.ReservationConfirmed {
		t.Fatalf("unexpected reservation %+v", res.Reservation)
	}
	if len(res.Tickets) != 2 || res.Tickets[0].Code == res.Tickets[1].Code {
		t.Fatalf("expected two distinct codes, got %+v", res.Tickets)
	}
	if res.Placement.Event.ID != m.Event.ID || res.Placement.Category.ID != m.Category.ID {
		t.Fatalf("unexpected placement %+v", res.Placement)
	}
	if !res.Buyer.Guest || res.Buyer.Email != "ana@example.com" {
		t.Fatalf("expected guest buyer, got %+v", res.Buyer)
	}

	if n := testutil.Count(t, db, &models.Ticket{}, "reservation_id = ?", res.Reservation.ID); n != 2 {
		t.Fatalf("tickets = %d", n)
	}
	if n := testutil.Count(t, db, &models.InventoryMovement{}, "order_id = ? AND kind = ? AND quantity = ?", order.ID, models.MovementSale, 2); n != 1 {
		t.Fatalf("movements = %d", n)
	}
	if n := testutil.Count(t, db, &models.PurchaseHistory{}, "order_id = ?", order.ID); n != 1 {
		t.Fatalf("purchase history = %d", n)
	}

	var ledger models.Payment
	if err := db.First(&ledger, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
	if ledger.ProviderPaymentID != "PAY-9" || !ledger.Amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected ledger %+v", ledger)
	}
}

func TestIssueReusesExistingBuyer(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	existing := models.User{Email: "ana@example.com", Name: "Ana"}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	order := testutil.SeedOrder(t, db, m, "ext-1", 1)

	res, err := issue(t, db, issuance.NewIssuer(nil), order, issuance.PaymentInfo{PaymentID: "PAY-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Buyer.ID != existing.ID || res.Buyer.Guest {
		t.Fatalf("expected existing buyer, got %+v", res.Buyer)
	}
	if n := testutil.Count(t, db, &models.User{}, ""); n != 1 {
		t.Fatalf("users = %d", n)
	}
}

func TestIssueCreatesGuestWithoutContact(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	order := testutil.SeedOrder(t, db, m, "ext-1", 1)
	order.SetMetadata(models.OrderMetadata{EventID: m.Event.ID.String(), Quantity: 1})
	db.Save(order)

	res, err := issue(t, db, issuance.NewIssuer(nil), order, issuance.PaymentInfo{PaymentID: "PAY-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Buyer.Name != "Invitado" || res.Buyer.Email != "guest-"+order.ID.String()+"@ticketeate.local" {
		t.Fatalf("unexpected guest %+v", res.Buyer)
	}
}

func TestIssueRollsBackOnDuplicateCode(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	order := testutil.SeedOrder(t, db, m, "ext-1", 2)

	issuer := issuance.NewIssuer(nil, issuance.WithCodeSource(func() string { return "SAME" }))
	_, err := issue(t, db, issuer, order, issuance.PaymentInfo{PaymentID: "PAY-1"})
	if !errors.Is(err, issuance.ErrIssuance) {
		t.Fatalf("expected ErrIssuance, got %v", err)
	}
	if n := testutil.Count(t, db, &models.Reservation{}, ""); n != 0 {
		t.Fatalf("reservations = %d", n)
	}
	if n := testutil.Count(t, db, &models.Ticket{}, ""); n != 0 {
		t.Fatalf("tickets = %d", n)
	}
}

func TestIssueRequiresQuantity(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	order := testutil.SeedOrder(t, db, m, "ext-1", 1)
	order.SetMetadata(models.OrderMetadata{EventID: m.Event.ID.String()})

	_, err := issue(t, db, issuance.NewIssuer(nil), order, issuance.PaymentInfo{PaymentID: "PAY-1"})
	if !errors.Is(err, issuance.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	res, err := issue(t, db, issuance.NewIssuer(nil), order, issuance.PaymentInfo{PaymentID: "PAY-1", Units: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Tickets) != 3 {
		t.Fatalf("tickets = %d, want units from payment", len(res.Tickets))
	}
}

func TestCatalogResolve(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)

	early := models.EventDate{EventID: m.Event.ID, StartsAt: m.Date.StartsAt.Add(-24 * time.Hour)}
	platea := models.Category{EventID: m.Event.ID, Name: "Platea Alta", Price: decimal.NewFromInt(150)}
	db.Create(&early)
	db.Create(&platea)

	tests := []struct {
		name         string
		sel          issuance.Selection
		wantDate     string
		wantCategory string
		wantErr      error
	}{
		{"explicit ids", issuance.Selection{EventID: m.Event.ID.String(), DateID: m.Date.ID.String(), CategoryID: platea.ID.String()},
			m.Date.ID.String(), platea.ID.String(), nil},
		{"earliest date and name match", issuance.Selection{EventID: m.Event.ID.String(), CategoryName: "platea alta"},
			early.ID.String(), platea.ID.String(), nil},
		{"unknown name falls back to first category", issuance.Selection{EventID: m.Event.ID.String(), CategoryName: "VIP"},
			early.ID.String(), m.Category.ID.String(), nil},
		{"unknown category id", issuance.Selection{EventID: m.Event.ID.String(), CategoryID: early.ID.String()},
			"", "", issuance.ErrCategoryNotFound},
		{"unknown event", issuance.Selection{EventID: early.ID.String()}, "", "", issuance.ErrEventNotFound},
		{"invalid event id", issuance.Selection{EventID: "nope"}, "", "", issuance.ErrEventNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := issuance.GormCatalog{}.Resolve(context.Background(), db, tt.sel)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Date.ID.String() != tt.wantDate || p.Category.ID.String() != tt.wantCategory {
				t.Fatalf("got date=%s category=%s", p.Date.ID, p.Category.ID)
			}
		})
	}
}

func TestNewTicketCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		code := issuance.NewTicketCode()
		if len(code) != 32 {
			t.Fatalf("code length = %d", len(code))
		}
		if seen[code] {
			t.Fatalf("duplicate code %s", code)
		}
		seen[code] = true
	}
}
