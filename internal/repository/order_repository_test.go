package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"github.com/cuencadelplata/ticketeate-sub002/internal/testutil"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func approved(paymentID string) repository.PaymentUpdate {
	return repository.PaymentUpdate{Target: models.OrderApproved, PaymentID: paymentID, At: time.Now().UTC()}
}

func TestCreateRejectsDuplicateReference(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	testutil.SeedOrder(t, db, m, "ext-1", 1)

	repo := repository.NewOrderRepo(db)
	dup := &models.Order{ExternalReference: "ext-1", SellerID: m.SellerID, Currency: "ARS"}
	if err := repo.Create(context.Background(), dup); !errors.Is(err, repository.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestApplyPaymentAdmitsOnlyOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	testutil.SeedOrder(t, db, m, "ext-1", 2)
	repo := repository.NewOrderRepo(db)
	ctx := context.Background()

	calls := 0
	issue := func(tx *gorm.DB, order *models.Order) error {
		calls++
		return nil
	}

	first, err := repo.ApplyPayment(ctx, "ext-1", approved("PAY-1"), issue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Admitted || first.From != models.OrderPending || first.To != models.OrderApproved {
		t.Fatalf("unexpected first transition %+v", first)
	}

	second, err := repo.ApplyPayment(ctx, "ext-1", approved("PAY-1"), issue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Admitted {
		t.Fatal("re-confirmation must not be admitted")
	}
	if calls != 1 {
		t.Fatalf("issue called %d times, want 1", calls)
	}

	order, err := repo.FindByReference(ctx, "ext-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.PaidAt == nil || order.PaymentID == nil || *order.PaymentID != "PAY-1" {
		t.Fatalf("order not stamped: %+v", order)
	}
}

func TestApplyPaymentRollsBackWhenIssueFails(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	seeded := testutil.SeedOrder(t, db, m, "ext-1", 1)
	repo := repository.NewOrderRepo(db)

	boom := errors.New("boom")
	_, err := repo.ApplyPayment(context.Background(), "ext-1", approved("PAY-1"), func(tx *gorm.DB, order *models.Order) error {
		res := models.Reservation{
			OrderID: order.ID, BuyerID: uuid.New(), EventID: m.Event.ID,
			DateID: m.Date.ID, CategoryID: m.Category.ID, Quantity: 1,
		}
		if err := tx.Create(&res).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	order, err := repo.FindByReference(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != models.OrderPending || order.PaidAt != nil {
		t.Fatalf("order must stay pre-admission, got %s", order.Status)
	}
	if n := testutil.Count(t, db, &models.Reservation{}, "order_id = ?", seeded.ID); n != 0 {
		t.Fatalf("reservation survived rollback: %d", n)
	}
}

func TestApplyPaymentTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    models.OrderStatus
		target  models.OrderStatus
		want    models.OrderStatus
		wantErr error
	}{
		{"pending to processing", models.OrderPending, models.OrderProcessing, models.OrderProcessing, nil},
		{"pending to rejected", models.OrderPending, models.OrderRejected, models.OrderRejected, nil},
		{"approved to refunded", models.OrderApproved, models.OrderRefunded, models.OrderRefunded, nil},
		{"approved to charged back", models.OrderApproved, models.OrderChargedBack, models.OrderChargedBack, nil},
		{"approved to pending", models.OrderApproved, models.OrderPending, models.OrderApproved, repository.ErrIllegalTransition},
		{"refunded to approved", models.OrderRefunded, models.OrderApproved, models.OrderRefunded, repository.ErrIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewTestDB(t)
			m := testutil.SeedMarketplace(t, db)
			order := testutil.SeedOrder(t, db, m, "ext-1", 1)
			if err := db.Model(order).Update("status", tt.from).Error; err != nil {
				t.Fatalf("failed to set status: %v", err)
			}

			repo := repository.NewOrderRepo(db)
			issued := false
			_, err := repo.ApplyPayment(context.Background(), "ext-1",
				repository.PaymentUpdate{Target: tt.target, PaymentID: "PAY-1"},
				func(tx *gorm.DB, order *models.Order) error {
					issued = true
					return nil
				})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if issued {
				t.Fatal("non admitting transition must not issue")
			}

			got, _ := repo.FindByReference(context.Background(), "ext-1")
			if got.Status != tt.want {
				t.Fatalf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestApplyPaymentUnknownReference(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewOrderRepo(db)
	_, err := repo.ApplyPayment(context.Background(), "missing", approved("PAY-1"), nil)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListBySeller(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	for _, ref := range []string{"ext-1", "ext-2", "ext-3"} {
		testutil.SeedOrder(t, db, m, ref, 1)
	}
	repo := repository.NewOrderRepo(db)
	if _, err := repo.ApplyPayment(context.Background(), "ext-2", approved("PAY-2"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orders, total, err := repo.ListBySeller(context.Background(), m.SellerID, "", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(orders) != 2 {
		t.Fatalf("total=%d page=%d", total, len(orders))
	}

	orders, total, err = repo.ListBySeller(context.Background(), m.SellerID, models.OrderApproved, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || orders[0].ExternalReference != "ext-2" {
		t.Fatalf("unexpected approved orders %+v", orders)
	}
}

func TestListApprovedWithoutReservation(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	order := testutil.SeedOrder(t, db, m, "ext-1", 1)
	db.Model(order).Update("status", models.OrderApproved)

	orders, err := repository.NewOrderRepo(db).ListApprovedWithoutReservation(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != order.ID {
		t.Fatalf("unexpected orders %+v", orders)
	}
}

func TestRecoverIssuance(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := testutil.SeedMarketplace(t, db)
	order := testutil.SeedOrder(t, db, m, "ext-stuck", 1)
	repo := repository.NewOrderRepo(db)
	ctx := context.Background()

	noop := func(tx *gorm.DB, o *models.Order) error { return nil }
	if ok, err := repo.RecoverIssuance(ctx, "ext-stuck", noop); err != nil || ok {
		t.Fatalf("pending order must not be recovered, got %v %v", ok, err)
	}

	if err := db.Model(order).Update("status", models.OrderApproved).Error; err != nil {
		t.Fatalf("failed to approve: %v", err)
	}
	issue := func(tx *gorm.DB, o *models.Order) error {
		return tx.Create(&models.Reservation{OrderID: o.ID, BuyerID: uuid.New(), EventID: m.Event.ID, DateID: m.Date.ID, CategoryID: m.Category.ID, Quantity: 1, Status: models.ReservationConfirmed}).Error
	}
	ok, err := repo.RecoverIssuance(ctx, "ext-stuck", issue)
	if err != nil || !ok {
		t.Fatalf("expected recovery, got %v %v", ok, err)
	}
	if ok, _ := repo.RecoverIssuance(ctx, "ext-stuck", issue); ok {
		t.Fatal("order with a reservation must not be recovered twice")
	}
}
