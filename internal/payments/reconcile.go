package payments

import (
	"context"
	"errors"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/issuance"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/mercadopago"
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"gorm.io/gorm"
)

// Failed attempts are swept too: a retry may have been approved after the
// rejection was recorded and its notification lost.
var unsettledStatuses = []models.OrderStatus{
	models.OrderPending,
	models.OrderProcessing,
	models.OrderUnknown,
	models.OrderRejected,
	models.OrderCancelled,
}

// ReconcileOptions bounds one sweep. Orders untouched for less than OlderThan
// are left to their notifications; orders untouched for more than Window are
// no longer re-checked. A zero Window checks every age.
type ReconcileOptions struct {
	OlderThan time.Duration
	Window    time.Duration
	Limit     int
}

type ReconcileReport struct {
	Checked   int
	Updated   int
	Recovered int
	Failed    int
}

// Reconcile re-resolves orders whose notifications may have been lost and
// completes issuance for paid orders that have no tickets.
func (p *Processor) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	now := p.now()
	var after time.Time
	if opts.Window > 0 {
		after = now.Add(-opts.Window)
	}

	stale, err := p.orders.ListStale(ctx, unsettledStatuses, after, now.Add(-opts.OlderThan), opts.Limit)
	if err != nil {
		return nil, err
	}
	for i := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		order := &stale[i]
		payments, err := p.paymentsFor(ctx, order)
		if err != nil {
			report.Failed++
			continue
		}
		for j := range payments {
			outcome, err := p.apply(ctx, &payments[j])
			if err != nil {
				report.Failed++
				continue
			}
			if outcome.From != outcome.Status {
				report.Updated++
			}
		}
	}

	stuck, err := p.orders.ListApprovedWithoutReservation(ctx, opts.Limit)
	if err != nil {
		return report, err
	}
	for i := range stuck {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		if err := p.recover(ctx, &stuck[i]); err != nil {
			report.Failed++
			continue
		}
		report.Recovered++
	}

	logger.Infof("[RECONCILE] checked=%d updated=%d recovered=%d failed=%d",
		report.Checked, report.Updated, report.Recovered, report.Failed)
	return report, nil
}

// paymentsFor returns the provider records for an order, oldest first so the
// latest attempt decides the final status. The search by reference finds
// retries the stored payment id does not know about; the stored id is only
// read directly when the search fails or comes back empty.
func (p *Processor) paymentsFor(ctx context.Context, order *models.Order) ([]mercadopago.Payment, error) {
	found, err := p.resolver.SearchPayments(ctx, order.ExternalReference)
	if err != nil {
		logger.Warnf("[RECONCILE] order_ref=%s search failed: %v", order.ExternalReference, err)
	}
	if err == nil && len(found) > 0 {
		for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
			found[i], found[j] = found[j], found[i]
		}
		return found, nil
	}

	if order.PaymentID == nil || *order.PaymentID == "" {
		return nil, err
	}
	payment, getErr := p.resolver.GetPayment(ctx, *order.PaymentID)
	if getErr != nil {
		logger.Warnf("[RECONCILE] order_ref=%s payment_id=%s err=%v", order.ExternalReference, *order.PaymentID, getErr)
		return nil, getErr
	}
	return []mercadopago.Payment{*payment}, nil
}

func (p *Processor) recover(ctx context.Context, order *models.Order) error {
	payments, err := p.paymentsFor(ctx, order)
	if err != nil {
		return err
	}
	var approved *mercadopago.Payment
	for i := range payments {
		if MapProviderStatus(payments[i].Status) == models.OrderApproved {
			approved = &payments[i]
		}
	}
	if approved == nil {
		logger.Warnf("[RECONCILE] order_ref=%s approved without an approved payment", order.ExternalReference)
		return errors.New("no approved payment for order")
	}

	info := paymentInfo(approved)
	var issued *models.Order
	var res *issuance.Result
	recovered, err := p.orders.RecoverIssuance(ctx, order.ExternalReference, func(tx *gorm.DB, o *models.Order) error {
		r, err := p.issuer.Issue(ctx, tx, o, info)
		if err != nil {
			return err
		}
		issued, res = o, r
		return nil
	})
	if err != nil {
		logger.Errorf("[ISSUANCE_FAILED] order_ref=%s payment_id=%s err=%v", order.ExternalReference, info.PaymentID, err)
		return err
	}
	if recovered {
		logger.Infof("[ORDER_RECOVERED] order_ref=%s payment_id=%s tickets=%d", order.ExternalReference, info.PaymentID, len(res.Tickets))
		p.dispatch(ctx, issued, res)
	}
	return nil
}
