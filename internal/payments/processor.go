package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/issuance"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/mercadopago"
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/cuencadelplata/ticketeate-sub002/internal/notifier"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"gorm.io/gorm"
)

// PaymentResolver reads authoritative payment records from the provider.
type PaymentResolver interface {
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
	SearchPayments(ctx context.Context, externalReference string) ([]mercadopago.Payment, error)
}

type Outcome struct {
	Reference string
	PaymentID string
	From      models.OrderStatus
	Status    models.OrderStatus
	Admitted  bool
	Tickets   int
}

// Processor runs the payment confirmation pipeline: resolve the payment,
// move the order, issue tickets on first approval, hand off notification.
type Processor struct {
	orders     *repository.OrderRepo
	resolver   PaymentResolver
	issuer     *issuance.Issuer
	dispatcher notifier.Dispatcher
	now        func() time.Time
}

func NewProcessor(orders *repository.OrderRepo, resolver PaymentResolver, issuer *issuance.Issuer, dispatcher notifier.Dispatcher) *Processor {
	return &Processor{
		orders:     orders,
		resolver:   resolver,
		issuer:     issuer,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// HandlePayment processes one payment notification. It is safe to call any
// number of times, concurrently, for the same payment.
func (p *Processor) HandlePayment(ctx context.Context, paymentID string) (*Outcome, error) {
	payment, err := p.resolver.GetPayment(ctx, paymentID)
	if err != nil {
		logger.Warnf("[PAYMENT_RESOLVE_FAILED] payment_id=%s err=%v", paymentID, err)
		return nil, err
	}
	return p.apply(ctx, payment)
}

func (p *Processor) apply(ctx context.Context, payment *mercadopago.Payment) (*Outcome, error) {
	ref := payment.ExternalReference
	paymentID := payment.ID.String()
	target := MapProviderStatus(payment.Status)
	logger.Infof("[PAYMENT_RESOLVED] order_ref=%s payment_id=%s provider_status=%s target=%s amount=%s",
		ref, paymentID, payment.Status, target, payment.TransactionAmount)

	if ref == "" {
		logger.Warnf("[ORDER_NOT_FOUND] payment_id=%s has no external reference", paymentID)
		return nil, fmt.Errorf("%w: payment %s has no external reference", repository.ErrOrderNotFound, paymentID)
	}

	info := paymentInfo(payment)
	var issued *issuance.Result
	transition, err := p.orders.ApplyPayment(ctx, ref, repository.PaymentUpdate{
		Target:          target,
		PaymentID:       paymentID,
		MerchantOrderID: payment.MerchantOrderID(),
		At:              p.now(),
	}, func(tx *gorm.DB, order *models.Order) error {
		res, err := p.issuer.Issue(ctx, tx, order, info)
		if err != nil {
			return err
		}
		issued = res
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			logger.Warnf("[ORDER_NOT_FOUND] order_ref=%s payment_id=%s", ref, paymentID)
		case errors.Is(err, repository.ErrIllegalTransition):
			logger.Warnf("[ILLEGAL_TRANSITION] order_ref=%s payment_id=%s err=%v", ref, paymentID, err)
		case errors.Is(err, issuance.ErrIssuance):
			logger.Errorf("[ISSUANCE_FAILED] order_ref=%s payment_id=%s err=%v", ref, paymentID, err)
		default:
			logger.Errorf("[ORDER_UPDATE_FAILED] order_ref=%s payment_id=%s err=%v", ref, paymentID, err)
		}
		return nil, err
	}

	outcome := &Outcome{
		Reference: ref,
		PaymentID: paymentID,
		From:      transition.From,
		Status:    transition.To,
		Admitted:  transition.Admitted,
	}
	switch {
	case transition.Admitted:
		outcome.Tickets = len(issued.Tickets)
		logger.Infof("[ORDER_ADMITTED] order_ref=%s payment_id=%s from=%s tickets=%d",
			ref, paymentID, transition.From, outcome.Tickets)
		p.dispatch(ctx, transition.Order, issued)
	case transition.From != transition.To:
		logger.Infof("[ORDER_TRANSITION] order_ref=%s payment_id=%s from=%s to=%s", ref, paymentID, transition.From, transition.To)
	default:
		logger.Debugf("[ORDER_UNCHANGED] order_ref=%s payment_id=%s status=%s", ref, paymentID, transition.To)
	}
	return outcome, nil
}

func (p *Processor) dispatch(ctx context.Context, order *models.Order, res *issuance.Result) {
	if p.dispatcher == nil || res == nil {
		return
	}
	if strings.HasSuffix(res.Buyer.Email, "@"+issuance.GuestEmailDomain) {
		logger.Warnf("[DISPATCH_SKIPPED] order_ref=%s buyer has no deliverable email", order.ExternalReference)
		return
	}
	job := BuildJob(order, res)
	if err := p.dispatcher.Dispatch(context.WithoutCancel(ctx), job); err != nil {
		logger.Errorf("[DISPATCH_FAILED] order_ref=%s to=%s err=%v", order.ExternalReference, job.BuyerEmail, err)
	}
}

// BuildJob assembles the notification for an issued order.
func BuildJob(order *models.Order, res *issuance.Result) notifier.Job {
	job := notifier.Job{
		OrderReference: order.ExternalReference,
		BuyerEmail:     res.Buyer.Email,
		BuyerName:      res.Buyer.Name,
		EventTitle:     res.Placement.Event.Title,
		EventLocation:  res.Placement.Event.Location,
		EventAt:        res.Placement.Date.StartsAt,
		CategoryName:   res.Placement.Category.Name,
		Tickets:        make([]notifier.TicketRef, 0, len(res.Tickets)),
	}
	for _, t := range res.Tickets {
		job.Tickets = append(job.Tickets, notifier.TicketRef{ID: t.ID.String(), Code: t.Code})
	}
	return job
}

func paymentInfo(payment *mercadopago.Payment) issuance.PaymentInfo {
	return issuance.PaymentInfo{
		PaymentID:  payment.ID.String(),
		Amount:     payment.TransactionAmount,
		Currency:   payment.CurrencyID,
		PayerEmail: payment.Payer.Email,
		PayerName:  payment.Payer.Name(),
		Units:      payment.LineItemUnits(),
	}
}
