// Package notifier delivers issued tickets to buyers after the issuance
// transaction has committed. Delivery is best effort: failures end up in the
// dead letter store and never affect the tickets themselves.
package notifier

import (
	"context"
	"errors"
	"time"
)

var ErrQueueFull = errors.New("notification queue is full")

type TicketRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Job is everything needed to mail one order's tickets.
type Job struct {
	OrderReference string      `json:"order_reference"`
	BuyerEmail     string      `json:"buyer_email"`
	BuyerName      string      `json:"buyer_name"`
	EventTitle     string      `json:"event_title"`
	EventLocation  string      `json:"event_location,omitempty"`
	EventAt        time.Time   `json:"event_at"`
	CategoryName   string      `json:"category_name,omitempty"`
	Tickets        []TicketRef `json:"tickets"`
}

// Dispatcher hands a job off without waiting for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Sender performs the delivery itself.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// DeadLetterSink records jobs whose delivery failed.
type DeadLetterSink interface {
	Put(job Job, cause error) error
}
