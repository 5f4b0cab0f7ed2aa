package notifier

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type MockMailer struct {
	SendFunc func(ctx context.Context, msg Message) error
}

func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	return m.SendFunc(ctx, msg)
}

type MockSender struct {
	SendFunc func(ctx context.Context, job Job) error
}

func (m *MockSender) Send(ctx context.Context, job Job) error {
	return m.SendFunc(ctx, job)
}

func newTestDeadLetters(t *testing.T) *DeadLetterStore {
	t.Helper()
	s, err := OpenDeadLetterStore(filepath.Join(t.TempDir(), "dead.db"))
	if err != nil {
		t.Fatalf("failed to open dead letter store: %v", err)
	}
	return s
}

func sampleJob(ref string) Job {
	return Job{
		OrderReference: ref,
		BuyerEmail:     "ana@example.com",
		BuyerName:      "Ana",
		EventTitle:     "Festival de Primavera",
		EventAt:        time.Date(2026, 11, 20, 21, 0, 0, 0, time.UTC),
		Tickets: []TicketRef{
			{ID: "t-1", Code: "AAA"},
			{ID: "t-2", Code: "BBB"},
		},
	}
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestTicketSenderAttachesOneQRPerTicket(t *testing.T) {
	var got Message
	sender := NewTicketSender(&MockMailer{SendFunc: func(ctx context.Context, msg Message) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("mail call must be bounded by a deadline")
		}
		got = msg
		return nil
	}}, time.Second)

	if err := sender.Send(context.Background(), sampleJob("ext-123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "ana@example.com" || got.Subject != "Tu entrada para Festival de Primavera" {
		t.Fatalf("unexpected message %+v", got)
	}
	if len(got.Attachments) != 2 {
		t.Fatalf("attachments = %d", len(got.Attachments))
	}
	if got.Attachments[0].Filename != "entrada-AAA.png" || !bytes.HasPrefix(got.Attachments[0].Content, pngMagic) {
		t.Fatalf("unexpected attachment %q", got.Attachments[0].Filename)
	}
	if !strings.Contains(got.HTML, "ext-123") {
		t.Fatal("mail body must carry the order reference")
	}
}

func TestTicketSenderRejectsJobWithoutRecipient(t *testing.T) {
	sender := NewTicketSender(&MockMailer{SendFunc: func(ctx context.Context, msg Message) error {
		t.Fatal("mailer must not be called")
		return nil
	}}, time.Second)
	job := sampleJob("ext-1")
	job.BuyerEmail = ""
	if err := sender.Send(context.Background(), job); err == nil {
		t.Fatal("expected error")
	}
}

func TestPoolDeliversQueuedJobsOnClose(t *testing.T) {
	var mu sync.Mutex
	delivered := map[string]bool{}
	pool := NewPool(&MockSender{SendFunc: func(ctx context.Context, job Job) error {
		mu.Lock()
		delivered[job.OrderReference] = true
		mu.Unlock()
		return nil
	}}, nil, 3, 16)

	for _, ref := range []string{"a", "b", "c", "d", "e"} {
		if err := pool.Dispatch(context.Background(), sampleJob(ref)); err != nil {
			t.Fatalf("dispatch %s: %v", ref, err)
		}
	}
	pool.Close()

	if len(delivered) != 5 {
		t.Fatalf("delivered %d jobs, want 5", len(delivered))
	}
	if err := pool.Dispatch(context.Background(), sampleJob("late")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("dispatch after close: %v", err)
	}
}

func TestPoolDeadLettersFailures(t *testing.T) {
	dead := newTestDeadLetters(t)
	pool := NewPool(&MockSender{SendFunc: func(ctx context.Context, job Job) error {
		return errors.New("smtp down")
	}}, dead, 1, 4)

	pool.Dispatch(context.Background(), sampleJob("ext-1"))
	pool.Close()

	entry, err := dead.Get("ext-1")
	if err != nil {
		t.Fatalf("expected dead letter: %v", err)
	}
	if entry.LastError != "smtp down" || entry.Attempts != 1 {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestPoolNeverBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	dead := newTestDeadLetters(t)
	pool := NewPool(&MockSender{SendFunc: func(ctx context.Context, job Job) error {
		<-release
		return nil
	}}, dead, 1, 1)

	full := 0
	for _, ref := range []string{"a", "b", "c"} {
		if err := pool.Dispatch(context.Background(), sampleJob(ref)); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	close(release)
	pool.Close()

	if full == 0 {
		t.Fatal("expected at least one job to overflow the queue")
	}
	items, _ := dead.List()
	if len(items) != full {
		t.Fatalf("dead letters = %d, overflowed = %d", len(items), full)
	}
}

func TestDeadLetterStore(t *testing.T) {
	s := newTestDeadLetters(t)

	if err := s.Put(sampleJob("ext-1"), errors.New("first")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(sampleJob("ext-1"), errors.New("second")); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Put(sampleJob("ext-2"), errors.New("boom"))

	entry, err := s.Get("ext-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Attempts != 2 || entry.LastError != "second" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	items, err := s.List()
	if err != nil || len(items) != 2 {
		t.Fatalf("list = %d, %v", len(items), err)
	}

	if err := s.Delete("ext-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete("ext-2"); !errors.Is(err, ErrDeadLetterNotFound) {
		t.Fatalf("expected ErrDeadLetterNotFound, got %v", err)
	}
}

func TestDeadLetterStoreSharedAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead.db")
	server, err := OpenDeadLetterStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cli, err := OpenDeadLetterStore(path)
	if err != nil {
		t.Fatalf("second open must not block on the first: %v", err)
	}

	var wg sync.WaitGroup
	for i, s := range []*DeadLetterStore{server, cli, server, cli} {
		wg.Add(1)
		go func(i int, s *DeadLetterStore) {
			defer wg.Done()
			if err := s.Put(sampleJob("ext-"+string(rune('a'+i))), errors.New("down")); err != nil {
				t.Errorf("put %d: %v", i, err)
			}
		}(i, s)
	}
	wg.Wait()

	items, err := cli.List()
	if err != nil || len(items) != 4 {
		t.Fatalf("list = %d, %v", len(items), err)
	}
	if err := server.Delete("ext-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cli.Get("ext-a"); !errors.Is(err, ErrDeadLetterNotFound) {
		t.Fatalf("expected ErrDeadLetterNotFound, got %v", err)
	}
}

func TestRedispatch(t *testing.T) {
	s := newTestDeadLetters(t)
	s.Put(sampleJob("ok"), errors.New("x"))
	s.Put(sampleJob("bad"), errors.New("x"))

	sender := &MockSender{SendFunc: func(ctx context.Context, job Job) error {
		if job.OrderReference == "bad" {
			return errors.New("still failing")
		}
		return nil
	}}
	sent, failed, err := s.Redispatch(context.Background(), sender)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 || failed != 1 {
		t.Fatalf("sent=%d failed=%d", sent, failed)
	}
	if _, err := s.Get("ok"); !errors.Is(err, ErrDeadLetterNotFound) {
		t.Fatal("delivered entry must be removed")
	}
	entry, _ := s.Get("bad")
	if entry.Attempts != 2 || entry.LastError != "still failing" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestConsumerHandle(t *testing.T) {
	var got Job
	c := NewConsumer("amqp://unused", &MockSender{SendFunc: func(ctx context.Context, job Job) error {
		got = job
		return nil
	}}, nil, 10)

	if err := c.handle(context.Background(), []byte(`{"order_reference":"ext-1","tickets":[{"id":"1","code":"A"}]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrderReference != "ext-1" || len(got.Tickets) != 1 {
		t.Fatalf("unexpected job %+v", got)
	}
	if err := c.handle(context.Background(), []byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
