package notifier

import (
	"context"
	"sync"

	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
)

// Pool is an in-process Dispatcher backed by a bounded queue and a fixed
// number of workers.
type Pool struct {
	jobs   chan Job
	sender Sender
	dead   DeadLetterSink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(sender Sender, dead DeadLetterSink, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan Job, queueSize),
		sender: sender,
		dead:   dead,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

// Dispatch enqueues job and returns immediately. A full or closed queue
// sends the job straight to the dead letter store.
func (p *Pool) Dispatch(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.deadLetter(job, ErrQueueFull)
		return ErrQueueFull
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		p.deadLetter(job, ErrQueueFull)
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to be delivered.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		deliver(p.ctx, p.sender, p.dead, job)
	}
}

func (p *Pool) deadLetter(job Job, cause error) {
	if p.dead == nil {
		return
	}
	if err := p.dead.Put(job, cause); err != nil {
		logger.Errorf("[DISPATCH_FAILED] order_ref=%s dead letter write failed: %v", job.OrderReference, err)
	}
}

// deliver sends one job and dead-letters it on failure.
func deliver(ctx context.Context, sender Sender, dead DeadLetterSink, job Job) error {
	err := sender.Send(ctx, job)
	if err == nil {
		logger.Infof("[DISPATCH] order_ref=%s to=%s tickets=%d", job.OrderReference, job.BuyerEmail, len(job.Tickets))
		return nil
	}
	logger.Errorf("[DISPATCH_FAILED] order_ref=%s to=%s err=%v", job.OrderReference, job.BuyerEmail, err)
	if dead != nil {
		if dlErr := dead.Put(job, err); dlErr != nil {
			logger.Errorf("[DISPATCH_FAILED] order_ref=%s dead letter write failed: %v", job.OrderReference, dlErr)
		}
	}
	return err
}
