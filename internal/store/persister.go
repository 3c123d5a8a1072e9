package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
)

// Persister hands archived messages to a MessageStore from a bounded queue
// drained by a fixed set of workers. Archive never blocks: when the queue is
// full the record is dropped and counted as a failure.
type Persister struct {
	store   MessageStore
	queue   chan chat.MessageRecord
	workers int
	timeout time.Duration
	log     *slog.Logger

	mu       sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup
	failures atomic.Int64
}

func NewPersister(store MessageStore, log *slog.Logger, queueSize, workers int, timeout time.Duration) *Persister {
	return &Persister{
		store:   store,
		queue:   make(chan chat.MessageRecord, queueSize),
		workers: workers,
		timeout: timeout,
		log:     log,
	}
}

// Start launches the workers. Appends outlive ctx so that Stop can drain.
func (p *Persister) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for record := range p.queue {
				p.persist(ctx, record)
			}
		}()
	}
}

// Archive implements chat.Archiver.
func (p *Persister) Archive(record chat.MessageRecord) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.fail(record, ErrPersisterStopped)
		return
	}
	select {
	case p.queue <- record:
	default:
		p.fail(record, ErrQueueFull)
	}
}

// Stop refuses new records and waits for the queue to drain.
func (p *Persister) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Failures returns how many records could not be persisted.
func (p *Persister) Failures() int64 {
	return p.failures.Load()
}

func (p *Persister) persist(ctx context.Context, record chat.MessageRecord) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.store.Append(ctx, record); err != nil {
		p.fail(record, err)
	}
}

func (p *Persister) fail(record chat.MessageRecord, err error) {
	p.failures.Add(1)
	p.log.Error("Message persistence failed",
		"error", &PersistenceError{ChatID: record.ChatID, MessageID: record.ID, Err: err})
}
