// Package txn coordinates entry mutations: per-entry conflict tracking,
// strict FIFO operation serialization, and corruption detection with
// backup-based recovery.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ConflictError reports a second transaction opened against an entry that
// already has one in flight.
type ConflictError struct {
	ID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction conflict: entry %d already has a transaction in flight", e.ID)
}

// Operation is one unit of work executed by the serialized queue.
type Operation func(ctx context.Context) error

type job struct {
	ctx  context.Context
	op   Operation
	done chan error
}

// Manager owns the in-flight transaction set and the single-worker
// operation queue. One Manager serves one store.
type Manager struct {
	mu       sync.Mutex
	inFlight map[int64]struct{}

	// closeMu gates sends on jobs against Close: senders hold the read
	// side across the send so Close cannot close the channel under them.
	closeMu sync.RWMutex
	closed  bool

	jobs   chan job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithQueueDepth bounds pending queued operations (default 128).
func WithQueueDepth(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.jobs = make(chan job, n)
		}
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager and starts its worker.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		inFlight: make(map[int64]struct{}),
		jobs:     make(chan job, 128),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.run()
	return m
}

// run drains the queue one operation at a time, preserving submission
// order. A long-running operation delays everything behind it rather than
// letting later operations overtake it.
func (m *Manager) run() {
	defer m.wg.Done()
	for j := range m.jobs {
		if err := j.ctx.Err(); err != nil {
			j.done <- err
			continue
		}
		j.done <- j.op(j.ctx)
	}
}

// QueueOperation submits op to the serialized queue and returns a channel
// that yields its result. Operations complete in exactly the order they
// were submitted.
func (m *Manager) QueueOperation(ctx context.Context, op Operation) <-chan error {
	done := make(chan error, 1)

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		done <- fmt.Errorf("transaction manager is closed")
		return done
	}

	m.jobs <- job{ctx: ctx, op: op, done: done}
	return done
}

// Begin opens a transaction scoped to one entry id. A second Begin for the
// same id before Commit or Rollback fails with ConflictError.
func (m *Manager) Begin(id int64) (*Tx, error) {
	m.closeMu.RLock()
	closed := m.closed
	m.closeMu.RUnlock()
	if closed {
		return nil, fmt.Errorf("transaction manager is closed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.inFlight[id]; busy {
		return nil, &ConflictError{ID: id}
	}
	m.inFlight[id] = struct{}{}
	return &Tx{m: m, id: id}, nil
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

// InFlight reports how many transactions are currently open.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}

// Close stops accepting work and waits for queued operations to finish.
// The write lock waits out any QueueOperation mid-send before the channel
// closes.
func (m *Manager) Close() {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return
	}
	m.closed = true
	m.closeMu.Unlock()

	close(m.jobs)
	m.wg.Wait()
}

// Tx is one open transaction. Operations queue locally until Commit pushes
// them through the manager's serialized executor in order.
type Tx struct {
	m        *Manager
	id       int64
	ops      []Operation
	finished bool
	mu       sync.Mutex
}

// ID returns the entry id this transaction locks.
func (t *Tx) ID() int64 { return t.id }

// Queue adds an operation to run at Commit. No-op after Commit or Rollback.
func (t *Tx) Queue(op Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.ops = append(t.ops, op)
}

// Commit runs the queued operations in order through the serialized
// executor. The first failure aborts the rest, and the transaction is
// released either way.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return fmt.Errorf("transaction for entry %d already finished", t.id)
	}
	t.finished = true
	ops := t.ops
	t.ops = nil
	t.mu.Unlock()

	defer t.m.release(t.id)

	for i, op := range ops {
		if err := <-t.m.QueueOperation(ctx, op); err != nil {
			return fmt.Errorf("commit failed at operation %d: %w", i, err)
		}
	}
	return nil
}

// Rollback discards queued operations and releases the transaction.
// Calling it after Commit is a no-op.
func (t *Tx) Rollback() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.ops = nil
	t.mu.Unlock()

	t.m.release(t.id)
}
