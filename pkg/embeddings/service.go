package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sink receives finished embeddings. The engine implements it by writing the
// quantized form to the store and the full-precision form to the vector
// index.
type Sink interface {
	AttachEmbedding(ctx context.Context, id int64, full []float32, quantized []byte) error
}

type job struct {
	id   int64
	text string
}

// Service attaches embeddings to entries in the background. Appends stay
// synchronous and fast; the entry exists with a nil embedding until a worker
// gets to it. Wait is the poll primitive for callers that need the vector
// immediately.
type Service struct {
	client  Client
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	jobs chan job
	wg   sync.WaitGroup

	// closeMu gates sends on jobs against Close: senders hold the read
	// side across the send so Close cannot close the channel under them.
	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	pending map[int64]*pendingState
}

// pendingState tracks outstanding jobs for one entry. The channel closes
// only when the count drains to zero, so a Wait started after a re-enqueue
// observes the latest job, not just the first.
type pendingState struct {
	ch    chan struct{}
	count int
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	workers   int
	queueSize int
	timeout   time.Duration
	logger    *slog.Logger
}

// WithWorkers sets the number of embedding workers (default 2).
func WithWorkers(n int) ServiceOption {
	return func(c *serviceConfig) { c.workers = n }
}

// WithQueueSize sets the job queue capacity (default 256).
func WithQueueSize(n int) ServiceOption {
	return func(c *serviceConfig) { c.queueSize = n }
}

// WithTimeout bounds each embedding call (default 30s).
func WithTimeout(d time.Duration) ServiceOption {
	return func(c *serviceConfig) { c.timeout = d }
}

// WithServiceLogger sets the logger for worker failures.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(c *serviceConfig) { c.logger = l }
}

// NewService starts the background workers and returns the service.
func NewService(client Client, sink Sink, opts ...ServiceOption) *Service {
	cfg := serviceConfig{
		workers:   2,
		queueSize: 256,
		timeout:   30 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Service{
		client:  client,
		sink:    sink,
		logger:  cfg.logger,
		timeout: cfg.timeout,
		jobs:    make(chan job, cfg.queueSize),
		pending: make(map[int64]*pendingState),
	}

	s.wg.Add(cfg.workers)
	for i := 0; i < cfg.workers; i++ {
		go s.worker()
	}
	return s
}

// Enqueue schedules embedding generation for an entry. Blocks when the
// queue is full rather than dropping work.
func (s *Service) Enqueue(id int64, text string) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return fmt.Errorf("embedding service is closed")
	}

	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok {
		p = &pendingState{ch: make(chan struct{})}
		s.pending[id] = p
	}
	p.count++
	s.mu.Unlock()

	s.jobs <- job{id: id, text: text}
	return nil
}

// Wait blocks until the entry's embedding has been attached (or the attempt
// failed and was logged), or until ctx is done. An id that was never
// enqueued, or whose work already finished, returns immediately.
func (s *Service) Wait(ctx context.Context, id int64) error {
	s.mu.Lock()
	p, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-p.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingCount reports how many entries still await embeddings.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops accepting work, drains the queue, and waits for workers to
// finish. The write lock waits out any Enqueue mid-send before the channel
// closes.
func (s *Service) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.jobs)
	s.wg.Wait()
}

func (s *Service) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		s.process(j)
	}
}

func (s *Service) process(j job) {
	defer s.finish(j.id)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	vec, err := EmbedText(ctx, s.client, j.text)
	if err != nil {
		s.logger.Warn("embedding generation failed", "entry_id", j.id, "error", err)
		return
	}

	quantized, err := Quantize(vec)
	if err != nil {
		s.logger.Warn("embedding quantization failed", "entry_id", j.id, "error", err)
		return
	}

	if err := s.sink.AttachEmbedding(ctx, j.id, vec, quantized); err != nil {
		s.logger.Warn("embedding attach failed", "entry_id", j.id, "error", err)
	}
}

func (s *Service) finish(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return
	}
	p.count--
	if p.count <= 0 {
		close(p.ch)
		delete(s.pending, id)
	}
}
