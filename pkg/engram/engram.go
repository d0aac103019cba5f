// Package engram is the top-level facade of the memory engine: typed entry
// capture, hybrid recall, and token-budgeted context assembly over a
// durable store.
package engram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/engramdb/engram/pkg/embeddings"
	"github.com/engramdb/engram/pkg/metrics"
	"github.com/engramdb/engram/pkg/score"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/tokens"
	"github.com/engramdb/engram/pkg/txn"
	"github.com/engramdb/engram/pkg/vector"
)

// Config holds configuration for the engine.
type Config struct {
	// StorePath is the SQLite file path. Required.
	StorePath string

	// BackupDir overrides the default .backup directory beside the store.
	BackupDir string

	// OpenAIKey enables the remote embedding client. Without it the
	// deterministic local embedder is used.
	OpenAIKey string

	// EmbeddingModel overrides the remote embedding model.
	EmbeddingModel string

	// EmbeddingClient overrides client selection entirely, for tests and
	// alternative providers.
	EmbeddingClient embeddings.Client

	// TokenCountURL points at a tokenizer-accurate counting endpoint. Empty
	// means counts are always locally estimated.
	TokenCountURL string

	// TokenModel names the model for token counting and telemetry.
	TokenModel string

	// WindowSize is the model input window for budget math (default 200k).
	WindowSize int

	// GraceDays and HalfLifeDays tune recency decay. Zero takes defaults.
	GraceDays    int
	HalfLifeDays int

	Logger  *slog.Logger
	Metrics metrics.Collector
}

// Engine is the main entry point for the memory system.
type Engine struct {
	cfg      Config
	store    store.EntryStore
	index    *vector.Index
	embedder *embeddings.Service
	client   embeddings.Client
	counter  *tokens.Counter
	txns     *txn.Manager
	logger   *slog.Logger
	metrics  metrics.Collector
}

// New creates an engine, opening (and if needed recovering) the store,
// rebuilding the vector index from persisted embeddings, and starting the
// background embedding workers.
func New(cfg Config) (*Engine, error) {
	if cfg.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopCollector()
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = store.DefaultBackupDir(cfg.StorePath)
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = tokens.DefaultWindowSize
	}

	if err := prepareStoreFile(cfg); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StorePath,
		store.WithBackupDir(cfg.BackupDir),
		store.WithLogger(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client := cfg.EmbeddingClient
	if client == nil {
		if cfg.OpenAIKey != "" {
			oc := embeddings.NewOpenAIClient(cfg.OpenAIKey)
			if cfg.EmbeddingModel != "" {
				oc.Model = cfg.EmbeddingModel
			}
			client = oc
		} else {
			client = embeddings.NewLocalClient()
		}
	}

	counterOpts := []tokens.CounterOption{
		tokens.WithCounterLogger(cfg.Logger),
	}
	if cfg.TokenModel != "" {
		counterOpts = append(counterOpts, tokens.WithModel(cfg.TokenModel))
	}
	if cfg.TokenCountURL != "" {
		counterOpts = append(counterOpts, tokens.WithRemote(tokens.NewHTTPCounter(cfg.TokenCountURL, cfg.OpenAIKey)))
	}
	counter, err := tokens.NewCounter(counterOpts...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		store:   st,
		index:   vector.NewIndex(),
		client:  client,
		counter: counter,
		txns:    txn.NewManager(txn.WithManagerLogger(cfg.Logger)),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	e.embedder = embeddings.NewService(client, e, embeddings.WithServiceLogger(cfg.Logger))

	if err := e.rebuildIndex(context.Background()); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to rebuild vector index: %w", err)
	}

	return e, nil
}

// prepareStoreFile runs one integrity check against an existing store file
// and attempts a single backup restore when the file is damaged. A missing
// file is fine; the store creates it. An unrecoverable file surfaces as
// CorruptionError rather than silently degrading to memory.
func prepareStoreFile(cfg Config) error {
	if _, err := os.Stat(cfg.StorePath); os.IsNotExist(err) {
		return nil
	}

	checkErr := store.CheckIntegrity(context.Background(), cfg.StorePath)
	if checkErr == nil {
		return nil
	}

	c := txn.DetectCorruption(checkErr)
	if c.Detected && !c.Recoverable {
		return &CorruptionError{Path: cfg.StorePath, Err: checkErr}
	}

	cfg.Logger.Warn("store file failed integrity check, attempting recovery",
		"path", cfg.StorePath, "error", checkErr)

	restored, err := txn.AttemptRecovery(cfg.StorePath, cfg.BackupDir, cfg.Logger)
	if err != nil {
		return &CorruptionError{Path: cfg.StorePath, Err: err}
	}
	if !restored {
		// No backup to restore from; Open starts a fresh file and the
		// damaged one stays beside it for inspection.
		corrupt := cfg.StorePath + ".corrupt"
		if err := os.Rename(cfg.StorePath, corrupt); err != nil {
			return &CorruptionError{Path: cfg.StorePath, Err: checkErr}
		}
		cfg.Logger.Warn("no backup available, starting fresh store",
			"damaged", corrupt)
		return nil
	}

	if err := store.CheckIntegrity(context.Background(), cfg.StorePath); err != nil {
		return &CorruptionError{Path: cfg.StorePath, Err: err}
	}
	return nil
}

// rebuildIndex loads persisted quantized embeddings into the vector index.
func (e *Engine) rebuildIndex(ctx context.Context) error {
	entries, err := e.store.AllEntries(ctx)
	if err != nil {
		return err
	}
	for _, en := range entries {
		if len(en.Embedding) == 0 {
			continue
		}
		if err := e.index.Add(en.ID, nil, en.Embedding); err != nil {
			e.logger.Warn("skipping undecodable embedding", "entry_id", en.ID, "error", err)
		}
	}
	e.logger.Debug("vector index rebuilt", "indexed", e.index.Len(), "entries", len(entries))
	return nil
}

// AttachEmbedding persists a finished embedding and makes it searchable.
// It is called by the embedding workers; the quantized form goes to the
// store and the full-precision form to the index.
func (e *Engine) AttachEmbedding(ctx context.Context, id int64, full []float32, quantized []byte) error {
	ok, err := e.store.UpdateEntry(ctx, id, store.UpdateRequest{Embedding: quantized})
	if err != nil {
		return fmt.Errorf("failed to persist embedding: %w", err)
	}
	if !ok {
		return fmt.Errorf("entry %d vanished before embedding attach", id)
	}
	return e.index.Add(id, full, quantized)
}

// WaitForEmbedding blocks until the entry's embedding is attached or ctx
// is done.
func (e *Engine) WaitForEmbedding(ctx context.Context, id int64) error {
	return e.embedder.Wait(ctx, id)
}

// Backend reports which storage backend serves this engine.
func (e *Engine) Backend() store.Backend {
	return e.store.Backend()
}

// VerifyIntegrity runs a structural check against the store file.
func (e *Engine) VerifyIntegrity(ctx context.Context) error {
	if e.store.Backend() == store.BackendMemory {
		return nil
	}
	return txn.VerifyIntegrity(ctx, e.cfg.StorePath)
}

// Close shuts down background workers and releases the store. Pending
// embedding jobs are drained first so nothing is silently dropped.
func (e *Engine) Close() error {
	e.embedder.Close()
	e.txns.Close()
	e.counter.Close()
	return e.store.Close()
}

func (e *Engine) scoreOptions() score.Options {
	return score.Options{
		GraceDays:    e.cfg.GraceDays,
		HalfLifeDays: e.cfg.HalfLifeDays,
	}
}

func (e *Engine) observe(ctx context.Context, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		e.metrics.RecordError(ctx, op, ClassifyError(err))
	}
	e.metrics.RecordOperation(ctx, op, status, time.Since(start).Milliseconds())
}

var _ embeddings.Sink = (*Engine)(nil)
