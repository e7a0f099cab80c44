// Package backend builds the transaction source selected by BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"

	"spendboard/internal/adapters"
	"spendboard/internal/amqp"
	applog "spendboard/internal/log"
	"spendboard/internal/source"
	"spendboard/internal/source/api"
	"spendboard/internal/source/memory"
	"spendboard/internal/storage"
)

// Pinger reports whether the backend can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result contains the source, an optional readiness check and an optional
// cleanup function.
type Result struct {
	Source  source.Source
	Ready   Pinger
	Cleanup CleanupFunc
}

// Close runs the cleanup function if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on options
type Factory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// Create builds the backend described by opts.
func (f *Factory) Create(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch opts.Type {
	case APIBackend:
		return f.createAPIBackend(opts)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, opts)
	case MemoryBackend:
		return f.createMemoryBackend(opts)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", opts.Type)
	}
}

func (f *Factory) createAPIBackend(opts Options) (*Result, error) {
	client, err := api.New(opts.APIURL, opts.APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transactions API client: %w", err)
	}

	f.logger.Info("Initialized API backend", "api_url", opts.APIURL, "timeout", opts.APITimeout)

	return &Result{
		Source: client,
		Ready:  listerPinger{client},
	}, nil
}

func (f *Factory) createSQLiteBackend(ctx context.Context, opts Options) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(opts.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// A nil *amqp.Client must not reach the adapter as a non-nil interface.
	var publisher adapters.RefreshPublisher
	var amqpClient *amqp.Client
	if opts.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(opts.AMQPURL, opts.AMQPExchange, opts.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without refresh requests",
				applog.FieldError, err)
		} else {
			publisher = amqpClient
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", opts.AMQPExchange,
				"queue", opts.AMQPQueue)
		}
	}

	adapter := adapters.NewMirrorAdapter(repo, publisher, opts.MirrorStaleAfter)

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", opts.SQLiteDBPath,
		"amqp_enabled", publisher != nil,
		"stale_after", opts.MirrorStaleAfter)

	return &Result{
		Source: adapter,
		Ready:  repo,
		Cleanup: func() error {
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *Factory) createMemoryBackend(opts Options) (*Result, error) {
	dataDir := opts.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &Result{Source: store}, nil
}

// listerPinger checks a remote source by asking for a single transaction.
type listerPinger struct {
	lister source.TransactionLister
}

func (p listerPinger) Ping(ctx context.Context) error {
	_, err := p.lister.ListTransactions(ctx, source.Query{Page: 0, Size: 1})
	return err
}
