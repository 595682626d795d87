package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crafture/internal/domain"
	"crafture/internal/infra"
)

// HistoryOpener connects to the history store and returns the repository
// with a release func for the underlying resources.
type HistoryOpener func(ctx context.Context) (domain.HistoryRepository, func(), error)

// LazyHistory defers connecting to the history store until the first call
// that needs it. A failed attempt is not remembered: the next call after
// RetryInterval dials again, so a database that comes up after the API
// starts is picked up without a restart.
type LazyHistory struct {
	open          HistoryOpener
	retryInterval time.Duration
	log           zerolog.Logger
	now           func() time.Time

	mu          sync.Mutex
	repo        domain.HistoryRepository
	release     func()
	lastAttempt time.Time
	lastErr     error
}

// NewLazyHistory wraps open. retryInterval throttles reconnect attempts;
// zero retries on every call.
func NewLazyHistory(open HistoryOpener, retryInterval time.Duration, logger *infra.Logger) *LazyHistory {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "history").Logger()
	}
	return &LazyHistory{
		open:          open,
		retryInterval: retryInterval,
		log:           log,
		now:           time.Now,
	}
}

// PostgresHistoryOpener dials the configured database, bootstraps the table
// and returns the Postgres repository.
func PostgresHistoryOpener(cfg *infra.Config, logger infra.Logger) HistoryOpener {
	return func(ctx context.Context) (domain.HistoryRepository, func(), error) {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		runner := infra.NewSQLRunner(pool, logger.With().Str("component", "sql").Logger())
		if err := Migrate(ctx, runner, cfg.HistoryTable); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewHistoryRepository(runner, cfg.HistoryTable, cfg.DBTimeout), pool.Close, nil
	}
}

// Connect returns the live repository, dialing if needed.
func (l *LazyHistory) Connect(ctx context.Context) (domain.HistoryRepository, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.repo != nil {
		return l.repo, nil
	}
	now := l.now()
	if l.lastErr != nil && now.Sub(l.lastAttempt) < l.retryInterval {
		return nil, fmt.Errorf("%w: history store unavailable: %w", domain.ErrPersistence, l.lastErr)
	}
	l.lastAttempt = now

	repo, release, err := l.open(ctx)
	if err != nil {
		l.lastErr = err
		l.log.Warn().Err(err).Msg("history store connect failed")
		return nil, fmt.Errorf("%w: history store unavailable: %w", domain.ErrPersistence, err)
	}
	if l.lastErr != nil {
		l.log.Info().Msg("history store connected")
	}
	l.repo, l.release, l.lastErr = repo, release, nil
	return repo, nil
}

func (l *LazyHistory) Save(ctx context.Context, wallet, storageURL, prompt string) (*domain.HistoryRow, error) {
	repo, err := l.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Save(ctx, wallet, storageURL, prompt)
}

func (l *LazyHistory) ListByWallet(ctx context.Context, wallet string) ([]domain.HistoryRow, error) {
	repo, err := l.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return repo.ListByWallet(ctx, wallet)
}

func (l *LazyHistory) Count(ctx context.Context) (int64, error) {
	repo, err := l.Connect(ctx)
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx)
}

// Close releases the connection if one was made.
func (l *LazyHistory) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release != nil {
		l.release()
	}
	l.repo, l.release = nil, nil
}

var _ domain.HistoryRepository = (*LazyHistory)(nil)
