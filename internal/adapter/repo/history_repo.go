package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"crafture/internal/domain"
	"crafture/internal/infra"
	"crafture/internal/sqlinline"
)

// HistoryRepositoryPG implements domain.HistoryRepository on the Supabase
// Postgres database. Rows are append only.
type HistoryRepositoryPG struct {
	sql     infra.SQLExecutor
	table   string
	timeout time.Duration
	now     func() time.Time
}

// NewHistoryRepository creates a history repo bound to the given table name.
func NewHistoryRepository(sql infra.SQLExecutor, table string, timeout time.Duration) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{
		sql:     sql,
		table:   pgx.Identifier{table}.Sanitize(),
		timeout: timeout,
		now:     time.Now,
	}
}

// Migrate creates the history table and its wallet index when missing.
func Migrate(ctx context.Context, sql infra.SQLExecutor, table string) error {
	ident := pgx.Identifier{table}.Sanitize()
	if _, err := sql.Exec(ctx, fmt.Sprintf(sqlinline.QCreateHistoryTable, ident)); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	index := pgx.Identifier{indexName(table)}.Sanitize()
	if _, err := sql.Exec(ctx, fmt.Sprintf(sqlinline.QCreateHistoryIndex, index, ident)); err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	return nil
}

// Save appends one history row.
func (r *HistoryRepositoryPG) Save(ctx context.Context, wallet, storageURL, prompt string) (*domain.HistoryRow, error) {
	wallet = strings.TrimSpace(wallet)
	storageURL = strings.TrimSpace(storageURL)
	if wallet == "" || storageURL == "" || strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: wallet, storage url and prompt are required", domain.ErrValidation)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var row domain.HistoryRow
	err := r.sql.QueryRow(ctx, fmt.Sprintf(sqlinline.QInsertHistory, r.table), wallet, storageURL, prompt, r.now().UTC()).
		Scan(&row.ID, &row.WalletAddress, &row.StorageURL, &row.Prompt, &row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert history: %w", domain.ErrPersistence, err)
	}
	return &row, nil
}

// ListByWallet returns the newest rows for a wallet, capped at domain.HistoryLimit.
// A wallet without rows yields an empty, non-nil slice.
func (r *HistoryRepositoryPG) ListByWallet(ctx context.Context, wallet string) ([]domain.HistoryRow, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet address is required", domain.ErrValidation)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.sql.Query(ctx, fmt.Sprintf(sqlinline.QListHistoryByWallet, r.table), wallet, domain.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: list history: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	items := make([]domain.HistoryRow, 0)
	for rows.Next() {
		var row domain.HistoryRow
		if err := rows.Scan(&row.ID, &row.WalletAddress, &row.StorageURL, &row.Prompt, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan history: %w", domain.ErrPersistence, err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list history: %w", domain.ErrPersistence, err)
	}
	return items, nil
}

// Count returns the total number of stored rows.
func (r *HistoryRepositoryPG) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.sql.QueryRow(ctx, fmt.Sprintf(sqlinline.QCountHistory, r.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count history: %w", domain.ErrPersistence, err)
	}
	return n, nil
}

func (r *HistoryRepositoryPG) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func indexName(table string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(table) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String() + "_wallet_created_idx"
}

var _ domain.HistoryRepository = (*HistoryRepositoryPG)(nil)
