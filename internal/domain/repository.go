package domain

import "context"

// HistoryRepository persists generation history rows.
type HistoryRepository interface {
	Save(ctx context.Context, wallet, storageURL, prompt string) (*HistoryRow, error)
	ListByWallet(ctx context.Context, wallet string) ([]HistoryRow, error)
	Count(ctx context.Context) (int64, error)
}
