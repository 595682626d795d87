package domain

import "time"

// HistoryLimit caps the rows returned for one wallet.
const HistoryLimit = 100

// HistoryRow is one persisted generation. StorageURL keeps the legacy column
// name ipfs_url in the table even though it holds a gateway URL.
type HistoryRow struct {
	ID            int64     `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	StorageURL    string    `json:"ipfs_url"`
	Prompt        string    `json:"prompt"`
	CreatedAt     time.Time `json:"created_at"`
}

// StorageRecord describes an uploaded artifact.
type StorageRecord struct {
	ContentID  string `json:"contentId"`
	Size       int64  `json:"size"`
	GatewayURL string `json:"url"`
	Network    string `json:"network"`
}
