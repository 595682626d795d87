package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crafture/internal/domain"
	"crafture/internal/infra"
)

// MinUploadSize is the smallest payload the storage network accepts.
const MinUploadSize = 127

const (
	metadataCategory = "ai-generated-images"
	metadataVersion  = "1.0"
)

// ClientOptions configures the Storage Client.
type ClientOptions struct {
	ProviderID    int
	WithCDN       bool
	GatewayDomain string
	Timeout       time.Duration
	Logger        *infra.Logger
}

// Client uploads artifacts to warm storage and reads them back.
type Client struct {
	sessions SessionSource
	provider *ProviderClient
	opts     ClientOptions
	logger   infra.Logger
}

func NewClient(sessions SessionSource, provider *ProviderClient, opts ClientOptions) *Client {
	if opts.ProviderID <= 0 {
		opts.ProviderID = 1
	}
	if opts.GatewayDomain == "" {
		opts.GatewayDomain = DefaultGatewayDomain
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{sessions: sessions, provider: provider, opts: opts, logger: logger}
}

// GatewayDomain returns the CDN domain used for gateway URLs.
func (c *Client) GatewayDomain() string {
	return c.opts.GatewayDomain
}

// PadPayload zero-pads data shorter than MinUploadSize. Longer payloads are
// returned as is.
func PadPayload(data []byte) []byte {
	if len(data) >= MinUploadSize {
		return data
	}
	padded := make([]byte, MinUploadSize)
	copy(padded, data)
	return padded
}

// Upload stores data and returns its record. Every call opens a fresh
// storage context tagged with the file metadata.
func (c *Client) Upload(ctx context.Context, data []byte, fileName, mimeType string) (domain.StorageRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	s, err := c.sessions.Session(ctx)
	if err != nil {
		return domain.StorageRecord{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	payload := PadPayload(data)
	if len(payload) != len(data) {
		c.logger.Debug().Int("size", len(data)).Int("padded", len(payload)).Msg("payload padded to minimum upload size")
	}

	opts := ContextOptions{
		ProviderID: c.opts.ProviderID,
		WithCDN:    c.opts.WithCDN,
		Metadata: map[string]string{
			"category": metadataCategory,
			"version":  metadataVersion,
			"fileName": fileName,
			"mimeType": mimeType,
		},
	}
	res, err := c.provider.Upload(ctx, s.Address.Hex(), payload, opts)
	if err != nil {
		return domain.StorageRecord{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	rec := domain.StorageRecord{
		ContentID:  res.PieceCID,
		Size:       res.Size,
		GatewayURL: BuildGatewayURL(s.ServiceAddress(), s.Network, c.opts.GatewayDomain, res.PieceCID),
		Network:    s.Network,
	}
	c.logger.Info().Str("content_id", rec.ContentID).Int64("size", rec.Size).Str("file", fileName).Msg("stored artifact")
	return rec, nil
}

// Download returns the stored bytes, padding included.
func (c *Client) Download(ctx context.Context, contentID string) ([]byte, error) {
	if err := ValidateContentID(contentID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if _, err := c.sessions.Session(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	data, err := c.provider.Download(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return data, nil
}
