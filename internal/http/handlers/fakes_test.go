package handlers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"crafture/internal/domain"
	"crafture/internal/imagegen"
	"crafture/internal/storage"
)

var errBoom = errors.New("boom")

type stubGenerator struct {
	mu       sync.Mutex
	calls    int
	refs     [][]byte
	artifact *imagegen.Artifact
	err      error
}

func (g *stubGenerator) Generate(_ context.Context, _ string, refs [][]byte) (*imagegen.Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.refs = refs
	if g.err != nil {
		return nil, g.err
	}
	if g.artifact == nil {
		return imagegen.NewArtifact([]byte("png-bytes"), imagegen.PNGMimeType), nil
	}
	return g.artifact, nil
}

// stubFetcher answers with the url itself; urls containing "bad" fail.
type stubFetcher struct{}

func (stubFetcher) Normalize(_ context.Context, url string) ([]byte, error) {
	if strings.Contains(url, "bad") {
		return nil, domain.ErrFetch
	}
	return []byte(url), nil
}

type stubStore struct {
	mu       sync.Mutex
	uploads  []string
	record   domain.StorageRecord
	err      error
	download []byte
}

func (s *stubStore) Upload(_ context.Context, _ []byte, fileName, mimeType string) (domain.StorageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, fileName+"|"+mimeType)
	if s.err != nil {
		return domain.StorageRecord{}, s.err
	}
	return s.record, nil
}

func (s *stubStore) Download(_ context.Context, contentID string) ([]byte, error) {
	if err := storage.ValidateContentID(contentID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.download, nil
}

type stubHistory struct {
	mu    sync.Mutex
	rows  []domain.HistoryRow
	err   error
	saved int
}

func (h *stubHistory) Save(_ context.Context, wallet, storageURL, prompt string) (*domain.HistoryRow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	h.saved++
	row := domain.HistoryRow{ID: int64(len(h.rows) + 1), WalletAddress: wallet, StorageURL: storageURL, Prompt: prompt, CreatedAt: time.Now()}
	h.rows = append(h.rows, row)
	return &row, nil
}

func (h *stubHistory) ListByWallet(_ context.Context, wallet string) ([]domain.HistoryRow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	out := []domain.HistoryRow{}
	for _, row := range h.rows {
		if row.WalletAddress == wallet {
			out = append(out, row)
		}
	}
	return out, nil
}

func (h *stubHistory) Count(context.Context) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return 0, h.err
	}
	return int64(len(h.rows)), nil
}

type stubPayments struct {
	err   error
	calls int
}

func (p *stubPayments) EnsureFunded(context.Context) error {
	p.calls++
	return p.err
}

type stubChain struct {
	balance *big.Int
}

func (c stubChain) TokenBalance(context.Context) (*big.Int, error) { return c.balance, nil }

func (c stubChain) AccountFunds(context.Context) (*big.Int, error) { return big.NewInt(0), nil }

func (c stubChain) DepositWithPermit(context.Context, *big.Int) (common.Hash, error) {
	return common.Hash{}, errBoom
}

func (c stubChain) ApproveService(context.Context, common.Address, *big.Int, *big.Int, *big.Int) (common.Hash, error) {
	return common.Hash{}, errBoom
}

func (c stubChain) WaitForReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, errBoom
}

type stubSessions struct {
	session *storage.Session
	err     error
}

func (s stubSessions) Session(context.Context) (*storage.Session, error) {
	return s.session, s.err
}

const (
	testWallet = "0xAbC0000000000000000000000000000000000001"
	testCID    = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func testRecord() domain.StorageRecord {
	return domain.StorageRecord{
		ContentID:  testCID,
		Size:       1024,
		GatewayURL: "https://0x5233e4253bc38e8cf517c0768dbc8acc886f32b3.calibration.filbeam.io/" + testCID,
		Network:    "calibration",
	}
}

func newTestApp(deps Deps) *App {
	deps.Logger = zerolog.Nop()
	if deps.Fetcher == nil {
		deps.Fetcher = stubFetcher{}
	}
	if deps.Generator == nil {
		deps.Generator = &stubGenerator{}
	}
	return NewApp(deps)
}

// serve routes the request through chi so URL params resolve.
func serve(t *testing.T, app *App, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/health", app.Health)
	r.Post("/api/generate-image", app.GenerateImage)
	r.Get("/api/storage-stats", app.StorageStats)
	r.Post("/api/setup-payment", app.SetupPayment)
	r.Post("/api/metadata", app.Metadata)
	r.Get("/api/history", app.ListHistory)
	r.Get("/api/history/{walletAddress}", app.ListHistory)
	r.Get("/api/content/{contentId}", app.Content)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
