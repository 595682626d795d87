package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"crafture/internal/domain"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error { return r.scan(dest...) }

type stubRows struct {
	items []domain.HistoryRow
	idx   int
	err   error
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, errors.New("not supported") }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.items) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	row := r.items[r.idx-1]
	*dest[0].(*int64) = row.ID
	*dest[1].(*string) = row.WalletAddress
	*dest[2].(*string) = row.StorageURL
	*dest[3].(*string) = row.Prompt
	*dest[4].(*time.Time) = row.CreatedAt
	return nil
}

// memoryDB emulates the history table closely enough for the repository.
type memoryDB struct {
	mu      sync.Mutex
	rows    []domain.HistoryRow
	queries []string
	limit   any
	fail    error
}

func (m *memoryDB) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.fail != nil {
		return pgconn.CommandTag{}, m.fail
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (m *memoryDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.fail != nil {
		return stubRow{scan: func(...any) error { return m.fail }}
	}
	switch {
	case strings.Contains(query, "insert into"):
		row := domain.HistoryRow{
			ID:            int64(len(m.rows) + 1),
			WalletAddress: args[0].(string),
			StorageURL:    args[1].(string),
			Prompt:        args[2].(string),
			CreatedAt:     args[3].(time.Time),
		}
		m.rows = append(m.rows, row)
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int64) = row.ID
			*dest[1].(*string) = row.WalletAddress
			*dest[2].(*string) = row.StorageURL
			*dest[3].(*string) = row.Prompt
			*dest[4].(*time.Time) = row.CreatedAt
			return nil
		}}
	case strings.Contains(query, "count(*)"):
		n := int64(len(m.rows))
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int64) = n
			return nil
		}}
	}
	return stubRow{scan: func(...any) error { return fmt.Errorf("unsupported query: %s", query) }}
}

func (m *memoryDB) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.fail != nil {
		return nil, m.fail
	}
	m.limit = args[1]
	var matched []domain.HistoryRow
	for _, row := range m.rows {
		if row.WalletAddress == args[0].(string) {
			matched = append(matched, row)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if limit := args[1].(int); len(matched) > limit {
		matched = matched[:limit]
	}
	return &stubRows{items: matched}, nil
}

func newTestRepo(db *memoryDB) *HistoryRepositoryPG {
	repo := NewHistoryRepository(db, "AI Generated Content", time.Second)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	repo.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return repo
}

func TestHistorySaveQuotesTableName(t *testing.T) {
	db := &memoryDB{}
	repo := newTestRepo(db)

	row, err := repo.Save(context.Background(), "0xabc", "https://gw/x", "a cat")
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if row.ID != 1 || row.StorageURL != "https://gw/x" {
		t.Fatalf("unexpected row: %#v", row)
	}
	if !strings.Contains(db.queries[0], `"AI Generated Content"`) {
		t.Fatalf("table name not quoted: %s", db.queries[0])
	}
}

func TestHistorySaveRejectsEmptyInputs(t *testing.T) {
	db := &memoryDB{}
	repo := newTestRepo(db)

	cases := [][3]string{
		{"", "https://gw/x", "p"},
		{"0xabc", " ", "p"},
		{"0xabc", "https://gw/x", ""},
	}
	for _, c := range cases {
		if _, err := repo.Save(context.Background(), c[0], c[1], c[2]); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("Save(%q) expected ErrValidation, got %v", c, err)
		}
	}
	if len(db.queries) != 0 {
		t.Fatalf("no query expected, got %d", len(db.queries))
	}
}

func TestHistorySaveWrapsStoreErrors(t *testing.T) {
	cause := errors.New("connection refused")
	repo := newTestRepo(&memoryDB{fail: cause})

	_, err := repo.Save(context.Background(), "0xabc", "https://gw/x", "p")
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("expected persistence error wrapping cause, got %v", err)
	}
}

func TestHistoryListNewestFirstCapped(t *testing.T) {
	db := &memoryDB{}
	repo := newTestRepo(db)

	for i := 0; i < 105; i++ {
		if _, err := repo.Save(context.Background(), "0xabc", fmt.Sprintf("https://gw/%d", i), "p"); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}
	if _, err := repo.Save(context.Background(), "0xother", "https://gw/other", "p"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	items, err := repo.ListByWallet(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("ListByWallet returned error: %v", err)
	}
	if db.limit != domain.HistoryLimit {
		t.Fatalf("limit mismatch: got %v want %d", db.limit, domain.HistoryLimit)
	}
	if len(items) != 100 {
		t.Fatalf("expected 100 rows, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.After(items[i-1].CreatedAt) {
			t.Fatalf("rows not newest first at %d", i)
		}
	}
	if items[0].StorageURL != "https://gw/104" {
		t.Fatalf("newest row mismatch: got %q", items[0].StorageURL)
	}
	last := db.queries[len(db.queries)-1]
	if !strings.Contains(last, "order by created_at desc") {
		t.Fatalf("query must order newest first: %s", last)
	}
}

func TestHistoryListEmptyWallet(t *testing.T) {
	repo := newTestRepo(&memoryDB{})

	items, err := repo.ListByWallet(context.Background(), "0xnobody")
	if err != nil {
		t.Fatalf("ListByWallet returned error: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestHistoryCount(t *testing.T) {
	db := &memoryDB{}
	repo := newTestRepo(db)
	for i := 0; i < 3; i++ {
		if _, err := repo.Save(context.Background(), "0xabc", "https://gw/x", "p"); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}
	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if n != 3 {
		t.Fatalf("Count mismatch: got %d want 3", n)
	}
}

func TestMigrateCreatesTableAndIndex(t *testing.T) {
	db := &memoryDB{}
	if err := Migrate(context.Background(), db, "AI Generated Content"); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	if len(db.queries) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(db.queries))
	}
	if !strings.Contains(db.queries[1], `"ai_generated_content_wallet_created_idx"`) {
		t.Fatalf("index name mismatch: %s", db.queries[1])
	}
}
