package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crafture/internal/domain"
)

type fakeProvider struct {
	mu       sync.Mutex
	sessions map[string]uploadSessionRequest
	stored   map[string][]byte
	failPut  bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]uploadSessionRequest{}, stored: map[string][]byte{}}
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/pdp/piece/uploads":
		var req uploadSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := uuid.NewString()
		f.sessions[id] = req
		w.Header().Set("Location", "/pdp/piece/uploads/"+id)
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/pdp/piece/uploads/"):
		if f.failPut {
			http.Error(w, "provider unavailable", http.StatusServiceUnavailable)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/pdp/piece/uploads/")
		if _, ok := f.sessions[id]; !ok {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.stored[testCID] = data
		_ = json.NewEncoder(w).Encode(UploadResult{PieceCID: testCID, Size: int64(len(data))})
	case r.Method == http.MethodGet && r.URL.Path == "/piece/"+testCID:
		_, _ = w.Write(f.stored[testCID])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeProvider) lastSession() uploadSessionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		return s
	}
	return uploadSessionRequest{}
}

func newTestClient(t *testing.T, fp *fakeProvider) *Client {
	t.Helper()
	ts := httptest.NewServer(fp)
	t.Cleanup(ts.Close)
	return NewClient(staticSessions{session: testSession(nil)}, NewProviderClient(ts.URL, ts.Client()), ClientOptions{WithCDN: true})
}

func TestPadPayload(t *testing.T) {
	for _, n := range []int{0, 1, 126} {
		out := PadPayload(bytes.Repeat([]byte{7}, n))
		require.Len(t, out, MinUploadSize)
		assert.Equal(t, bytes.Repeat([]byte{7}, n), out[:n])
		assert.Equal(t, make([]byte, MinUploadSize-n), out[n:])
	}
	for _, n := range []int{127, 128, 4096} {
		in := bytes.Repeat([]byte{1}, n)
		assert.Equal(t, in, PadPayload(in))
	}
}

func TestUploadSmallPayloadIsPadded(t *testing.T) {
	fp := newFakeProvider()
	c := newTestClient(t, fp)

	rec, err := c.Upload(context.Background(), []byte(`{"name":"x"}`), "x.json", "application/json")
	require.NoError(t, err)

	assert.Len(t, fp.stored[testCID], MinUploadSize)
	assert.Equal(t, int64(MinUploadSize), rec.Size)
	assert.Equal(t, testCID, rec.ContentID)
	assert.Equal(t, "calibration", rec.Network)
	assert.Equal(t, "https://0x5233e4253bc38e8cf517c0768dbc8acc886f32b3.calibration.filbeam.io/"+testCID, rec.GatewayURL)
}

func TestUploadSendsContextMetadata(t *testing.T) {
	fp := newFakeProvider()
	c := newTestClient(t, fp)

	data := bytes.Repeat([]byte{9}, 500)
	_, err := c.Upload(context.Background(), data, "generated-1.png", "image/png")
	require.NoError(t, err)

	assert.Equal(t, data, fp.stored[testCID])
	s := fp.lastSession()
	assert.Equal(t, 1, s.ProviderID)
	assert.True(t, s.WithCDN)
	assert.Equal(t, 500, s.Size)
	assert.Equal(t, map[string]string{
		"category": "ai-generated-images",
		"version":  "1.0",
		"fileName": "generated-1.png",
		"mimeType": "image/png",
	}, s.Metadata)
}

func TestUploadFailureIsStorageError(t *testing.T) {
	fp := newFakeProvider()
	fp.failPut = true
	c := newTestClient(t, fp)

	_, err := c.Upload(context.Background(), []byte("abc"), "a.png", "image/png")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorContains(t, err, "503")
}

func TestUploadWithoutSessionIsStorageError(t *testing.T) {
	c := NewClient(staticSessions{err: domain.ErrConfiguration}, NewProviderClient("http://unused", nil), ClientOptions{})

	_, err := c.Upload(context.Background(), []byte("abc"), "a.png", "image/png")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDownloadReturnsPaddedBytes(t *testing.T) {
	fp := newFakeProvider()
	c := newTestClient(t, fp)

	_, err := c.Upload(context.Background(), []byte("hi"), "hi.txt", "text/plain")
	require.NoError(t, err)

	data, err := c.Download(context.Background(), testCID)
	require.NoError(t, err)
	assert.Len(t, data, MinUploadSize)
	assert.Equal(t, []byte("hi"), data[:2])
}

func TestDownloadRejectsInvalidID(t *testing.T) {
	c := newTestClient(t, newFakeProvider())
	_, err := c.Download(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
