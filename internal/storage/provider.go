package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ContextOptions selects the provider and delivery mode for one storage context.
type ContextOptions struct {
	ProviderID int               `json:"providerId"`
	WithCDN    bool              `json:"withCDN"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// UploadResult is what the provider reports for a stored piece.
type UploadResult struct {
	PieceCID string `json:"pieceCid"`
	Size     int64  `json:"size"`
}

type uploadSessionRequest struct {
	ContextOptions
	Payer string `json:"payer"`
	Size  int    `json:"size"`
	Hash  string `json:"sha256"`
}

// ProviderClient talks to a storage provider's piece API. Each upload opens
// its own upload session; nothing is reused between calls.
type ProviderClient struct {
	baseURL string
	http    *http.Client
	maxSize int64
}

func NewProviderClient(baseURL string, httpClient *http.Client) *ProviderClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ProviderClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, maxSize: 256 << 20}
}

// Upload creates an upload session and streams data into it.
func (p *ProviderClient) Upload(ctx context.Context, payer string, data []byte, opts ContextOptions) (UploadResult, error) {
	if p.baseURL == "" {
		return UploadResult{}, fmt.Errorf("storage provider url is not configured")
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	body, err := json.Marshal(uploadSessionRequest{ContextOptions: opts, Payer: payer, Size: len(data), Hash: digest})
	if err != nil {
		return UploadResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pdp/piece/uploads", bytes.NewReader(body))
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create upload session: %w", err)
	}
	drain(resp)
	if resp.StatusCode != http.StatusCreated {
		return UploadResult{}, fmt.Errorf("create upload session: status %d", resp.StatusCode)
	}
	location, err := p.resolve(resp.Header.Get("Location"))
	if err != nil {
		return UploadResult{}, fmt.Errorf("create upload session: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPut, location, bytes.NewReader(data))
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Content-SHA256", digest)
	resp, err = p.http.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload piece: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return UploadResult{}, fmt.Errorf("upload piece: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResult{}, fmt.Errorf("decode upload result: %w", err)
	}
	if err := ValidateContentID(out.PieceCID); err != nil {
		return UploadResult{}, fmt.Errorf("upload piece: %w", err)
	}
	if out.Size == 0 {
		out.Size = int64(len(data))
	}
	return out, nil
}

// Download fetches the raw bytes of a piece.
func (p *ProviderClient) Download(ctx context.Context, pieceCID string) ([]byte, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("storage provider url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/piece/"+url.PathEscape(pieceCID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download piece: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download piece: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("download piece: %w", err)
	}
	if int64(len(data)) > p.maxSize {
		return nil, fmt.Errorf("download piece: exceeds %d bytes", p.maxSize)
	}
	return data, nil
}

func (p *ProviderClient) resolve(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("missing Location header")
	}
	base, err := url.Parse(p.baseURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid Location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
