package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"crafture/internal/domain"
	"crafture/internal/infra"
)

// NormalizerOptions configures reference image fetching.
type NormalizerOptions struct {
	Timeout    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Normalizer fetches a reference image and re-encodes it as PNG.
type Normalizer struct {
	timeout  time.Duration
	maxBytes int64
	client   *http.Client
	logger   infra.Logger
}

func NewNormalizer(opts NormalizerOptions) *Normalizer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Normalizer{timeout: timeout, maxBytes: maxBytes, client: client, logger: logger}
}

// Normalize downloads url within the configured timeout and returns PNG bytes.
// Transport failures, timeouts and non-2xx answers are domain.ErrFetch;
// undecodable bodies are domain.ErrDecode.
func (n *Normalizer) Normalize(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrFetch, url, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", domain.ErrFetch, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, n.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", domain.ErrFetch, url, err)
	}
	if int64(len(body)) > n.maxBytes {
		return nil, fmt.Errorf("%w: %s: body exceeds %d bytes", domain.ErrFetch, url, n.maxBytes)
	}

	out, format, err := ToPNG(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	n.logger.Debug().Str("url", url).Str("format", format).Int("bytes", len(out)).Msg("reference image normalized")
	return out, nil
}

// ToPNG decodes any registered raster format, or rasterizes an SVG, and
// re-encodes the result as PNG.
func ToPNG(data []byte) ([]byte, string, error) {
	var (
		img    image.Image
		format string
		err    error
	)
	if isSVG(data) {
		format = "svg"
		img, err = rasterizeSVG(data)
		if err != nil {
			return nil, format, err
		}
	} else {
		img, format, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", domain.ErrDecode, err)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, format, fmt.Errorf("%w: encode png: %w", domain.ErrDecode, err)
	}
	return buf.Bytes(), format, nil
}

var _ Fetcher = (*Normalizer)(nil)
