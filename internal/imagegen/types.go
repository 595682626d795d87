package imagegen

import (
	"context"
	"encoding/base64"
	"strings"
)

// PNGMimeType is the only format reference images are sent in.
const PNGMimeType = "image/png"

// PlaceholderDataURL is returned when the model answers without image bytes.
const PlaceholderDataURL = "data:image/svg+xml;base64,PHN2ZyB3aWR0aD0iNDAwIiBoZWlnaHQ9IjQwMCIgeG1sbnM9Imh0dHA6Ly93d3cudzMub3JnLzIwMDAvc3ZnIj48cmVjdCB3aWR0aD0iMTAwJSIgaGVpZ2h0PSIxMDAlIiBmaWxsPSIjMzMzIi8+PHRleHQgeD0iNTAlIiB5PSI1MCUiIGZvbnQtZmFtaWx5PSJBcmlhbCIgZm9udC1zaXplPSIyNCIgZmlsbD0iI2ZmZiIgdGV4dC1hbmNob3I9Im1pZGRsZSIgZHk9Ii4zZW0iPkFJIEltYWdlPC90ZXh0Pjwvc3ZnPg=="

const (
	MessageGenerated  = "Image generated successfully!"
	MessageNoImage    = "Image generation completed but no image data received."
	defaultOutputMIME = PNGMimeType
)

// GenerateRequest is the transient payload of one generate call.
type GenerateRequest struct {
	Prompt        string   `json:"prompt" validate:"required"`
	ImageURLs     []string `json:"imageUrls"`
	WalletAddress string   `json:"walletAddress" validate:"required"`
}

// Artifact is the outcome of one generation. Placeholder artifacts carry no
// bytes and must not be uploaded.
type Artifact struct {
	Data        []byte
	MIMEType    string
	DataURL     string
	Placeholder bool
	Message     string
}

// NewArtifact wraps generated bytes.
func NewArtifact(data []byte, mimeType string) *Artifact {
	if mimeType == "" {
		mimeType = defaultOutputMIME
	}
	return &Artifact{
		Data:     data,
		MIMEType: mimeType,
		DataURL:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Message:  MessageGenerated,
	}
}

// PlaceholderArtifact is the successful-but-empty outcome.
func PlaceholderArtifact() *Artifact {
	return &Artifact{
		DataURL:     PlaceholderDataURL,
		Placeholder: true,
		Message:     MessageNoImage,
	}
}

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
}

// Extension returns the file extension matching the artifact's MIME type.
// Unknown types fall back to ".bin" so a stored name never claims a format
// the bytes are not in.
func (a *Artifact) Extension() string {
	mimeType := strings.ToLower(strings.TrimSpace(a.MIMEType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// HasImage reports whether the artifact carries uploadable bytes.
func (a *Artifact) HasImage() bool {
	return a != nil && !a.Placeholder && len(a.Data) > 0
}

// Generator produces an artifact from a prompt and PNG reference images.
type Generator interface {
	Generate(ctx context.Context, prompt string, refs [][]byte) (*Artifact, error)
}

// Fetcher turns a reference URL into PNG bytes.
type Fetcher interface {
	Normalize(ctx context.Context, url string) ([]byte, error)
}
