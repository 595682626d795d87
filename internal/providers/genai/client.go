package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"crafture/internal/domain"
	"crafture/internal/imagegen"
	"crafture/internal/infra"
)

const (
	DefaultModel = "gemini-2.0-flash-preview-image-generation"
	imagenPrefix = "imagen-"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *infra.Logger
}

// modelsAPI is the slice of *genai.Models the client depends on.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Client sends one multi-part request per generation and extracts the first
// image from whatever shape the model answers with.
type Client struct {
	models  modelsAPI
	model   string
	timeout time.Duration
	logger  infra.Logger
}

// NewClient constructs a Gemini client. Without an API key the client is
// still returned but every Generate call fails.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	c := newClient(nil, opts)
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return c, nil
	}

	cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	sdk, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}
	c.models = sdk.Models
	return c, nil
}

func newClient(models modelsAPI, opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{models: models, model: model, timeout: timeout, logger: logger}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate produces an artifact for prompt, using refs (PNG bytes) as
// inspiration. A response without image data yields the placeholder artifact
// and no error.
func (c *Client) Generate(ctx context.Context, prompt string, refs [][]byte) (*imagegen.Artifact, error) {
	if c.models == nil {
		return nil, fmt.Errorf("%w: %w: GEMINI_API_KEY is not set", domain.ErrGeneration, domain.ErrConfiguration)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	instruction := imagegen.BuildInstruction(prompt)
	c.logger.Info().Str("model", c.model).Int("references", len(refs)).Msg("genai: generating image")

	var (
		resp result
		err  error
	)
	if strings.HasPrefix(c.model, imagenPrefix) {
		if len(refs) > 0 {
			c.logger.Warn().Str("model", c.model).Msg("genai: model ignores reference images")
		}
		resp, err = c.generateImages(ctx, instruction)
	} else {
		resp, err = c.generateContent(ctx, instruction, refs)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: model call timed out after %s: %w", domain.ErrGeneration, c.timeout, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	return c.extract(resp), nil
}

// result flattens both SDK response shapes.
type result struct {
	images []*genai.GeneratedImage
	parts  []*genai.Part
}

func (c *Client) generateContent(ctx context.Context, instruction string, refs [][]byte) (result, error) {
	parts := make([]*genai.Part, 0, len(refs)+1)
	parts = append(parts, genai.NewPartFromText(instruction))
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromBytes(ref, imagegen.PNGMimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return result{}, err
	}
	var out result
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			out.parts = append(out.parts, cand.Content.Parts...)
		}
	}
	return out, nil
}

func (c *Client) generateImages(ctx context.Context, instruction string) (result, error) {
	resp, err := c.models.GenerateImages(ctx, c.model, instruction, &genai.GenerateImagesConfig{NumberOfImages: 1})
	if err != nil {
		return result{}, err
	}
	if resp == nil {
		return result{}, nil
	}
	return result{images: resp.GeneratedImages}, nil
}

// extract applies the response priority: generated image list, then the
// first inline part, then the placeholder.
func (c *Client) extract(r result) *imagegen.Artifact {
	for _, img := range r.images {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		return imagegen.NewArtifact(img.Image.ImageBytes, img.Image.MIMEType)
	}
	for _, part := range r.parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			c.logger.Info().Str("text", part.Text).Msg("genai: model text")
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return imagegen.NewArtifact(part.InlineData.Data, part.InlineData.MIMEType)
		}
	}
	c.logger.Warn().Str("model", c.model).Msg("genai: no image data in response")
	return imagegen.PlaceholderArtifact()
}

var _ imagegen.Generator = (*Client)(nil)
