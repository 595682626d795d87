package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"crafture/internal/domain"
	"crafture/internal/imagegen"
	"crafture/internal/infra"
	"crafture/internal/metrics"
	"crafture/internal/middleware"
	"crafture/internal/storage"
)

// ArtifactStore uploads and reads back stored artifacts.
type ArtifactStore interface {
	Upload(ctx context.Context, data []byte, fileName, mimeType string) (domain.StorageRecord, error)
	Download(ctx context.Context, contentID string) ([]byte, error)
}

// PaymentRunner funds the storage payments account.
type PaymentRunner interface {
	EnsureFunded(ctx context.Context) error
}

// Deps lists the collaborators of the request handlers. History may be nil
// when no database is configured. ChainTimeout bounds the chain reads made
// while serving a request.
type Deps struct {
	Logger        infra.Logger
	Development   bool
	Fetcher       imagegen.Fetcher
	Generator     imagegen.Generator
	Storage       ArtifactStore
	Sessions      storage.SessionSource
	Payments      PaymentRunner
	History       domain.HistoryRepository
	Metrics       *metrics.Metrics
	GatewayDomain string
	FetchWorkers  int
	ChainTimeout  time.Duration
}

const defaultChainTimeout = 30 * time.Second

type App struct {
	Deps
	validate *validator.Validate
}

func NewApp(deps Deps) *App {
	if deps.FetchWorkers <= 0 {
		deps.FetchWorkers = 4
	}
	if deps.GatewayDomain == "" {
		deps.GatewayDomain = storage.DefaultGatewayDomain
	}
	if deps.ChainTimeout <= 0 {
		deps.ChainTimeout = defaultChainTimeout
	}
	return &App{Deps: deps, validate: newValidator()}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, label, msg string) {
	a.json(w, code, errorBody{Error: label, Message: msg})
}

// fail reports err with the status its kind maps to. Internal failures carry
// the error text and, in development, a stack trace.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	a.log(r).Error().Err(err).Int("status", code).Msg("request failed")
	body := errorBody{Error: "Internal server error", Message: err.Error()}
	if code < http.StatusInternalServerError {
		body.Error = http.StatusText(code)
	}
	if a.Development {
		body.Details = string(debug.Stack())
	}
	a.json(w, code, body)
}

// decode reads a JSON body. An empty body decodes to the zero value so the
// field checks report what is missing.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	a.error(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
	return false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	l := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context())).Logger()
	return &l
}
