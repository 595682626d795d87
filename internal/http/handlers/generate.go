package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"crafture/internal/domain"
	"crafture/internal/imagegen"
	"crafture/internal/metrics"
)

type stepStatus int

const (
	stepSkipped stepStatus = iota
	stepOK
	stepFailed
)

// step records the outcome of a best-effort stage of a request.
type step[T any] struct {
	status stepStatus
	value  T
	reason string
	err    error
}

func succeeded[T any](v T) step[T] { return step[T]{status: stepOK, value: v} }

func skipped[T any](reason string) step[T] { return step[T]{status: stepSkipped, reason: reason} }

func failed[T any](err error) step[T] { return step[T]{status: stepFailed, err: err} }

func (s step[T]) OK() bool { return s.status == stepOK }

func (s step[T]) outcome() string {
	switch s.status {
	case stepOK:
		return metrics.OutcomeOK
	case stepFailed:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeSkipped
	}
}

var messages = map[string]string{
	"prompt":        "Prompt is required",
	"walletAddress": "Wallet address is required",
}

func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imagegen.GenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if field, bad := a.firstInvalid(req); bad {
		msg, known := messages[field]
		if !known {
			msg = "Invalid request"
		}
		a.json(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}

	ctx := r.Context()
	log := a.log(r)
	log.Info().Int("references", len(req.ImageURLs)).Str("wallet", req.WalletAddress).Msg("image generation requested")

	refs := a.normalizeAll(ctx, req.ImageURLs)
	if len(req.ImageURLs) == 0 {
		log.Info().Msg("no reference images, generating from prompt only")
	} else {
		log.Info().Int("processed", len(refs)).Int("requested", len(req.ImageURLs)).Msg("reference images processed")
	}

	art, err := a.Generator.Generate(ctx, req.Prompt, refs)
	if err != nil {
		a.Metrics.Generation(metrics.OutcomeFailed)
		a.fail(w, r, err)
		return
	}
	if art.HasImage() {
		a.Metrics.Generation(metrics.OutcomeOK)
	} else {
		a.Metrics.Generation(metrics.OutcomePlaceholder)
	}

	upload := a.storeArtifact(ctx, art)
	a.Metrics.Upload(upload.outcome())
	switch upload.status {
	case stepFailed:
		log.Error().Err(upload.err).Msg("storage upload failed, continuing without storage url")
	case stepSkipped:
		log.Warn().Str("reason", upload.reason).Msg("storage upload skipped")
	}

	saved := a.saveHistory(ctx, req, upload)
	a.Metrics.HistorySave(saved.outcome())
	switch saved.status {
	case stepFailed:
		log.Error().Err(saved.err).Msg("history save failed, continuing")
	case stepSkipped:
		log.Warn().Str("reason", saved.reason).Msg("history save skipped")
	}

	resp := generateResponse{
		Success:         true,
		Message:         art.Message,
		GeneratedImage:  art.DataURL,
		ProcessedImages: len(refs),
		SavedToDatabase: saved.OK(),
	}
	if upload.OK() {
		url, id := upload.value.GatewayURL, upload.value.ContentID
		resp.StorageURL, resp.ContentID = &url, &id
	}
	a.respond(w, r, http.StatusOK, resp, resp.legacy)
}

// normalizeAll fetches references concurrently and keeps the successful ones
// in request order.
func (a *App) normalizeAll(ctx context.Context, urls []string) [][]byte {
	if len(urls) == 0 {
		return nil
	}
	results := make([][]byte, len(urls))
	var g errgroup.Group
	g.SetLimit(a.FetchWorkers)
	for i, u := range urls {
		g.Go(func() error {
			data, err := a.Fetcher.Normalize(ctx, u)
			if err != nil {
				a.Metrics.ReferenceImage(metrics.OutcomeSkipped)
				a.Logger.Warn().Err(err).Str("url", u).Msg("skipping reference image")
				return nil
			}
			a.Metrics.ReferenceImage(metrics.OutcomeOK)
			results[i] = data
			return nil
		})
	}
	_ = g.Wait()

	refs := make([][]byte, 0, len(urls))
	for _, data := range results {
		if data != nil {
			refs = append(refs, data)
		}
	}
	return refs
}

func (a *App) storeArtifact(ctx context.Context, art *imagegen.Artifact) step[domain.StorageRecord] {
	if !art.HasImage() {
		return skipped[domain.StorageRecord]("no image data")
	}
	if a.Storage == nil {
		return skipped[domain.StorageRecord]("storage not configured")
	}
	fileName := fmt.Sprintf("ai-generated-%d%s", time.Now().UnixMilli(), art.Extension())
	rec, err := a.Storage.Upload(ctx, art.Data, fileName, art.MIMEType)
	if err != nil {
		return failed[domain.StorageRecord](err)
	}
	if rec.GatewayURL == "" {
		return failed[domain.StorageRecord](fmt.Errorf("%w: upload returned no gateway url", domain.ErrStorage))
	}
	return succeeded(rec)
}

func (a *App) saveHistory(ctx context.Context, req imagegen.GenerateRequest, upload step[domain.StorageRecord]) step[*domain.HistoryRow] {
	if !upload.OK() {
		return skipped[*domain.HistoryRow]("no storage url")
	}
	if a.History == nil {
		return skipped[*domain.HistoryRow]("history store not configured")
	}
	row, err := a.History.Save(ctx, req.WalletAddress, upload.value.GatewayURL, req.Prompt)
	if err != nil {
		return failed[*domain.HistoryRow](err)
	}
	return succeeded(row)
}
