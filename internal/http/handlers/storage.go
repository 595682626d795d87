package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crafture/internal/domain"
	"crafture/internal/metrics"
	"crafture/internal/storage"
)

const setupPaymentMessage = "Payment setup completed successfully. USDFC deposited and service approved."

func (a *App) StorageStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := a.Sessions.Session(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	chainCtx, cancel := context.WithTimeout(ctx, a.ChainTimeout)
	defer cancel()
	balance, err := s.Chain.TokenBalance(chainCtx)
	if err != nil {
		a.fail(w, r, fmt.Errorf("read wallet balance: %w", err))
		return
	}
	if a.History == nil {
		a.fail(w, r, fmt.Errorf("%w: history store not configured", domain.ErrPersistence))
		return
	}
	total, err := a.History.Count(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	resp := statsResponse{
		Success: true,
		Balance: balanceView{
			Token:    storage.FormatUnits(balance, storage.TokenDecimals),
			TokenRaw: balance.String(),
		},
		Network:               s.Network,
		StorageServiceAddress: s.WarmStorage.Hex(),
		Storage:               storageView{TotalFiles: total},
		PaymentSetup: paymentSetupView{
			HasBalance:        balance.Sign() > 0,
			SufficientBalance: balance.Cmp(storage.MinimumBalance) >= 0,
		},
	}
	a.respond(w, r, http.StatusOK, resp, resp.legacy)
}

// SetupPayment runs payment setup synchronously. The run is detached from
// the client connection so a disconnect cannot abandon a half-sent setup.
func (a *App) SetupPayment(w http.ResponseWriter, r *http.Request) {
	a.log(r).Info().Msg("payment setup requested")
	if err := a.Payments.EnsureFunded(context.WithoutCancel(r.Context())); err != nil {
		a.Metrics.PaymentSetup(metrics.OutcomeFailed)
		a.fail(w, r, err)
		return
	}
	a.Metrics.PaymentSetup(metrics.OutcomeOK)
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": setupPaymentMessage})
}

// Content streams a stored artifact back, storage padding included.
func (a *App) Content(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contentId")
	if a.Storage == nil {
		a.fail(w, r, fmt.Errorf("%w: storage not configured", domain.ErrConfiguration))
		return
	}
	data, err := a.Storage.Download(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			a.error(w, http.StatusBadRequest, "Invalid content id", err.Error())
			return
		}
		a.log(r).Error().Err(err).Str("content_id", id).Msg("download failed")
		a.error(w, http.StatusBadGateway, "Storage unavailable", err.Error())
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
