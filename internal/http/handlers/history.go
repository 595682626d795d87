package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"crafture/internal/domain"
	"crafture/internal/storage"
)

func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(chi.URLParam(r, "walletAddress"))
	if wallet == "" {
		a.json(w, http.StatusBadRequest, errorBody{Error: "Wallet address is required"})
		return
	}
	if a.History == nil {
		a.fail(w, r, fmt.Errorf("%w: history store not configured", domain.ErrPersistence))
		return
	}

	rows, err := a.History.ListByWallet(r.Context(), wallet)
	if err != nil {
		a.log(r).Error().Err(err).Str("wallet", wallet).Msg("history query failed")
		a.error(w, http.StatusInternalServerError, "Failed to fetch history", err.Error())
		return
	}

	items := make([]historyItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, historyItem{
			ID:            row.ID,
			WalletAddress: row.WalletAddress,
			StorageURL:    row.StorageURL,
			ContentID:     storage.ExtractContentID(row.StorageURL, a.GatewayDomain),
			Prompt:        row.Prompt,
			CreatedAt:     row.CreatedAt,
		})
	}
	a.log(r).Debug().Int("rows", len(items)).Msg("history fetched")
	resp := historyResponse{Success: true, Items: items}
	a.respond(w, r, http.StatusOK, resp, resp.legacy)
}
