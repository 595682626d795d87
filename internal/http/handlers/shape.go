package handlers

import (
	"net/http"
	"strings"
	"time"
)

// Responses are built once in canonical form. Clients that do not ask for
// version 2 also get the field names older frontends read, with the same
// values.

const apiVersionHeader = "X-API-Version"

func legacyClient(r *http.Request) bool {
	v := strings.TrimSpace(r.Header.Get(apiVersionHeader))
	if v == "" {
		v = r.URL.Query().Get("v")
	}
	return v != "2"
}

func (a *App) respond(w http.ResponseWriter, r *http.Request, code int, canonical any, legacy func() any) {
	if legacyClient(r) && legacy != nil {
		a.json(w, code, legacy())
		return
	}
	a.json(w, code, canonical)
}

type generateResponse struct {
	Success         bool    `json:"success"`
	Message         string  `json:"message"`
	GeneratedImage  string  `json:"generatedImage"`
	ProcessedImages int     `json:"processedImages"`
	StorageURL      *string `json:"storageUrl"`
	ContentID       *string `json:"contentId"`
	SavedToDatabase bool    `json:"savedToDatabase"`
}

type generateResponseV1 struct {
	generateResponse
	FilecoinURL *string `json:"filecoinUrl"`
	PieceCID    *string `json:"pieceCid"`
	IPFSURL     *string `json:"ipfsUrl"`
	IPFSHash    *string `json:"ipfsHash"`
}

func (g generateResponse) legacy() any {
	return generateResponseV1{
		generateResponse: g,
		FilecoinURL:      g.StorageURL,
		PieceCID:         g.ContentID,
		IPFSURL:          g.StorageURL,
		IPFSHash:         g.ContentID,
	}
}

type balanceView struct {
	Token    string `json:"token"`
	TokenRaw string `json:"tokenRaw"`
}

type balanceViewV1 struct {
	balanceView
	USDFC    string `json:"usdfc"`
	USDFCRaw string `json:"usdfcRaw"`
}

type storageView struct {
	TotalFiles int64 `json:"totalFiles"`
}

type paymentSetupView struct {
	HasBalance        bool `json:"hasBalance"`
	SufficientBalance bool `json:"sufficientBalance"`
}

type statsResponse struct {
	Success               bool             `json:"success"`
	Balance               balanceView      `json:"balance"`
	Network               string           `json:"network"`
	StorageServiceAddress string           `json:"storageServiceAddress"`
	Storage               storageView      `json:"storage"`
	PaymentSetup          paymentSetupView `json:"paymentSetup"`
}

type statsResponseV1 struct {
	Success               bool             `json:"success"`
	Balance               balanceViewV1    `json:"balance"`
	Network               string           `json:"network"`
	StorageServiceAddress string           `json:"storageServiceAddress"`
	WarmStorageAddress    string           `json:"warmStorageAddress"`
	Storage               storageView      `json:"storage"`
	PaymentSetup          paymentSetupView `json:"paymentSetup"`
}

func (s statsResponse) legacy() any {
	return statsResponseV1{
		Success:               s.Success,
		Balance:               balanceViewV1{balanceView: s.Balance, USDFC: s.Balance.Token, USDFCRaw: s.Balance.TokenRaw},
		Network:               s.Network,
		StorageServiceAddress: s.StorageServiceAddress,
		WarmStorageAddress:    s.StorageServiceAddress,
		Storage:               s.Storage,
		PaymentSetup:          s.PaymentSetup,
	}
}

type metadataResponse struct {
	Success    bool   `json:"success"`
	ContentID  string `json:"contentId"`
	StorageURL string `json:"storageUrl"`
}

type metadataResponseV1 struct {
	metadataResponse
	PieceCID   string `json:"pieceCid"`
	IPFSURL    string `json:"ipfsUrl"`
	GatewayURL string `json:"gatewayUrl"`
}

func (m metadataResponse) legacy() any {
	return metadataResponseV1{
		metadataResponse: m,
		PieceCID:         m.ContentID,
		IPFSURL:          m.StorageURL,
		GatewayURL:       m.StorageURL,
	}
}

type historyItem struct {
	ID            int64     `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	StorageURL    string    `json:"storageUrl"`
	ContentID     string    `json:"contentId"`
	Prompt        string    `json:"prompt"`
	CreatedAt     time.Time `json:"createdAt"`
}

type historyItemV1 struct {
	historyItem
	FilecoinURL string `json:"filecoinUrl"`
	GatewayURL  string `json:"gatewayUrl"`
	PieceCID    string `json:"pieceCid"`
	IPFSURL     string `json:"ipfsUrl"`
	CID         string `json:"cid"`
}

type historyResponse struct {
	Success bool          `json:"success"`
	Items   []historyItem `json:"items"`
}

type historyResponseV1 struct {
	Success bool            `json:"success"`
	Items   []historyItemV1 `json:"items"`
}

func (h historyResponse) legacy() any {
	items := make([]historyItemV1, 0, len(h.Items))
	for _, it := range h.Items {
		items = append(items, historyItemV1{
			historyItem: it,
			FilecoinURL: it.StorageURL,
			GatewayURL:  it.StorageURL,
			PieceCID:    it.ContentID,
			IPFSURL:     it.StorageURL,
			CID:         it.ContentID,
		})
	}
	return historyResponseV1{Success: h.Success, Items: items}
}
