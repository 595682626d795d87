package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"crafture/internal/domain"
)

var unsafeFileChars = regexp.MustCompile(`(?i)[^a-z0-9_-]`)

type metadataRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Image       string          `json:"image" validate:"required"`
	Attributes  json.RawMessage `json:"attributes"`
}

// tokenMetadata is the ERC-721 metadata document.
type tokenMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Attributes  json.RawMessage `json:"attributes"`
}

func metadataFileName(name string) string {
	base := unsafeFileChars.ReplaceAllString(name, "_")
	if base == "" {
		base = "metadata"
	}
	return base + ".json"
}

// attributesOrEmpty keeps a JSON array and replaces anything else with [].
func attributesOrEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' && json.Valid(trimmed) {
		return trimmed
	}
	return json.RawMessage("[]")
}

func (a *App) Metadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if !a.decode(w, r, &req) {
		return
	}
	if _, bad := a.firstInvalid(req); bad {
		a.json(w, http.StatusBadRequest, errorBody{Error: "name, description and image are required"})
		return
	}

	doc, err := json.MarshalIndent(tokenMetadata{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Attributes:  attributesOrEmpty(req.Attributes),
	}, "", "  ")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if a.Storage == nil {
		a.fail(w, r, fmt.Errorf("%w: storage not configured", domain.ErrConfiguration))
		return
	}
	fileName := metadataFileName(req.Name)
	a.log(r).Info().Str("file", fileName).Msg("uploading token metadata")
	rec, err := a.Storage.Upload(r.Context(), doc, fileName, "application/json")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := metadataResponse{Success: true, ContentID: rec.ContentID, StorageURL: rec.GatewayURL}
	a.respond(w, r, http.StatusOK, resp, resp.legacy)
}
