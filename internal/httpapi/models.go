package httpapi

import (
	"log"
	"net/http"
	"strings"

	"nimbuschat/backend/internal/openrouter"
	"nimbuschat/backend/internal/store"
)

func (h Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.store.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// SyncModels refreshes the catalog from the upstream model list. Rows are
// upserted by backing model id so ids referenced from users and messages
// stay stable across syncs.
func (h Handler) SyncModels(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog_unconfigured", "model catalog source is not configured")
		return
	}

	upstream, err := h.catalog.ListModels(r.Context())
	if err != nil {
		log.Printf("model sync failed: err=%v", err)
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to list upstream models")
		return
	}

	synced := 0
	for _, model := range upstream {
		if _, err := h.store.UpsertModel(r.Context(), catalogEntry(model)); err != nil {
			log.Printf("model sync upsert failed: model=%s err=%v", model.ID, err)
			continue
		}
		synced++
	}

	log.Printf("model sync completed: upstream=%d synced=%d", len(upstream), synced)
	writeJSON(w, http.StatusOK, map[string]any{"synced": synced})
}

// catalogEntry maps an upstream model to a catalog row. Anything with a
// nonzero prompt price counts as premium, and the per-message credit cost is
// derived from the combined per-token price.
func catalogEntry(model openrouter.Model) store.Model {
	provider := model.ID
	if index := strings.Index(provider, "/"); index > 0 {
		provider = provider[:index]
	}

	priceMicros := model.PromptPriceMicrosUSD + model.CompletionPriceMicrosUSD
	cost := 0
	if priceMicros > 0 {
		cost = 1 + priceMicros/10
	}

	return store.Model{
		Name:         model.Name,
		Model:        model.ID,
		Provider:     provider,
		Icon:         provider,
		Capabilities: model.Capabilities,
		IsPremium:    model.PromptPriceMicrosUSD > 0,
		Cost:         cost,
	}
}
