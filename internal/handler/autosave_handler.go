// internal/handler/autosave_handler.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/hearthside/crm-backend/internal/auth"
	"github.com/hearthside/crm-backend/internal/draft"
)

type saveDraftRequest struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// LoadDraft handles GET /autosave?key=K. 404 tells the editor this is a
// fresh draft the server has never seen.
func LoadDraft(log *slog.Logger, store draft.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := auth.OrgID(r.Context())
		key := r.URL.Query().Get("key")
		if key == "" {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, map[string]string{"error": "Missing key"})
			return
		}

		entry, err := store.Load(r.Context(), orgID, key)
		if err != nil {
			Err(w, r, err)
			return
		}
		render.JSON(w, r, entry)
	}
}

// SaveDraft handles POST /autosave. Full replace, last write wins;
// updatedAt is stamped by the store, not taken from the body.
func SaveDraft(log *slog.Logger, store draft.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := auth.OrgID(r.Context())

		var req saveDraftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
			BadBody(w, r)
			return
		}

		entry, err := store.Save(r.Context(), orgID, req.Key, req.Data)
		if err != nil {
			log.Error("autosave write failed", "org_id", orgID, "key", req.Key, "error", err)
			Err(w, r, err)
			return
		}
		render.JSON(w, r, entry)
	}
}
