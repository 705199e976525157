// internal/handler/render_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"

	renderer "github.com/hearthside/crm-backend/internal/render"
)

type renderRequest struct {
	ContentJSON json.RawMessage   `json:"content_json"`
	Variables   map[string]string `json:"variables"`
}

// RenderPreview handles POST /email/render: a stateless preview using
// the content renderer directly, with no delivery side effects.
func RenderPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadBody(w, r)
			return
		}

		blocks, err := renderer.ParseBlocks(req.ContentJSON)
		if err != nil {
			Err(w, r, err)
			return
		}

		html := renderer.Blocks(blocks)
		if len(req.Variables) > 0 {
			html = renderer.ApplyVariables(html, req.Variables)
		}
		render.JSON(w, r, map[string]string{"html": html})
	}
}
