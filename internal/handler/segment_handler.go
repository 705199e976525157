// internal/handler/segment_handler.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/auth"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/repository"
)

type SegmentHandler struct {
	Repo repository.SegmentRepositoryInterface
	Log  *slog.Logger
}

type segmentRequest struct {
	Name    string          `json:"name"`
	DSLJSON json.RawMessage `json:"dsl_json"`
	Members []string        `json:"members"`
}

type membersRequest struct {
	ContactIDs []string `json:"contactIds"`
}

// scoped fetches the segment and enforces org ownership.
func (h *SegmentHandler) scoped(r *http.Request) (*model.Segment, error) {
	seg, err := h.Repo.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if seg.OrgID != auth.OrgID(r.Context()) {
		return nil, apperrors.ErrForbidden
	}
	return seg, nil
}

func (h *SegmentHandler) List(w http.ResponseWriter, r *http.Request) {
	segments, err := h.Repo.List(auth.OrgID(r.Context()))
	if err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"segments": segments})
}

func (h *SegmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		BadBody(w, r)
		return
	}

	seg := &model.Segment{
		OrgID:   auth.OrgID(r.Context()),
		Name:    req.Name,
		DSLJSON: req.DSLJSON,
		Members: req.Members,
	}
	if err := h.Repo.Create(seg); err != nil {
		h.Log.Error("create segment failed", "error", err)
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"segment": seg})
}

func (h *SegmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	seg, err := h.scoped(r)
	if err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"segment": seg})
}

func (h *SegmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	seg, err := h.scoped(r)
	if err != nil {
		Err(w, r, err)
		return
	}

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadBody(w, r)
		return
	}
	if req.Name != "" {
		seg.Name = req.Name
	}
	if req.DSLJSON != nil {
		seg.DSLJSON = req.DSLJSON
	}
	if err := h.Repo.Update(seg); err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"segment": seg})
}

func (h *SegmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	seg, err := h.scoped(r)
	if err != nil {
		Err(w, r, err)
		return
	}
	if err := h.Repo.Delete(seg.ID); err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

// AddMembers handles POST /segments/{id}/members: set union, duplicate
// ids are a no-op.
func (h *SegmentHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	seg, err := h.scoped(r)
	if err != nil {
		Err(w, r, err)
		return
	}

	var req membersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContactIDs == nil {
		BadBody(w, r)
		return
	}

	members, err := h.Repo.AddMembers(seg.ID, req.ContactIDs)
	if err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"members": members})
}

// RemoveMembers handles DELETE /segments/{id}/members: set subtraction.
func (h *SegmentHandler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	seg, err := h.scoped(r)
	if err != nil {
		Err(w, r, err)
		return
	}

	var req membersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContactIDs == nil {
		BadBody(w, r)
		return
	}

	members, err := h.Repo.RemoveMembers(seg.ID, req.ContactIDs)
	if err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"members": members})
}
