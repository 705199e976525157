// internal/handler/sequence_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hearthside/crm-backend/internal/auth"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/service"
)

type SequenceHandler struct {
	Service *service.SequenceService
}

type sequenceRequest struct {
	Name      string               `json:"name"`
	SegmentID *string              `json:"segment_id"`
	Steps     []model.SequenceStep `json:"steps"`
}

func (h *SequenceHandler) List(w http.ResponseWriter, r *http.Request) {
	sequences, err := h.Service.SequenceRepo.List(auth.OrgID(r.Context()))
	if err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"sequences": sequences})
}

func (h *SequenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sequenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		BadBody(w, r)
		return
	}

	seq := &model.Sequence{
		OrgID:     auth.OrgID(r.Context()),
		Name:      req.Name,
		SegmentID: req.SegmentID,
		Steps:     req.Steps,
	}
	if err := h.Service.SequenceRepo.Create(seq); err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"sequence": seq})
}

func (h *SequenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	seq, err := h.Service.GetSequence(auth.OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"sequence": seq})
}

func (h *SequenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	seq, err := h.Service.GetSequence(auth.OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Err(w, r, err)
		return
	}

	var req sequenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadBody(w, r)
		return
	}
	if req.Name != "" {
		seq.Name = req.Name
	}
	if req.SegmentID != nil {
		seq.SegmentID = req.SegmentID
	}
	if req.Steps != nil {
		seq.Steps = req.Steps
	}
	if err := h.Service.SequenceRepo.Update(seq); err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"sequence": seq})
}

func (h *SequenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	seq, err := h.Service.GetSequence(auth.OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Err(w, r, err)
		return
	}
	if err := h.Service.SequenceRepo.Delete(seq.ID); err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

// Start materializes each step into a campaign with a staggered send
// time and returns the created campaigns.
func (h *SequenceHandler) Start(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Service.StartSequence(auth.OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"campaigns": campaigns})
}
