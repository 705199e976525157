// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hearthside/crm-backend/internal/auth"
	"github.com/hearthside/crm-backend/internal/handler"
	"github.com/hearthside/crm-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string          `json:"name"`
		ContentJSON json.RawMessage `json:"content_json"`
		SegmentID   *string         `json:"segment_id"`
		SendAt      *time.Time      `json:"send_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.BadBody(w, r)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(
		auth.OrgID(r.Context()), body.Name, body.ContentJSON, body.SegmentID, body.SendAt)
	if err != nil {
		handler.Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"campaign": campaign})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(
		auth.OrgID(r.Context()), page, pageSize, status)
	if err != nil {
		handler.Err(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"campaigns":  campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetCampaignDetails(
		auth.OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"campaign": details})
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var patch service.CampaignPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		handler.BadBody(w, r)
		return
	}

	campaign, err := c.CampaignService.UpdateCampaign(
		auth.OrgID(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		handler.Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"campaign": campaign})
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	err := c.CampaignService.DeleteCampaign(auth.OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

// SendCampaign triggers delivery. An omitted or past sendAt dispatches
// immediately; a future one leaves the campaign for the scheduler.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SendAt *time.Time `json:"sendAt"`
	}
	// An empty body means send now.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		handler.BadBody(w, r)
		return
	}

	var sendAt time.Time
	if body.SendAt != nil {
		sendAt = *body.SendAt
	}
	campaign, err := c.CampaignService.SendCampaign(
		auth.OrgID(r.Context()), chi.URLParam(r, "id"), sendAt)
	if err != nil {
		handler.Err(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"campaign": campaign,
		"status":   campaign.Status,
	})
}
