// internal/service/campaign_service.go
package service

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/lifecycle"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/repository"
	"github.com/hearthside/crm-backend/internal/scheduler"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	SegmentRepo  repository.SegmentRepositoryInterface
	SendLog      repository.SendLogRepositoryInterface
	Machine      *lifecycle.Machine
	Dispatcher   *scheduler.Dispatcher
	Log          *slog.Logger
}

type CampaignDetails struct {
	model.Campaign
	Stats map[string]int `json:"stats"`
}

// CampaignPatch carries partial updates; nil fields are left untouched.
type CampaignPatch struct {
	Name        *string          `json:"name"`
	ContentJSON *json.RawMessage `json:"content_json"`
	SegmentID   *string          `json:"segment_id"`
	SendAt      *time.Time       `json:"send_at"`
}

func (s *CampaignService) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *CampaignService) CreateCampaign(orgID, name string, contentJSON json.RawMessage, segmentID *string, sendAt *time.Time) (*model.Campaign, error) {
	if name == "" {
		return nil, apperrors.NewValidation("name is required")
	}
	if segmentID != nil {
		if err := s.validateSegmentRef(orgID, *segmentID); err != nil {
			return nil, err
		}
	}

	c := &model.Campaign{
		OrgID:       orgID,
		Name:        name,
		ContentJSON: contentJSON,
		SegmentID:   segmentID,
		Status:      model.StatusDraft,
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}

	// Creating with a send time is shorthand for create-then-schedule.
	if sendAt != nil {
		if err := s.schedule(c, *sendAt); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// GetCampaign fetches a campaign within the caller's org scope.
func (s *CampaignService) GetCampaign(orgID, id string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.OrgID != orgID {
		return nil, apperrors.ErrForbidden
	}
	return c, nil
}

func (s *CampaignService) GetCampaignDetails(orgID, id string) (*CampaignDetails, error) {
	c, err := s.GetCampaign(orgID, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.SendLog.StatsByCampaign(id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: *c, Stats: stats}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(orgID string, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.List(orgID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// UpdateCampaign applies a partial update. Content, name, segment and
// send time are only mutable while the campaign is a draft. Status is
// never settable through PATCH; transitions go through send and the
// scheduler.
func (s *CampaignService) UpdateCampaign(orgID, id string, patch CampaignPatch) (*model.Campaign, error) {
	c, err := s.GetCampaign(orgID, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.EnsureEditable(c); err != nil {
		return nil, err
	}

	if patch.SegmentID != nil {
		if err := s.validateSegmentRef(orgID, *patch.SegmentID); err != nil {
			return nil, err
		}
		c.SegmentID = patch.SegmentID
	}
	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, apperrors.NewValidation("name cannot be empty")
		}
		c.Name = *patch.Name
	}
	if patch.ContentJSON != nil {
		c.ContentJSON = *patch.ContentJSON
	}
	if patch.SendAt != nil {
		c.SendAt = patch.SendAt
	}

	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) DeleteCampaign(orgID, id string) error {
	if _, err := s.GetCampaign(orgID, id); err != nil {
		return err
	}
	return s.CampaignRepo.Delete(id)
}

// SendCampaign applies the send trigger. A zero sendAt means now; a
// past or zero time resolves to immediate dispatch, a future time to
// scheduled. Returns the campaign with its resolved status.
func (s *CampaignService) SendCampaign(orgID, id string, sendAt time.Time) (*model.Campaign, error) {
	c, err := s.GetCampaign(orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.schedule(c, sendAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) schedule(c *model.Campaign, sendAt time.Time) error {
	res, err := s.Machine.Schedule(c, sendAt)
	if err != nil {
		return err
	}
	if res.Immediate {
		n, err := s.Dispatcher.Dispatch(c)
		if err != nil {
			return err
		}
		s.logger().Info("campaign dispatched immediately", "campaign_id", c.ID, "jobs", n)
	}
	return nil
}

// validateSegmentRef maps a bad segment reference to the request
// taxonomy: nonexistent segment is a validation error, a segment owned
// by another org is forbidden.
func (s *CampaignService) validateSegmentRef(orgID, segmentID string) error {
	seg, err := s.SegmentRepo.GetByID(segmentID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewValidation("segment %s not found", segmentID)
		}
		return err
	}
	if seg.OrgID != orgID {
		return apperrors.ErrForbidden
	}
	return nil
}

// CompleteCampaign is the delivery queue's completion hook.
func (s *CampaignService) CompleteCampaign(campaignID string) {
	ok, err := s.Machine.Complete(campaignID)
	if err != nil {
		s.logger().Error("failed to complete campaign", "campaign_id", campaignID, "error", err)
		return
	}
	if ok {
		s.logger().Info("campaign completed", "campaign_id", campaignID)
	}
}
