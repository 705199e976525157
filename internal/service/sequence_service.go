// internal/service/sequence_service.go
package service

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/repository"
)

type SequenceService struct {
	SequenceRepo repository.SequenceRepositoryInterface
	Campaigns    *CampaignService
	Log          *slog.Logger

	// Now is the injected clock; nil means time.Now.
	Now func() time.Time
}

func (s *SequenceService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SequenceService) GetSequence(orgID, id string) (*model.Sequence, error) {
	seq, err := s.SequenceRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if seq.OrgID != orgID {
		return nil, apperrors.ErrForbidden
	}
	return seq, nil
}

// StartSequence expands the sequence into one campaign per step,
// scheduled at the step's cumulative delay from now. Steps with zero
// cumulative delay dispatch immediately; the rest are picked up by the
// scheduler. Each step send reuses the whole campaign pipeline:
// activation, rendering, delivery and retries.
func (s *SequenceService) StartSequence(orgID, id string) ([]*model.Campaign, error) {
	seq, err := s.GetSequence(orgID, id)
	if err != nil {
		return nil, err
	}
	if len(seq.Steps) == 0 {
		return nil, apperrors.NewValidation("sequence has no steps")
	}
	if seq.SegmentID == nil {
		return nil, apperrors.NewValidation("sequence has no segment")
	}

	steps := append([]model.SequenceStep(nil), seq.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	now := s.now()
	delay := 0
	campaigns := make([]*model.Campaign, 0, len(steps))
	for i, step := range steps {
		delay += step.DelayHours
		sendAt := now.Add(time.Duration(delay) * time.Hour)
		name := fmt.Sprintf("%s (step %d)", seq.Name, i+1)

		c, err := s.Campaigns.CreateCampaign(orgID, name, step.ContentJSON, seq.SegmentID, &sendAt)
		if err != nil {
			return campaigns, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}
