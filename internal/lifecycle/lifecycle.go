// internal/lifecycle/lifecycle.go
package lifecycle

import (
	"time"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/repository"
)

// Machine owns campaign lifecycle transitions:
//
//	draft -> scheduled -> sending -> sent
//
// No back-transitions. The one shortcut is scheduling for the past,
// which collapses into "send now" instead of being an error.
type Machine struct {
	CampaignRepo repository.CampaignRepositoryInterface

	// Now is the injected time source; nil means time.Now. Every
	// "is this in the past" decision goes through it.
	Now func() time.Time
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// ScheduleResult reports how a schedule request resolved.
type ScheduleResult struct {
	Status    string
	SendAt    time.Time
	Immediate bool
}

// Schedule applies the send trigger to a draft campaign. A zero sendAt
// means "now". Future sendAt parks the campaign as scheduled for the
// scheduler to pick up; past-or-now resolves to immediate dispatch.
func (m *Machine) Schedule(c *model.Campaign, sendAt time.Time) (*ScheduleResult, error) {
	if c.Status != model.StatusDraft {
		return nil, apperrors.NewValidation("campaign in status %q cannot be scheduled", c.Status)
	}

	now := m.now()
	if sendAt.IsZero() {
		sendAt = now
	}

	result := &ScheduleResult{SendAt: sendAt}
	if sendAt.After(now) {
		result.Status = model.StatusScheduled
	} else {
		result.Status = model.StatusSent
		result.Immediate = true
	}

	if err := m.CampaignRepo.SetSchedule(c.ID, sendAt, result.Status); err != nil {
		return nil, err
	}
	c.SendAt = &sendAt
	c.Status = result.Status
	return result, nil
}

// Activate flips scheduled -> sending through the repository's
// conditional update. Only the scheduler calls this; a false return
// means a concurrent run already owns the campaign.
func (m *Machine) Activate(campaignID string) (bool, error) {
	return m.CampaignRepo.ActivateScheduled(campaignID)
}

// Complete flips sending -> sent once the delivery queue reports no
// pending jobs. Permanently failed jobs count as resolved.
func (m *Machine) Complete(campaignID string) (bool, error) {
	return m.CampaignRepo.CompleteSending(campaignID)
}

// EnsureEditable rejects mutation of anything past draft. Edits to a
// scheduled or in-flight campaign are an error, never silently ignored.
func EnsureEditable(c *model.Campaign) error {
	if !c.Editable() {
		return apperrors.NewValidation("campaign in status %q is read-only", c.Status)
	}
	return nil
}
