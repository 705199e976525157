package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
)

// In-memory implementations of the repository interfaces. Used by tests
// and local development without Postgres. The conditional status flips
// are taken under the mutex so they keep the same exactly-once semantics
// as the SQL UPDATE ... WHERE status=... form.

type MemoryCampaignRepository struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
}

func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{campaigns: make(map[string]*model.Campaign)}
}

func (r *MemoryCampaignRepository) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepository) GetByID(id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCampaignRepository) List(orgID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.OrgID != orgID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= len(all) {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *MemoryCampaignRepository) Update(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; !ok {
		return apperrors.NewNotFound("campaign", c.ID)
	}
	c.UpdatedAt = time.Now()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, id)
	return nil
}

func (r *MemoryCampaignRepository) SetSchedule(id string, sendAt time.Time, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return apperrors.NewNotFound("campaign", id)
	}
	c.SendAt = &sendAt
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryCampaignRepository) ActivateScheduled(id string) (bool, error) {
	return r.flip(id, model.StatusScheduled, model.StatusSending)
}

func (r *MemoryCampaignRepository) CompleteSending(id string) (bool, error) {
	return r.flip(id, model.StatusSending, model.StatusSent)
}

func (r *MemoryCampaignRepository) flip(id, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryCampaignRepository) ListDue(now time.Time) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == model.StatusScheduled && c.SendAt != nil && !c.SendAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

var _ CampaignRepositoryInterface = (*MemoryCampaignRepository)(nil)

type MemorySegmentRepository struct {
	mu       sync.Mutex
	segments map[string]*model.Segment
	members  map[string]map[string]bool // segment id -> contact id set
	excluded map[string]map[string]bool // manually removed contacts
}

func NewMemorySegmentRepository() *MemorySegmentRepository {
	return &MemorySegmentRepository{
		segments: make(map[string]*model.Segment),
		members:  make(map[string]map[string]bool),
		excluded: make(map[string]map[string]bool),
	}
}

func (r *MemorySegmentRepository) Create(s *model.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	set := make(map[string]bool)
	for _, id := range s.Members {
		set[id] = true
	}
	r.members[s.ID] = set
	r.excluded[s.ID] = make(map[string]bool)
	cp := *s
	r.segments[s.ID] = &cp
	s.Members = sortedKeys(set)
	return nil
}

func (r *MemorySegmentRepository) GetByID(id string) (*model.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok {
		return nil, apperrors.NewNotFound("segment", id)
	}
	cp := *s
	cp.Members = sortedKeys(r.members[id])
	cp.Excluded = sortedKeys(r.excluded[id])
	return &cp, nil
}

func (r *MemorySegmentRepository) List(orgID string) ([]*model.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	segments := []*model.Segment{}
	for _, s := range r.segments {
		if s.OrgID != orgID {
			continue
		}
		cp := *s
		cp.Members = sortedKeys(r.members[s.ID])
		segments = append(segments, &cp)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].CreatedAt.Before(segments[j].CreatedAt) })
	return segments, nil
}

func (r *MemorySegmentRepository) Update(s *model.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.segments[s.ID]
	if !ok {
		return apperrors.NewNotFound("segment", s.ID)
	}
	existing.Name = s.Name
	existing.DSLJSON = s.DSLJSON
	existing.UpdatedAt = time.Now()
	s.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *MemorySegmentRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.segments, id)
	delete(r.members, id)
	delete(r.excluded, id)
	return nil
}

func (r *MemorySegmentRepository) AddMembers(id string, contactIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok {
		return nil, apperrors.NewNotFound("segment", id)
	}
	set := r.members[id]
	for _, contactID := range contactIDs {
		set[contactID] = true
		// a fresh manual add lifts an earlier exclusion
		delete(r.excluded[id], contactID)
	}
	s.UpdatedAt = time.Now()
	return sortedKeys(set), nil
}

func (r *MemorySegmentRepository) RemoveMembers(id string, contactIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok {
		return nil, apperrors.NewNotFound("segment", id)
	}
	set := r.members[id]
	for _, contactID := range contactIDs {
		delete(set, contactID)
		r.excluded[id][contactID] = true
	}
	s.UpdatedAt = time.Now()
	return sortedKeys(set), nil
}

var _ SegmentRepositoryInterface = (*MemorySegmentRepository)(nil)

type MemoryContactRepository struct {
	mu       sync.Mutex
	contacts map[string]*model.Contact
}

func NewMemoryContactRepository() *MemoryContactRepository {
	return &MemoryContactRepository{contacts: make(map[string]*model.Contact)}
}

func (r *MemoryContactRepository) GetByIDs(ids []string) ([]model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contacts := []model.Contact{}
	for _, id := range ids {
		if c, ok := r.contacts[id]; ok {
			contacts = append(contacts, *c)
		}
	}
	return contacts, nil
}

func (r *MemoryContactRepository) ListByOrg(orgID string) ([]model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contacts := []model.Contact{}
	for _, c := range r.contacts {
		if c.OrgID == orgID {
			contacts = append(contacts, *c)
		}
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	return contacts, nil
}

func (r *MemoryContactRepository) Create(c *model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	r.contacts[c.ID] = &cp
	return nil
}

var _ ContactRepositoryInterface = (*MemoryContactRepository)(nil)

type MemorySequenceRepository struct {
	mu        sync.Mutex
	sequences map[string]*model.Sequence
}

func NewMemorySequenceRepository() *MemorySequenceRepository {
	return &MemorySequenceRepository{sequences: make(map[string]*model.Sequence)}
}

func (r *MemorySequenceRepository) Create(s *model.Sequence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	for i := range s.Steps {
		if s.Steps[i].ID == "" {
			s.Steps[i].ID = uuid.NewString()
		}
	}
	cp := *s
	cp.Steps = append([]model.SequenceStep(nil), s.Steps...)
	r.sequences[s.ID] = &cp
	return nil
}

func (r *MemorySequenceRepository) GetByID(id string) (*model.Sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[id]
	if !ok {
		return nil, apperrors.NewNotFound("sequence", id)
	}
	cp := *s
	cp.Steps = append([]model.SequenceStep(nil), s.Steps...)
	return &cp, nil
}

func (r *MemorySequenceRepository) List(orgID string) ([]*model.Sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sequences := []*model.Sequence{}
	for _, s := range r.sequences {
		if s.OrgID != orgID {
			continue
		}
		cp := *s
		cp.Steps = append([]model.SequenceStep(nil), s.Steps...)
		sequences = append(sequences, &cp)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i].CreatedAt.Before(sequences[j].CreatedAt) })
	return sequences, nil
}

func (r *MemorySequenceRepository) Update(s *model.Sequence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sequences[s.ID]; !ok {
		return apperrors.NewNotFound("sequence", s.ID)
	}
	s.UpdatedAt = time.Now()
	for i := range s.Steps {
		if s.Steps[i].ID == "" {
			s.Steps[i].ID = uuid.NewString()
		}
	}
	cp := *s
	cp.Steps = append([]model.SequenceStep(nil), s.Steps...)
	r.sequences[s.ID] = &cp
	return nil
}

func (r *MemorySequenceRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sequences, id)
	return nil
}

var _ SequenceRepositoryInterface = (*MemorySequenceRepository)(nil)

type MemorySendLog struct {
	mu      sync.Mutex
	records []model.SendRecord
	nextID  int
}

func NewMemorySendLog() *MemorySendLog {
	return &MemorySendLog{nextID: 1}
}

func (r *MemorySendLog) Record(rec *model.SendRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = r.nextID
	r.nextID++
	rec.CreatedAt = time.Now()
	r.records = append(r.records, *rec)
	return nil
}

func (r *MemorySendLog) StatsByCampaign(campaignID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"total": 0, "sent": 0, "failed": 0}
	for _, rec := range r.records {
		if rec.CampaignID != campaignID {
			continue
		}
		if _, ok := stats[rec.Outcome]; ok {
			stats[rec.Outcome]++
		}
		stats["total"]++
	}
	return stats, nil
}

func (r *MemorySendLog) ListByCampaign(campaignID string) ([]model.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := []model.SendRecord{}
	for _, rec := range r.records {
		if rec.CampaignID == campaignID {
			records = append(records, rec)
		}
	}
	return records, nil
}

var _ SendLogRepositoryInterface = (*MemorySendLog)(nil)

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
