package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
)

type SegmentRepositoryInterface interface {
	Create(s *model.Segment) error
	GetByID(id string) (*model.Segment, error)
	List(orgID string) ([]*model.Segment, error)
	Update(s *model.Segment) error
	Delete(id string) error

	// AddMembers unions contact ids into the member set; already-present
	// ids are a no-op. A manual add lifts any earlier exclusion. Returns
	// the resulting member list.
	AddMembers(id string, contactIDs []string) ([]string, error)

	// RemoveMembers subtracts contact ids from the member set and marks
	// them excluded, so rule evaluation cannot bring them back.
	RemoveMembers(id string, contactIDs []string) ([]string, error)
}

type SegmentRepository struct {
	DB *sql.DB
}

func (r *SegmentRepository) Create(s *model.Segment) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Members == nil {
		s.Members = []string{}
	}
	_, err := r.DB.Exec(
		`INSERT INTO segments (id, org_id, name, dsl_json, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.OrgID, s.Name, []byte(s.DSLJSON), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if len(s.Members) > 0 {
		_, err = r.insertMembers(s.ID, s.Members)
	}
	return err
}

func (r *SegmentRepository) GetByID(id string) (*model.Segment, error) {
	var s model.Segment
	err := r.DB.QueryRow(
		`SELECT id, org_id, name, dsl_json, created_at, updated_at FROM segments WHERE id=$1`, id,
	).Scan(&s.ID, &s.OrgID, &s.Name, &s.DSLJSON, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("segment", id)
		}
		return nil, err
	}
	members, err := r.contactIDs(`SELECT contact_id FROM segment_members WHERE segment_id=$1 ORDER BY contact_id`, id)
	if err != nil {
		return nil, err
	}
	excluded, err := r.contactIDs(`SELECT contact_id FROM segment_exclusions WHERE segment_id=$1 ORDER BY contact_id`, id)
	if err != nil {
		return nil, err
	}
	s.Members = members
	s.Excluded = excluded
	return &s, nil
}

func (r *SegmentRepository) List(orgID string) ([]*model.Segment, error) {
	rows, err := r.DB.Query(
		`SELECT id, org_id, name, dsl_json, created_at, updated_at FROM segments WHERE org_id=$1 ORDER BY created_at`, orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []*model.Segment{}
	for rows.Next() {
		var s model.Segment
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.DSLJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		segments = append(segments, &s)
	}
	for _, s := range segments {
		members, err := r.members(s.ID)
		if err != nil {
			return nil, err
		}
		s.Members = members
	}
	return segments, nil
}

func (r *SegmentRepository) Update(s *model.Segment) error {
	s.UpdatedAt = time.Now()
	_, err := r.DB.Exec(
		`UPDATE segments SET name=$1, dsl_json=$2, updated_at=$3 WHERE id=$4`,
		s.Name, []byte(s.DSLJSON), s.UpdatedAt, s.ID,
	)
	return err
}

func (r *SegmentRepository) Delete(id string) error {
	if _, err := r.DB.Exec(`DELETE FROM segment_members WHERE segment_id=$1`, id); err != nil {
		return err
	}
	if _, err := r.DB.Exec(`DELETE FROM segment_exclusions WHERE segment_id=$1`, id); err != nil {
		return err
	}
	_, err := r.DB.Exec(`DELETE FROM segments WHERE id=$1`, id)
	return err
}

func (r *SegmentRepository) AddMembers(id string, contactIDs []string) ([]string, error) {
	// A manual add overrides an earlier manual removal.
	_, err := r.DB.Exec(
		`DELETE FROM segment_exclusions WHERE segment_id=$1 AND contact_id = ANY($2)`,
		id, pq.Array(contactIDs),
	)
	if err != nil {
		return nil, err
	}
	return r.insertMembers(id, contactIDs)
}

func (r *SegmentRepository) RemoveMembers(id string, contactIDs []string) ([]string, error) {
	_, err := r.DB.Exec(
		`DELETE FROM segment_members WHERE segment_id=$1 AND contact_id = ANY($2)`,
		id, pq.Array(contactIDs),
	)
	if err != nil {
		return nil, err
	}
	// Record the removal so the filter DSL cannot re-add the contact.
	for _, contactID := range contactIDs {
		_, err := r.DB.Exec(
			`INSERT INTO segment_exclusions (segment_id, contact_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, contactID,
		)
		if err != nil {
			return nil, err
		}
	}
	if err := r.touch(id); err != nil {
		return nil, err
	}
	return r.members(id)
}

func (r *SegmentRepository) insertMembers(id string, contactIDs []string) ([]string, error) {
	// ON CONFLICT keeps membership a set
	for _, contactID := range contactIDs {
		_, err := r.DB.Exec(
			`INSERT INTO segment_members (segment_id, contact_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, contactID,
		)
		if err != nil {
			return nil, err
		}
	}
	if err := r.touch(id); err != nil {
		return nil, err
	}
	return r.members(id)
}

func (r *SegmentRepository) members(id string) ([]string, error) {
	return r.contactIDs(`SELECT contact_id FROM segment_members WHERE segment_id=$1 ORDER BY contact_id`, id)
}

func (r *SegmentRepository) contactIDs(query, id string) ([]string, error) {
	rows, err := r.DB.Query(query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var contactID string
		if err := rows.Scan(&contactID); err != nil {
			return nil, err
		}
		ids = append(ids, contactID)
	}
	return ids, rows.Err()
}

func (r *SegmentRepository) touch(id string) error {
	_, err := r.DB.Exec(`UPDATE segments SET updated_at=NOW() WHERE id=$1`, id)
	return err
}

var _ SegmentRepositoryInterface = (*SegmentRepository)(nil)
