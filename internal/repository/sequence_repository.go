package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
)

type SequenceRepositoryInterface interface {
	Create(s *model.Sequence) error
	GetByID(id string) (*model.Sequence, error)
	List(orgID string) ([]*model.Sequence, error)
	Update(s *model.Sequence) error
	Delete(id string) error
}

type SequenceRepository struct {
	DB *sql.DB
}

func (r *SequenceRepository) Create(s *model.Sequence) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := r.DB.Exec(
		`INSERT INTO sequences (id, org_id, name, segment_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.OrgID, s.Name, s.SegmentID, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return r.replaceSteps(s)
}

func (r *SequenceRepository) GetByID(id string) (*model.Sequence, error) {
	var s model.Sequence
	err := r.DB.QueryRow(
		`SELECT id, org_id, name, segment_id, created_at, updated_at FROM sequences WHERE id=$1`, id,
	).Scan(&s.ID, &s.OrgID, &s.Name, &s.SegmentID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("sequence", id)
		}
		return nil, err
	}
	steps, err := r.steps(id)
	if err != nil {
		return nil, err
	}
	s.Steps = steps
	return &s, nil
}

func (r *SequenceRepository) List(orgID string) ([]*model.Sequence, error) {
	rows, err := r.DB.Query(
		`SELECT id, org_id, name, segment_id, created_at, updated_at FROM sequences WHERE org_id=$1 ORDER BY created_at`, orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sequences := []*model.Sequence{}
	for rows.Next() {
		var s model.Sequence
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.SegmentID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sequences = append(sequences, &s)
	}
	for _, s := range sequences {
		steps, err := r.steps(s.ID)
		if err != nil {
			return nil, err
		}
		s.Steps = steps
	}
	return sequences, nil
}

func (r *SequenceRepository) Update(s *model.Sequence) error {
	s.UpdatedAt = time.Now()
	_, err := r.DB.Exec(
		`UPDATE sequences SET name=$1, segment_id=$2, updated_at=$3 WHERE id=$4`,
		s.Name, s.SegmentID, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	return r.replaceSteps(s)
}

func (r *SequenceRepository) Delete(id string) error {
	if _, err := r.DB.Exec(`DELETE FROM sequence_steps WHERE sequence_id=$1`, id); err != nil {
		return err
	}
	_, err := r.DB.Exec(`DELETE FROM sequences WHERE id=$1`, id)
	return err
}

// replaceSteps is a full delete-and-reinsert; step lists are tiny and the
// editor always submits the whole ordered list.
func (r *SequenceRepository) replaceSteps(s *model.Sequence) error {
	if _, err := r.DB.Exec(`DELETE FROM sequence_steps WHERE sequence_id=$1`, s.ID); err != nil {
		return err
	}
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		_, err := r.DB.Exec(
			`INSERT INTO sequence_steps (id, sequence_id, step_order, delay_hours, content_json) VALUES ($1, $2, $3, $4, $5)`,
			step.ID, s.ID, step.Order, step.DelayHours, []byte(step.ContentJSON),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SequenceRepository) steps(sequenceID string) ([]model.SequenceStep, error) {
	rows, err := r.DB.Query(
		`SELECT id, step_order, delay_hours, content_json FROM sequence_steps WHERE sequence_id=$1 ORDER BY step_order`, sequenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []model.SequenceStep{}
	for rows.Next() {
		var st model.SequenceStep
		if err := rows.Scan(&st.ID, &st.Order, &st.DelayHours, &st.ContentJSON); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

var _ SequenceRepositoryInterface = (*SequenceRepository)(nil)
