package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id string) (*model.Campaign, error)
	List(orgID string, offset, limit int, status string) ([]*model.Campaign, int, error)
	Update(c *model.Campaign) error
	Delete(id string) error
	SetSchedule(id string, sendAt time.Time, status string) error

	// ActivateScheduled is the conditional scheduled -> sending flip.
	// Returns false when another scheduler run already won the campaign.
	ActivateScheduled(id string) (bool, error)

	// CompleteSending is the conditional sending -> sent flip.
	CompleteSending(id string) (bool, error)

	// ListDue returns scheduled campaigns whose send_at has elapsed,
	// across all orgs (the scheduler runs with a service role).
	ListDue(now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, org_id, name, content_json, segment_id, send_at, status, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.ContentJSON, &c.SegmentID, &c.SendAt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	query := `
        INSERT INTO campaigns (id, org_id, name, content_json, segment_id, send_at, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.DB.Exec(query, c.ID, c.OrgID, c.Name, []byte(c.ContentJSON), c.SegmentID, c.SendAt, c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("campaign", id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(orgID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE org_id=$1`
	args := []interface{}{orgID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE org_id=$1`
	countArgs := []interface{}{orgID}
	if status != "" {
		countQuery += " AND status=$2"
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	c.UpdatedAt = time.Now()
	query := `
        UPDATE campaigns
        SET name=$1, content_json=$2, segment_id=$3, send_at=$4, status=$5, updated_at=$6
        WHERE id=$7
    `
	_, err := r.DB.Exec(query, c.Name, []byte(c.ContentJSON), c.SegmentID, c.SendAt, c.Status, c.UpdatedAt, c.ID)
	return err
}

func (r *CampaignRepository) Delete(id string) error {
	_, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, id)
	return err
}

func (r *CampaignRepository) SetSchedule(id string, sendAt time.Time, status string) error {
	query := `UPDATE campaigns SET send_at=$1, status=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, sendAt, status, id)
	return err
}

// ActivateScheduled must stay a single conditional UPDATE. When two
// scheduler runs race on the same campaign, one sees a row affected and
// the other sees zero; a read-then-write here double-sends every
// recipient.
func (r *CampaignRepository) ActivateScheduled(id string) (bool, error) {
	res, err := r.DB.Exec(
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`,
		model.StatusSending, id, model.StatusScheduled,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) CompleteSending(id string) (bool, error) {
	res, err := r.DB.Exec(
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`,
		model.StatusSent, id, model.StatusSending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) ListDue(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 AND send_at <= $2`
	rows, err := r.DB.Query(query, model.StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
