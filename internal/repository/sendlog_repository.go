package repository

import (
	"database/sql"
	"time"

	"github.com/hearthside/crm-backend/internal/model"
)

// SendLogRepositoryInterface records terminal delivery outcomes. The log
// feeds campaign stats and operational visibility; it is not the queue.
type SendLogRepositoryInterface interface {
	Record(rec *model.SendRecord) error
	StatsByCampaign(campaignID string) (map[string]int, error)
	ListByCampaign(campaignID string) ([]model.SendRecord, error)
}

type SendLogRepository struct {
	DB *sql.DB
}

func (r *SendLogRepository) Record(rec *model.SendRecord) error {
	rec.CreatedAt = time.Now()
	query := `
        INSERT INTO send_log (campaign_id, email, outcome, attempts, last_error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRow(query, rec.CampaignID, rec.Email, rec.Outcome, rec.Attempts, rec.LastError, rec.CreatedAt).Scan(&rec.ID)
}

func (r *SendLogRepository) StatsByCampaign(campaignID string) (map[string]int, error) {
	query := `SELECT outcome, COUNT(*) FROM send_log WHERE campaign_id=$1 GROUP BY outcome`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		if _, ok := stats[outcome]; ok {
			stats[outcome] = count
		}
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *SendLogRepository) ListByCampaign(campaignID string) ([]model.SendRecord, error) {
	query := `
        SELECT id, campaign_id, email, outcome, attempts, last_error, created_at
        FROM send_log WHERE campaign_id=$1 ORDER BY id
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.SendRecord{}
	for rows.Next() {
		var rec model.SendRecord
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.Email, &rec.Outcome, &rec.Attempts, &rec.LastError, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ SendLogRepositoryInterface = (*SendLogRepository)(nil)
