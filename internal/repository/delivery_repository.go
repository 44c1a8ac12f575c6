package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/anterny/tokrelay/internal/models"
)

type DeliveryRepository interface {
	CreateIfAbsent(ctx context.Context, d *models.Delivery) (int64, bool, error)
	GetByID(ctx context.Context, id int64) (*models.Delivery, error)
	ClaimInProgress(ctx context.Context, id int64) (bool, error)
	MarkSucceeded(ctx context.Context, id int64, attemptedModes []string, postID string) error
	MarkFailedPermanent(ctx context.Context, id int64, attemptedModes []string, lastErr string) error
	RecordAttemptError(ctx context.Context, id int64, attemptedModes []string, lastErr string) error
	ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type deliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

// CreateIfAbsent inserts a pending delivery row unless one already exists for
// the same (source_key, account_label) pair. The bool result reports whether a
// new row was inserted; on a duplicate the returned id is zero.
func (r *deliveryRepository) CreateIfAbsent(ctx context.Context, d *models.Delivery) (int64, bool, error) {
	query := `
		INSERT INTO deliveries(content_item_id, source_key, account_label, status, attempted_modes)
		VALUES ($1, $2, $3, $4, '[]'::jsonb)
		ON CONFLICT ON CONSTRAINT uq_delivery_source_account DO NOTHING
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		d.ContentItemID,
		d.SourceKey,
		d.AccountLabel,
		models.DeliveryStatusPending,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (r *deliveryRepository) GetByID(ctx context.Context, id int64) (*models.Delivery, error) {
	query := `
		SELECT id, content_item_id, source_key, account_label, status,
			attempted_modes, last_error, tiktok_post_id, attempt_count, created_at, updated_at
		FROM deliveries
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var d models.Delivery
	var modes []byte
	err := row.Scan(&d.ID, &d.ContentItemID, &d.SourceKey, &d.AccountLabel, &d.Status,
		&modes, &d.LastError, &d.TiktokPostID, &d.AttemptCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(modes, &d.AttemptedModes); err != nil {
		return nil, err
	}
	return &d, nil
}

// ClaimInProgress moves a delivery into in_progress and bumps the attempt
// counter. Terminal rows are left untouched; the bool result reports whether
// the claim took effect, so replayed tasks can bail out without side effects.
func (r *deliveryRepository) ClaimInProgress(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE deliveries
		SET status = $2, attempt_count = attempt_count + 1, updated_at = now()
		WHERE id = $1 AND status IN ($3, $2)
	`
	res, err := r.db.ExecContext(ctx, query, id, models.DeliveryStatusInProgress, models.DeliveryStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *deliveryRepository) MarkSucceeded(ctx context.Context, id int64, attemptedModes []string, postID string) error {
	modes, err := json.Marshal(orEmpty(attemptedModes))
	if err != nil {
		return err
	}
	query := `
		UPDATE deliveries
		SET status = $2, attempted_modes = $3, tiktok_post_id = $4, last_error = '', updated_at = now()
		WHERE id = $1 AND status = $5
	`
	_, err = r.db.ExecContext(ctx, query, id,
		models.DeliveryStatusSucceeded, modes, postID, models.DeliveryStatusInProgress)
	return err
}

func (r *deliveryRepository) MarkFailedPermanent(ctx context.Context, id int64, attemptedModes []string, lastErr string) error {
	modes, err := json.Marshal(orEmpty(attemptedModes))
	if err != nil {
		return err
	}
	query := `
		UPDATE deliveries
		SET status = $2, attempted_modes = $3, last_error = $4, updated_at = now()
		WHERE id = $1 AND status = $5
	`
	_, err = r.db.ExecContext(ctx, query, id,
		models.DeliveryStatusFailedPermanent, modes, lastErr, models.DeliveryStatusInProgress)
	return err
}

// RecordAttemptError stores diagnostics for a transient failure without
// leaving in_progress, so the queue can retry the same row later.
func (r *deliveryRepository) RecordAttemptError(ctx context.Context, id int64, attemptedModes []string, lastErr string) error {
	modes, err := json.Marshal(orEmpty(attemptedModes))
	if err != nil {
		return err
	}
	query := `
		UPDATE deliveries
		SET attempted_modes = $2, last_error = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	_, err = r.db.ExecContext(ctx, query, id, modes, lastErr, models.DeliveryStatusInProgress)
	return err
}

func (r *deliveryRepository) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]int64, error) {
	query := `
		SELECT id FROM deliveries
		WHERE status = $1 AND updated_at <= $2
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, models.DeliveryStatusInProgress, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
