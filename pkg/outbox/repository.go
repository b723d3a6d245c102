package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fabricmgmt/eventing-backend/pkg/db/models"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
)

// Repository owns all reads and writes against outbox_records. Status
// transitions are enforced in the WHERE clause of each update so a lost
// race surfaces as zero rows affected rather than a clobbered row.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, record models.OutboxRecord) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&record).Error
}

// ExistsPendingTx reports whether an undelivered row already exists for the
// event type and aggregate.
func (r *Repository) ExistsPendingTx(tx *gorm.DB, eventType enums.EventType, aggregateType enums.AggregateType, aggregateID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.OutboxRecord{}).
		Where("event_type = ? AND aggregate_type = ? AND aggregate_id = ?", eventType, aggregateType, aggregateID).
		Where("status IN ?", []enums.OutboxStatus{enums.OutboxStatusNew, enums.OutboxStatusPublishing}).
		Count(&count).Error
	return count > 0, err
}

// FetchReady returns NEW rows whose occurred_at has passed, oldest first.
// occurred_at doubles as the next eligible attempt time, so rows waiting
// out a retry backoff are excluded until their delay elapses.
func (r *Repository) FetchReady(ctx context.Context, limit int, now time.Time) ([]models.OutboxRecord, error) {
	var rows []models.OutboxRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND occurred_at <= ?", enums.OutboxStatusNew, now).
		Order("occurred_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ClaimPublishing moves a row NEW -> PUBLISHING. A false return means
// another publisher instance claimed it first; the caller skips the row.
func (r *Repository) ClaimPublishing(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ? AND status = ?", id, enums.OutboxStatusNew).
		Updates(map[string]any{
			"status":     enums.OutboxStatusPublishing,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkPublished finalizes a claimed row after the broker confirmed receipt.
func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ? AND status = ?", id, enums.OutboxStatusPublishing).
		Updates(map[string]any{
			"status":       enums.OutboxStatusPublished,
			"published_at": now,
			"last_error":   nil,
			"updated_at":   now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("record not in publishing state")
	}
	return nil
}

// MarkRetry returns a claimed row to NEW with an advanced occurred_at so
// it stays invisible until the backoff delay elapses.
func (r *Repository) MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, nextAttempt time.Time, cause error) error {
	result := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ? AND status = ?", id, enums.OutboxStatusPublishing).
		Updates(map[string]any{
			"status":      enums.OutboxStatusNew,
			"retry_count": retryCount,
			"occurred_at": nextAttempt,
			"last_error":  errorMessage(cause),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("record not in publishing state")
	}
	return nil
}

// MarkTerminal parks a claimed row in FAILED. Only the replay sweep can
// bring it back.
func (r *Repository) MarkTerminal(ctx context.Context, id uuid.UUID, cause error) error {
	result := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ? AND status = ?", id, enums.OutboxStatusPublishing).
		Updates(map[string]any{
			"status":      enums.OutboxStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  errorMessage(cause),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("record not in publishing state")
	}
	return nil
}

// ReleaseStuck requeues rows stranded in PUBLISHING by a crashed publisher.
// Rows whose updated_at predates the cutoff go back to NEW with the attempt
// counted; the broker may have already received them, which at-least-once
// delivery tolerates.
func (r *Repository) ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("status = ? AND updated_at < ?", enums.OutboxStatusPublishing, cutoff).
		Updates(map[string]any{
			"status":      enums.OutboxStatusNew,
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// DeletePublishedBefore removes delivered rows older than the cutoff.
// NEW, PUBLISHING and FAILED rows are never deleted here.
func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND published_at < ?", enums.OutboxStatusPublished, cutoff).
		Delete(&models.OutboxRecord{})
	return result.RowsAffected, result.Error
}

// ResetFailed requeues FAILED rows for another delivery cycle. The
// accumulated retry count is kept, so each replay grants one more publish
// attempt before the row parks again. A positive ceiling skips rows whose
// count already reached it, keeping poison events parked; zero replays
// every FAILED row. occurred_at moves to now so the publisher picks the
// rows up on its next poll, and last_error is cleared for the new cycle.
func (r *Repository) ResetFailed(ctx context.Context, ceiling int) (int64, error) {
	now := time.Now().UTC()
	query := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("status = ?", enums.OutboxStatusFailed)
	if ceiling > 0 {
		query = query.Where("retry_count < ?", ceiling)
	}
	result := query.Updates(map[string]any{
		"status":      enums.OutboxStatusNew,
		"occurred_at": now,
		"updated_at":  now,
		"last_error":  nil,
	})
	return result.RowsAffected, result.Error
}

// Stats summarizes the backlog for metrics export.
type Stats struct {
	Pending       int64
	Failed        int64
	OldestPending *time.Time
}

// PendingStats reports backlog counts and the age anchor of the oldest
// undelivered row.
func (r *Repository) PendingStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("status IN ?", []enums.OutboxStatus{enums.OutboxStatusNew, enums.OutboxStatusPublishing}).
		Count(&stats.Pending).Error
	if err != nil {
		return Stats{}, err
	}
	err = r.db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("status = ?", enums.OutboxStatusFailed).
		Count(&stats.Failed).Error
	if err != nil {
		return Stats{}, err
	}
	if stats.Pending > 0 {
		var oldest models.OutboxRecord
		err = r.db.WithContext(ctx).
			Where("status IN ?", []enums.OutboxStatus{enums.OutboxStatusNew, enums.OutboxStatusPublishing}).
			Order("occurred_at ASC").
			First(&oldest).Error
		if err != nil {
			return Stats{}, err
		}
		stats.OldestPending = &oldest.OccurredAt
	}
	return stats, nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	return &msg
}
