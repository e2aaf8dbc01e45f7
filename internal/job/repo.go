package job

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrNotCancellable = errors.New("job is not pending")
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, j *Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// Claim atomically moves a pending job to processing, incrementing the
// attempt counter. The attempts guard makes the update a compare-and-swap:
// a worker that read a stale row loses the race and gets false back.
func (r *Repo) Claim(ctx context.Context, id string, attempts int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND attempts = ?", id, StatusPending, attempts).
		Updates(map[string]any{
			"status":   StatusProcessing,
			"attempts": attempts + 1,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Due returns pending jobs whose schedule or retry time has passed, oldest
// due first, at most limit rows.
func (r *Repo) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	var jobs []Job
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Where("(next_retry_at IS NULL AND scheduled_for <= ?) OR next_retry_at <= ?", now, now).
		Order("COALESCE(next_retry_at, scheduled_for) ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *Repo) MarkCompleted(ctx context.Context, id string, result string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":        StatusCompleted,
			"result":        result,
			"next_retry_at": nil,
		}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":        StatusFailed,
			"last_error":    errMsg,
			"next_retry_at": nil,
		}).Error
}

// MarkRetry returns a processing job to pending with its next eligible time.
func (r *Repo) MarkRetry(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":        StatusPending,
			"last_error":    errMsg,
			"next_retry_at": nextRetryAt,
		}).Error
}

// Cancel moves a pending job to cancelled. Processing jobs cannot be
// cancelled synchronously; the in-flight attempt must resolve first.
func (r *Repo) Cancel(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":     StatusCancelled,
			"last_error": "cancelled by user",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotCancellable
	}
	return nil
}
