package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// ViewLogWindow is the dedup window: at most one view entry per user per job
// record per window.
const ViewLogWindow = time.Hour

// ViewLogEntry records that a user viewed a job record. Append-only.
type ViewLogEntry struct {
	ID          int       `gorm:"primary_key" json:"id"`
	JobRecordId int       `gorm:"index:idx_view_log_job_user;not null" json:"job_record_id"`
	UserId      int       `gorm:"index:idx_view_log_job_user;not null" json:"user_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// shouldRecordView decides whether a new entry is due given the user's most
// recent entry for the job (nil when absent).
func shouldRecordView(lastViewedAt *time.Time, now time.Time) bool {
	if lastViewedAt == nil {
		return true
	}
	return now.Sub(*lastViewedAt) >= ViewLogWindow
}

// RecordJobView inserts a view entry unless the same user already has one for
// this job record inside the dedup window. Best-effort by contract: callers
// must not fail their own request on a view-log error.
func RecordJobView(ctx context.Context, jobRecordId int, userId int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last ViewLogEntry
		err := tx.Where("job_record_id = ? AND user_id = ?", jobRecordId, userId).
			Order("created_at DESC").First(&last).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		var lastViewedAt *time.Time
		if err == nil {
			lastViewedAt = &last.CreatedAt
		}
		if !shouldRecordView(lastViewedAt, time.Now()) {
			return nil
		}

		entry := ViewLogEntry{
			JobRecordId: jobRecordId,
			UserId:      userId,
		}
		return tx.Create(&entry).Error
	})
}

type JobRecordView struct {
	UserId   int       `json:"user_id"`
	UserName string    `json:"user_name"`
	ViewedAt time.Time `json:"viewed_at"`
}

// ListJobRecordViews returns the view trail for a job record, newest first.
func ListJobRecordViews(ctx context.Context, jobRecordId int) ([]*JobRecordView, error) {
	if err := utils.ValidateResourceId[JobRecord](ctx, jobRecordId); err != nil {
		return nil, err
	}

	sql := `
SELECT
	view_log_entries.user_id,
	users.name AS user_name,
	view_log_entries.created_at AS viewed_at
FROM
	view_log_entries
	LEFT JOIN users ON users.id = view_log_entries.user_id
WHERE
	view_log_entries.job_record_id = ?
ORDER BY
	view_log_entries.created_at DESC
`
	db := config.GetDB()
	var views []*JobRecordView
	if err := db.WithContext(ctx).Raw(sql, jobRecordId).Scan(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}
