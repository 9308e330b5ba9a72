package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"gorm.io/gorm"
)

// DeletionLogEntry records a removed line item. Append-only: no update or
// delete operation is exposed. The log is informational, not a restore
// mechanism.
type DeletionLogEntry struct {
	ID          int       `gorm:"primary_key" json:"id"`
	JobRecordId int       `gorm:"index;not null" json:"job_record_id"`
	ItemName    string    `gorm:"size:255;not null" json:"item_name"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	SourceName  string    `gorm:"size:100" json:"source_name"`
	DeletedBy   int       `gorm:"index;not null" json:"deleted_by"`
	DeletedName string    `gorm:"size:100" json:"deleted_name"`
	Reason      *string   `gorm:"type:text" json:"reason"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreateDeletionLogEntryTx writes the audit row on the caller's transaction,
// before the item row itself is removed.
func CreateDeletionLogEntryTx(tx *gorm.DB, item *LineItem, sourceName string, userId int, userName string, reason *string) (*DeletionLogEntry, error) {
	entry := DeletionLogEntry{
		JobRecordId: item.JobRecordId,
		ItemName:    item.DisplayName(),
		Quantity:    item.Quantity,
		SourceName:  sourceName,
		DeletedBy:   userId,
		DeletedName: userName,
		Reason:      reason,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func ListDeletionLogEntries(ctx context.Context, jobRecordId int) ([]*DeletionLogEntry, error) {
	db := config.GetDB()
	var entries []*DeletionLogEntry
	if err := db.WithContext(ctx).Where("job_record_id = ?", jobRecordId).
		Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
