package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEventRecord implements a transactional outbox: the row is written
// inside the caller's DB transaction, and published to Pub/Sub asynchronously
// by the outbox dispatcher after commit.
type AuditEventRecord struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	EventType     string              `gorm:"size:50;not null;index" json:"event_type"`
	ReferenceId   int                 `gorm:"index" json:"reference_id"`
	ReferenceType AuditReferenceType  `gorm:"size:50" json:"reference_type"`
	Payload       []byte              `gorm:"type:mediumblob" json:"payload"`
	PublishStatus OutboxPublishStatus `gorm:"type:enum('PENDING','PUBLISHING','PUBLISHED','FAILED','DEAD');default:PENDING;index" json:"publish_status"`
	Attempts      int                 `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time          `gorm:"index" json:"next_attempt_at"`
	LockedBy      *string             `gorm:"size:64" json:"locked_by"`
	LockedAt      *time.Time          `json:"locked_at"`
	PublishedAt   *time.Time          `json:"published_at"`
	LastError     *string             `gorm:"type:text" json:"last_error"`
	CorrelationId string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// QueueAuditEvent writes the outbox row on the caller's transaction. It does
// NOT publish; publishing happens after commit in the dispatcher.
func QueueAuditEvent(ctx context.Context, tx *gorm.DB, eventType string, refId int, refType AuditReferenceType, obj interface{}) error {
	payload, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	record := AuditEventRecord{
		EventType:     eventType,
		ReferenceId:   refId,
		ReferenceType: refType,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
