package models

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
)

type SourceType string

const (
	// SourceTypeInternal sources are drawn from the managed stock ledger;
	// checking/unchecking a line item with an internal source touches
	// product stock.
	SourceTypeInternal SourceType = "internal"
	SourceTypeExternal SourceType = "external"
)

type MissingReason string

const (
	MissingReasonBuyFromSource MissingReason = "buy_from_source"
	MissingReasonBuyLater      MissingReason = "buy_later"
)

type StockMovementType string

const (
	StockMovementIn         StockMovementType = "IN"
	StockMovementOut        StockMovementType = "OUT"
	StockMovementAdjustment StockMovementType = "ADJUSTMENT"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeave   AttendanceStatus = "leave"
	AttendanceHalfDay AttendanceStatus = "half_day"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleOwner UserRole = "O"
	UserRoleClerk UserRole = "C"
)

type AuditReferenceType string

const (
	AuditReferenceTypeLineItem      AuditReferenceType = "LineItem"
	AuditReferenceTypeStockMovement AuditReferenceType = "StockMovement"
)

const (
	AuditEventStockDebited      = "StockDebited"
	AuditEventStockCredited     = "StockCredited"
	AuditEventStockMoved        = "StockMoved"
	AuditEventLineItemChecked   = "LineItemChecked"
	AuditEventLineItemUnchecked = "LineItemUnchecked"
	AuditEventLineItemSplit     = "LineItemSplit"
	AuditEventLineItemDeleted   = "LineItemDeleted"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusPublishing OutboxPublishStatus = "PUBLISHING"
	OutboxPublishStatusPublished  OutboxPublishStatus = "PUBLISHED"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)
