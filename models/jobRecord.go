package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// JobRecord groups line items of one procurement/task list. Line items are
// exclusively owned: deleting the record cascade-deletes them.
type JobRecord struct {
	ID        int         `gorm:"primary_key" json:"id"`
	Title     string      `gorm:"size:255;not null" json:"title" binding:"required"`
	Status    JobStatus   `gorm:"type:enum('pending','processing','completed');default:pending" json:"status"`
	CreatedBy int         `gorm:"index;not null" json:"created_by"`
	LineItems []*LineItem `gorm:"foreignKey:JobRecordId;constraint:OnDelete:CASCADE" json:"line_items"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// LineItem is one request for a quantity of a product (or a free-text custom
// item) from a specific source. Exactly one of ProductId / CustomName is set.
//
// Invariant (enforced by the fulfillment workflow): when IsChecked is true and
// QuantityFound >= Quantity, QuantityMissing is 0 and the missing fields are
// null; when IsChecked is true and QuantityFound < Quantity, QuantityMissing
// equals Quantity - QuantityFound.
type LineItem struct {
	ID              int            `gorm:"primary_key" json:"id"`
	JobRecordId     int            `gorm:"index;not null" json:"job_record_id"`
	ProductId       *int           `gorm:"index" json:"product_id"`
	Product         *Product       `json:"product,omitempty"`
	CustomName      *string        `gorm:"size:255" json:"custom_name"`
	SourceId        int            `gorm:"index;not null" json:"source_id"`
	Source          Source         `json:"source"`
	Quantity        int            `gorm:"not null;default:1" json:"quantity"`
	QuantityFound   *int           `json:"quantity_found"`
	QuantityMissing *int           `json:"quantity_missing"`
	MissingSource   *string        `gorm:"size:255" json:"missing_source"`
	MissingReason   *MissingReason `gorm:"type:enum('buy_from_source','buy_later');default:null" json:"missing_reason"`
	IsChecked       *bool          `gorm:"not null;default:false" json:"is_checked"`
	CheckedBy       *int           `json:"checked_by"`
	CheckedAt       *time.Time     `json:"checked_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// DisplayName is the product name for stock-keeping items, the custom name
// otherwise. Used for deletion log entries and exports.
func (item *LineItem) DisplayName() string {
	if item.Product != nil {
		return item.Product.Name
	}
	if item.CustomName != nil {
		return *item.CustomName
	}
	return ""
}

type NewJobRecord struct {
	Title     string         `json:"title" binding:"required"`
	LineItems []*NewLineItem `json:"line_items"`
}

type NewLineItem struct {
	ProductId  *int    `json:"product_id"`
	CustomName *string `json:"custom_name"`
	SourceId   int     `json:"source_id"`
	SourceName string  `json:"source_name"`
	Quantity   int     `json:"quantity" binding:"required"`
}

func (input *NewLineItem) validate() error {
	hasProduct := input.ProductId != nil && *input.ProductId > 0
	hasCustom := input.CustomName != nil && strings.TrimSpace(*input.CustomName) != ""
	if hasProduct == hasCustom {
		return errors.New("exactly one of product_id or custom_name is required")
	}
	if input.SourceId <= 0 && strings.TrimSpace(input.SourceName) == "" {
		return errors.New("source is required")
	}
	if input.Quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	return nil
}

// buildLineItem resolves the input's source (by id, or find-or-create by
// name) and returns an unsaved Open item. Runs on the caller's transaction.
func (input *NewLineItem) buildLineItem(tx *gorm.DB, jobRecordId int) (*LineItem, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	sourceId := input.SourceId
	if sourceId <= 0 {
		source, err := GetOrCreateSourceByName(tx, input.SourceName)
		if err != nil {
			return nil, err
		}
		sourceId = source.ID
	} else {
		var count int64
		if err := tx.Model(&Source{}).Where("id = ?", sourceId).Count(&count).Error; err != nil {
			return nil, err
		}
		if count <= 0 {
			return nil, errors.New("source not found")
		}
	}

	if input.ProductId != nil && *input.ProductId > 0 {
		var count int64
		if err := tx.Model(&Product{}).Where("id = ?", *input.ProductId).Count(&count).Error; err != nil {
			return nil, err
		}
		if count <= 0 {
			return nil, errors.New("product not found")
		}
	}

	item := LineItem{
		JobRecordId: jobRecordId,
		ProductId:   input.ProductId,
		CustomName:  input.CustomName,
		SourceId:    sourceId,
		Quantity:    input.Quantity,
		IsChecked:   utils.NewFalse(),
	}
	return &item, nil
}

func CreateJobRecord(ctx context.Context, input *NewJobRecord) (*JobRecord, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	record := JobRecord{
		Title:     input.Title,
		Status:    JobStatusPending,
		CreatedBy: userId,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		for _, itemInput := range input.LineItems {
			item, err := itemInput.buildLineItem(tx, record.ID)
			if err != nil {
				return err
			}
			if err := tx.Create(item).Error; err != nil {
				return err
			}
			record.LineItems = append(record.LineItems, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// AddLineItem appends a new Open item to an existing job record.
func AddLineItem(ctx context.Context, jobRecordId int, input *NewLineItem) (*LineItem, error) {
	if _, err := utils.FetchModel[JobRecord](ctx, jobRecordId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var item *LineItem
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = input.buildLineItem(tx, jobRecordId)
		if err != nil {
			return err
		}
		return tx.Create(item).Error
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func GetJobRecord(ctx context.Context, id int) (*JobRecord, error) {
	return utils.FetchModel[JobRecord](ctx, id, "LineItems", "LineItems.Product", "LineItems.Source")
}

func ListJobRecords(ctx context.Context, status JobStatus) ([]*JobRecord, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		dbCtx = dbCtx.Where("status = ?", status)
	}
	var records []*JobRecord
	if err := dbCtx.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func UpdateJobRecordStatus(ctx context.Context, id int, status JobStatus) (*JobRecord, error) {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted:
	default:
		return nil, errors.New("invalid job status")
	}
	record, err := utils.FetchModel[JobRecord](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&record).Update("Status", status).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteJobRecord removes the record and its line items.
func DeleteJobRecord(ctx context.Context, id int) (*JobRecord, error) {
	record, err := utils.FetchModel[JobRecord](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_record_id = ?", id).Delete(&LineItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
