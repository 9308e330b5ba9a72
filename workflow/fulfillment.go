package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("fulfillment")

// fetchItemForUpdate loads the item with a row lock plus its source and
// product relations. The lock holds until the surrounding transaction ends,
// so two concurrent commands on the same item serialize here.
func fetchItemForUpdate(tx *gorm.DB, itemId int) (*models.LineItem, error) {
	var item models.LineItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Source").Preload("Product").
		First(&item, itemId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// touchesStock reports whether a state change on this item moves inventory:
// only product-backed items drawn from an internal source do.
func touchesStock(item *models.LineItem) bool {
	return item.ProductId != nil && *item.ProductId > 0 &&
		item.Source.Type == models.SourceTypeInternal
}

// CheckItem marks the item fulfilled. The first transition out of Open debits
// the stock ledger by the item's full required quantity; completing the
// remainder of a partially fulfilled item moves no stock.
func CheckItem(ctx context.Context, itemId int) (*models.LineItem, error) {
	ctx, span := tracer.Start(ctx, "CheckItem", trace.WithAttributes())
	defer span.End()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, NewValidationError("user id is required")
	}

	lock, err := obtainItemLock(ctx, logger, itemId)
	if err != nil {
		return nil, err
	}
	defer releaseItemLock(ctx, lock)

	db := config.GetDB()
	var checked *models.LineItem
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := fetchItemForUpdate(tx, itemId)
		if err != nil {
			return err
		}

		plan, err := planCheck(StateOf(item), item.Quantity, item.QuantityFound)
		if err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{
			"is_checked":       true,
			"checked_by":       userId,
			"checked_at":       &now,
			"quantity_found":   plan.QuantityFound,
			"quantity_missing": plan.QuantityMissing,
		}
		if plan.ClearMissing {
			updates["missing_source"] = nil
			updates["missing_reason"] = nil
		}
		if err := tx.Model(&models.LineItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			return err
		}

		if plan.DebitStock && touchesStock(item) {
			if err := AcquireProductStockLock(tx, *item.ProductId); err != nil {
				return err
			}
			defer ReleaseProductStockLock(tx, *item.ProductId)
			product, err := models.DebitStockTx(tx, *item.ProductId, item.Quantity)
			if err != nil {
				return err
			}
			if err := models.QueueAuditEvent(ctx, tx, models.AuditEventStockDebited, product.ID,
				models.AuditReferenceTypeStockMovement, map[string]interface{}{
					"product_id":    product.ID,
					"amount":        item.Quantity,
					"closing_stock": product.CurrentStock,
					"line_item_id":  item.ID,
				}); err != nil {
				return err
			}
		}

		if err := models.QueueAuditEvent(ctx, tx, models.AuditEventLineItemChecked, item.ID,
			models.AuditReferenceTypeLineItem, map[string]interface{}{
				"job_record_id":    item.JobRecordId,
				"quantity":         item.Quantity,
				"quantity_found":   plan.QuantityFound,
				"quantity_missing": plan.QuantityMissing,
				"checked_by":       userId,
			}); err != nil {
			return err
		}

		checked, err = reloadItem(tx, item.ID)
		return err
	})
	if err != nil {
		if !isWorkflowError(err) {
			config.LogError(logger, "fulfillment.go", "CheckItem", "Transaction", itemId, err)
		}
		return nil, err
	}
	return checked, nil
}

// UncheckItem reverts a checked item to Open and credits back exactly what
// Check debited.
func UncheckItem(ctx context.Context, itemId int) (*models.LineItem, error) {
	ctx, span := tracer.Start(ctx, "UncheckItem")
	defer span.End()
	logger := config.GetLogger()

	lock, err := obtainItemLock(ctx, logger, itemId)
	if err != nil {
		return nil, err
	}
	defer releaseItemLock(ctx, lock)

	db := config.GetDB()
	var unchecked *models.LineItem
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := fetchItemForUpdate(tx, itemId)
		if err != nil {
			return err
		}
		if err := planUncheck(StateOf(item)); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"is_checked": false,
			"checked_by": nil,
			"checked_at": nil,
		}
		if err := tx.Model(&models.LineItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			return err
		}

		if touchesStock(item) {
			if err := AcquireProductStockLock(tx, *item.ProductId); err != nil {
				return err
			}
			defer ReleaseProductStockLock(tx, *item.ProductId)
			product, err := models.CreditStockTx(tx, *item.ProductId, item.Quantity)
			if err != nil {
				return err
			}
			if err := models.QueueAuditEvent(ctx, tx, models.AuditEventStockCredited, product.ID,
				models.AuditReferenceTypeStockMovement, map[string]interface{}{
					"product_id":    product.ID,
					"amount":        item.Quantity,
					"closing_stock": product.CurrentStock,
					"line_item_id":  item.ID,
				}); err != nil {
				return err
			}
		}

		if err := models.QueueAuditEvent(ctx, tx, models.AuditEventLineItemUnchecked, item.ID,
			models.AuditReferenceTypeLineItem, map[string]interface{}{
				"job_record_id": item.JobRecordId,
				"quantity":      item.Quantity,
			}); err != nil {
			return err
		}

		unchecked, err = reloadItem(tx, item.ID)
		return err
	})
	if err != nil {
		if !isWorkflowError(err) {
			config.LogError(logger, "fulfillment.go", "UncheckItem", "Transaction", itemId, err)
		}
		return nil, err
	}
	return unchecked, nil
}

// EditLineItemInput carries the editable subset of an Open item's fields.
// Nil pointers leave the field unchanged.
type EditLineItemInput struct {
	Quantity      *int                  `json:"quantity"`
	SourceId      *int                  `json:"source_id"`
	SourceName    *string               `json:"source_name"`
	QuantityFound *int                  `json:"quantity_found"`
	MissingSource *string               `json:"missing_source"`
	MissingReason *models.MissingReason `json:"missing_reason"`
}

// EditItem applies a partial update to an unchecked item. Checked items are
// immutable outside Check/Uncheck/Split.
func EditItem(ctx context.Context, itemId int, input *EditLineItemInput) (*models.LineItem, error) {
	ctx, span := tracer.Start(ctx, "EditItem")
	defer span.End()
	logger := config.GetLogger()

	lock, err := obtainItemLock(ctx, logger, itemId)
	if err != nil {
		return nil, err
	}
	defer releaseItemLock(ctx, lock)

	db := config.GetDB()
	var edited *models.LineItem
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := fetchItemForUpdate(tx, itemId)
		if err != nil {
			return err
		}
		if StateOf(item) != StateOpen {
			return ErrItemLocked
		}

		quantity := item.Quantity
		updates := map[string]interface{}{}
		if input.Quantity != nil {
			if *input.Quantity < 1 {
				return NewValidationError("quantity must be at least 1")
			}
			quantity = *input.Quantity
			updates["quantity"] = quantity
		}
		if input.SourceId != nil && *input.SourceId > 0 {
			var count int64
			if err := tx.Model(&models.Source{}).Where("id = ?", *input.SourceId).Count(&count).Error; err != nil {
				return err
			}
			if count <= 0 {
				return ErrNotFound
			}
			updates["source_id"] = *input.SourceId
		} else if input.SourceName != nil && *input.SourceName != "" {
			source, err := models.GetOrCreateSourceByName(tx, *input.SourceName)
			if err != nil {
				return err
			}
			updates["source_id"] = source.ID
		}
		if input.QuantityFound != nil {
			found, missing, err := normalizeFoundQuantity(quantity, input.QuantityFound)
			if err != nil {
				return err
			}
			updates["quantity_found"] = found
			updates["quantity_missing"] = missing
		} else if input.Quantity != nil && item.QuantityFound != nil {
			// Quantity changed under an existing found value: recompute shortfall.
			found, missing, err := normalizeFoundQuantity(quantity, item.QuantityFound)
			if err != nil {
				return err
			}
			updates["quantity_found"] = found
			updates["quantity_missing"] = missing
		}
		if input.MissingSource != nil {
			updates["missing_source"] = *input.MissingSource
		}
		if input.MissingReason != nil {
			switch *input.MissingReason {
			case models.MissingReasonBuyFromSource, models.MissingReasonBuyLater:
			default:
				return NewValidationError("invalid missing_reason")
			}
			updates["missing_reason"] = *input.MissingReason
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.LineItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		edited, err = reloadItem(tx, item.ID)
		return err
	})
	if err != nil {
		if !isWorkflowError(err) {
			config.LogError(logger, "fulfillment.go", "EditItem", "Transaction", itemId, err)
		}
		return nil, err
	}
	return edited, nil
}

// SplitItem divides one item into two siblings. An Open item splits by the
// given quantity; a partially fulfilled item splits along its shortfall (the
// original shrinks to the found quantity and completes, the sibling carries
// the remainder as a fresh Open item). No stock moves in either case.
func SplitItem(ctx context.Context, itemId int, splitQuantity int) (*models.JobRecord, error) {
	ctx, span := tracer.Start(ctx, "SplitItem")
	defer span.End()
	logger := config.GetLogger()

	lock, err := obtainItemLock(ctx, logger, itemId)
	if err != nil {
		return nil, err
	}
	defer releaseItemLock(ctx, lock)

	db := config.GetDB()
	var jobRecordId int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := fetchItemForUpdate(tx, itemId)
		if err != nil {
			return err
		}
		jobRecordId = item.JobRecordId

		plan, err := planSplit(StateOf(item), item.Quantity, item.QuantityFound, splitQuantity)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"quantity": plan.OriginalQuantity,
		}
		if plan.OriginalBecomeFull {
			updates["quantity_found"] = plan.OriginalQuantity
			updates["quantity_missing"] = 0
			updates["missing_source"] = nil
			updates["missing_reason"] = nil
		}
		if err := tx.Model(&models.LineItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			return err
		}

		sibling := models.LineItem{
			JobRecordId: item.JobRecordId,
			ProductId:   item.ProductId,
			CustomName:  item.CustomName,
			SourceId:    item.SourceId,
			Quantity:    plan.SiblingQuantity,
			IsChecked:   utils.NewFalse(),
		}
		if err := tx.Create(&sibling).Error; err != nil {
			return err
		}

		return models.QueueAuditEvent(ctx, tx, models.AuditEventLineItemSplit, item.ID,
			models.AuditReferenceTypeLineItem, map[string]interface{}{
				"job_record_id":     item.JobRecordId,
				"original_quantity": plan.OriginalQuantity,
				"sibling_id":        sibling.ID,
				"sibling_quantity":  plan.SiblingQuantity,
			})
	})
	if err != nil {
		if !isWorkflowError(err) {
			config.LogError(logger, "fulfillment.go", "SplitItem", "Transaction", itemId, err)
		}
		return nil, err
	}
	return models.GetJobRecord(ctx, jobRecordId)
}

// DeleteItem hard-deletes the item after writing its deletion log entry. The
// log is informational, not a restore mechanism.
func DeleteItem(ctx context.Context, itemId int, reason *string) error {
	ctx, span := tracer.Start(ctx, "DeleteItem")
	defer span.End()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return NewValidationError("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	lock, err := obtainItemLock(ctx, logger, itemId)
	if err != nil {
		return err
	}
	defer releaseItemLock(ctx, lock)

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := fetchItemForUpdate(tx, itemId)
		if err != nil {
			return err
		}

		entry, err := models.CreateDeletionLogEntryTx(tx, item, item.Source.Name, userId, userName, reason)
		if err != nil {
			return err
		}

		if err := tx.Delete(&models.LineItem{}, item.ID).Error; err != nil {
			return err
		}

		return models.QueueAuditEvent(ctx, tx, models.AuditEventLineItemDeleted, item.ID,
			models.AuditReferenceTypeLineItem, map[string]interface{}{
				"job_record_id":   item.JobRecordId,
				"display_name":    item.DisplayName(),
				"quantity":        item.Quantity,
				"source_name":     item.Source.Name,
				"deletion_log_id": entry.ID,
				"deleted_by":      userId,
			})
	})
	if err != nil {
		if !isWorkflowError(err) {
			config.LogError(logger, "fulfillment.go", "DeleteItem", "Transaction", itemId, err)
		}
		return err
	}
	return nil
}

func reloadItem(tx *gorm.DB, itemId int) (*models.LineItem, error) {
	var item models.LineItem
	err := tx.Preload("Source").Preload("Product").First(&item, itemId).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// isWorkflowError reports whether the failure is an expected caller-facing
// outcome rather than an infrastructure fault worth logging.
func isWorkflowError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyComplete) ||
		errors.Is(err, ErrNotChecked) ||
		errors.Is(err, ErrItemLocked) ||
		errors.Is(err, ErrInvalidSplitQuantity) ||
		errors.Is(err, ErrNotSplittable) ||
		errors.Is(err, ErrConcurrency) ||
		IsValidationError(err)
}
