package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// StockMovement is the inventory ledger row for IN/OUT/ADJUSTMENT mutations
// outside the fulfillment workflow. Creating one applies the quantity change
// to the product inside the same transaction.
type StockMovement struct {
	ID           int               `gorm:"primary_key" json:"id"`
	ProductId    int               `gorm:"index;not null" json:"product_id"`
	Product      *Product          `json:"product,omitempty"`
	Type         StockMovementType `gorm:"type:enum('IN','OUT','ADJUSTMENT');not null" json:"type"`
	Quantity     int               `gorm:"not null" json:"quantity"`
	ClosingStock int               `gorm:"not null;default:0" json:"closing_stock"`
	Note         string            `gorm:"size:255" json:"note"`
	CreatedBy    int               `gorm:"index;not null" json:"created_by"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockMovement struct {
	ProductId int               `json:"product_id" binding:"required"`
	Type      StockMovementType `json:"type" binding:"required"`
	Quantity  int               `json:"quantity" binding:"required"`
	Note      string            `json:"note"`
}

func (input *NewStockMovement) validate() error {
	switch input.Type {
	case StockMovementIn, StockMovementOut, StockMovementAdjustment:
	default:
		return errors.New("invalid movement type")
	}
	if input.Quantity < 0 {
		return errors.New("quantity cannot be negative")
	}
	if input.Quantity == 0 && input.Type != StockMovementAdjustment {
		return errors.New("quantity must be positive")
	}
	return nil
}

// CreateStockMovement writes the ledger row, applies the product stock change
// and queues the audit event, all in one transaction. OUT clamps at zero the
// same way the fulfillment debit does; ADJUSTMENT overwrites the on-hand
// quantity with a stock-take count.
func CreateStockMovement(ctx context.Context, input *NewStockMovement) (*StockMovement, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	movement := StockMovement{
		ProductId: input.ProductId,
		Type:      input.Type,
		Quantity:  input.Quantity,
		Note:      input.Note,
		CreatedBy: userId,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product *Product
		var err error
		switch input.Type {
		case StockMovementIn:
			product, err = CreditStockTx(tx, input.ProductId, input.Quantity)
		case StockMovementOut:
			product, err = DebitStockTx(tx, input.ProductId, input.Quantity)
		case StockMovementAdjustment:
			product, err = SetStockTx(tx, input.ProductId, input.Quantity)
		}
		if err != nil {
			return err
		}
		movement.ClosingStock = product.CurrentStock

		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
		return QueueAuditEvent(ctx, tx, AuditEventStockMoved, movement.ID, AuditReferenceTypeStockMovement, &movement)
	})
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func ListStockMovements(ctx context.Context, productId int) ([]*StockMovement, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Product").Order("created_at DESC")
	if productId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", productId)
	}
	var movements []*StockMovement
	if err := dbCtx.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
