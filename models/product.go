package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Product is a stock-keeping item. CurrentStock is the only cross-item shared
// mutable state in the system; it is mutated exclusively through DebitStockTx
// / CreditStockTx / SetStockTx inside a transaction holding the row lock.
type Product struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Barcode      *string   `gorm:"size:100;uniqueIndex" json:"barcode"`
	CurrentStock int       `gorm:"not null;default:0" json:"current_stock"`
	Unit         string    `gorm:"size:20" json:"unit"`
	Brand        string    `gorm:"size:100" json:"brand"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name         string  `json:"name" binding:"required"`
	Barcode      *string `json:"barcode"`
	CurrentStock int     `json:"current_stock"`
	Unit         string  `json:"unit"`
	Brand        string  `json:"brand"`
}

func (input *NewProduct) validate(ctx context.Context, id int) error {
	if input.CurrentStock < 0 {
		return errors.New("current stock cannot be negative")
	}
	if input.Barcode != nil && *input.Barcode != "" {
		if err := utils.ValidateUnique[Product](ctx, "barcode", *input.Barcode, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	product := Product{
		Name:         input.Name,
		Barcode:      normalizeBarcode(input.Barcode),
		CurrentStock: input.CurrentStock,
		Unit:         input.Unit,
		Brand:        input.Brand,
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&product).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Barcode": normalizeBarcode(input.Barcode),
		"Unit":    input.Unit,
		"Brand":   input.Brand,
	}).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, id)
}

func GetProductByBarcode(ctx context.Context, barcode string) (*Product, error) {
	db := config.GetDB()
	var product Product
	if err := db.WithContext(ctx).Where("barcode = ?", barcode).First(&product).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &product, nil
}

func ListProducts(ctx context.Context) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx)
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	// A product referenced by open line items cannot disappear under them.
	count, err := utils.ResourceCountWhere[LineItem](ctx, "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("product is referenced by job line items")
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// empty barcodes are stored as NULL so the unique index ignores them
func normalizeBarcode(barcode *string) *string {
	if barcode == nil || *barcode == "" {
		return nil
	}
	return barcode
}

// fetchProductForUpdate reads the product row under FOR UPDATE so concurrent
// stock mutators serialize on the row.
func fetchProductForUpdate(tx *gorm.DB, productId int) (*Product, error) {
	var product Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productId).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

// DebitStockTx subtracts amount from the product's current stock, clamping
// the result at zero. Must run on the same transaction as the state change it
// accompanies.
func DebitStockTx(tx *gorm.DB, productId int, amount int) (*Product, error) {
	if amount < 0 {
		return nil, errors.New("debit amount cannot be negative")
	}
	product, err := fetchProductForUpdate(tx, productId)
	if err != nil {
		return nil, err
	}
	next := product.CurrentStock - amount
	if next < 0 {
		next = 0
	}
	if err := tx.Model(product).Update("CurrentStock", next).Error; err != nil {
		return nil, err
	}
	product.CurrentStock = next
	return product, nil
}

// CreditStockTx adds amount to the product's current stock (unconditional).
func CreditStockTx(tx *gorm.DB, productId int, amount int) (*Product, error) {
	if amount < 0 {
		return nil, errors.New("credit amount cannot be negative")
	}
	product, err := fetchProductForUpdate(tx, productId)
	if err != nil {
		return nil, err
	}
	next := product.CurrentStock + amount
	if err := tx.Model(product).Update("CurrentStock", next).Error; err != nil {
		return nil, err
	}
	product.CurrentStock = next
	return product, nil
}

// SetStockTx overwrites current stock (stock-take adjustment).
func SetStockTx(tx *gorm.DB, productId int, qty int) (*Product, error) {
	if qty < 0 {
		return nil, errors.New("stock cannot be negative")
	}
	product, err := fetchProductForUpdate(tx, productId)
	if err != nil {
		return nil, err
	}
	if err := tx.Model(product).Update("CurrentStock", qty).Error; err != nil {
		return nil, err
	}
	product.CurrentStock = qty
	return product, nil
}
