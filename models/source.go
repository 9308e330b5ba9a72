package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Source is a supplier or internal stock location. Internal sources are
// stock-tracked: checking a line item against one debits product stock.
type Source struct {
	ID        int        `gorm:"primary_key" json:"id"`
	Name      string     `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Color     string     `gorm:"size:20" json:"color"`
	Type      SourceType `gorm:"type:enum('internal','external');default:external" json:"type"`
	IsActive  *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSource struct {
	Name  string     `json:"name" binding:"required"`
	Color string     `json:"color"`
	Type  SourceType `json:"type"`
}

func (input *NewSource) validate(ctx context.Context, id int) error {
	if input.Type != "" && input.Type != SourceTypeInternal && input.Type != SourceTypeExternal {
		return errors.New("invalid source type")
	}
	if err := utils.ValidateUnique[Source](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateSource(ctx context.Context, input *NewSource) (*Source, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}
	if input.Type == "" {
		input.Type = SourceTypeExternal
	}

	db := config.GetDB()
	source := Source{
		Name:     strings.TrimSpace(input.Name),
		Color:    input.Color,
		Type:     input.Type,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&source).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

func UpdateSource(ctx context.Context, id int, input *NewSource) (*Source, error) {
	source, err := utils.FetchModel[Source](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"Name":  strings.TrimSpace(input.Name),
		"Color": input.Color,
	}
	if input.Type != "" {
		updates["Type"] = input.Type
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&source).Updates(updates).Error; err != nil {
		return nil, err
	}
	return source, nil
}

func GetSource(ctx context.Context, id int) (*Source, error) {
	return utils.FetchModel[Source](ctx, id)
}

func ListSources(ctx context.Context) ([]*Source, error) {
	return utils.FetchAllModels[Source](ctx)
}

// GetOrCreateSourceByName resolves a free-text source name to an existing
// Source by exact name match, creating a new external Source when absent.
// Runs on the caller's transaction so a concurrent resolver of the same name
// cannot commit a duplicate (the unique index on name is the backstop).
func GetOrCreateSourceByName(tx *gorm.DB, name string) (*Source, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("source name is required")
	}

	var source Source
	err := tx.Where("name = ?", name).First(&source).Error
	if err == nil {
		return &source, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	source = Source{
		Name:     name,
		Type:     SourceTypeExternal,
		IsActive: utils.NewTrue(),
	}
	// DoNothing + re-read keeps this idempotent when two transactions race.
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&source).Error; err != nil {
		return nil, err
	}
	if source.ID == 0 {
		if err := tx.Where("name = ?", name).First(&source).Error; err != nil {
			return nil, err
		}
	}
	return &source, nil
}
