package models

import (
	"context"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetDefaultModules lists every permission-checked module with the full
// action set an admin role may grant.
func GetDefaultModules() map[string]string {
	return map[string]string{
		"Users":          "read;create;update",
		"Roles":          "read;create;update;delete",
		"Employees":      "read;create;update",
		"Attendance":     "read;create;update",
		"Salaries":       "read;create;update",
		"Products":       "read;create;update;delete",
		"Sources":        "read;create;update",
		"StockMovements": "read;create",
		"JobRecords":     "read;create;update;delete",
		"DeletionLog":    "read",
		"Reports":        "read",
	}
}

// CreateDefaultModules seeds the module catalog. Safe to re-run: existing
// module names keep their rows.
func CreateDefaultModules(tx *gorm.DB, ctx context.Context) ([]Module, error) {
	defaultModules := GetDefaultModules()

	var modules []Module
	for k, v := range defaultModules {
		modules = append(modules, Module{
			Name:    k,
			Actions: v,
		})
	}

	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&modules).Error
	if err != nil {
		return nil, err
	}

	return modules, nil
}

// CreateDefaultAdmin creates the bootstrap admin account. Admin users carry
// RoleId 0 and bypass per-module permission checks.
func CreateDefaultAdmin(tx *gorm.DB, ctx context.Context, username string, name string, password string) (*User, error) {
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := User{
		Username: username,
		Name:     name,
		Password: string(hashedPassword),
		IsActive: utils.NewTrue(),
		RoleId:   0,
		Role:     UserRoleAdmin,
	}
	if err := tx.WithContext(ctx).Create(&admin).Error; err != nil {
		return nil, err
	}

	return &admin, nil
}
