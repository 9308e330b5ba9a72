package models

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

type Role struct {
	ID          int           `gorm:"primary_key" json:"id"`
	Name        string        `gorm:"index;size:100;not null" json:"name" binding:"required"`
	RoleModules []*RoleModule `gorm:"foreignKey:RoleId" json:"role_modules"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// Module is a permission surface of the app (Users, Employees, Attendance,
// Payroll, Products, StockMovements, JobRecords, Sources). Actions holds the
// valid action names as a ";"-separated list.
type Module struct {
	ID      int    `gorm:"primary_key" json:"id"`
	Name    string `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Actions string `gorm:"not null" json:"actions"`
}

type RoleModule struct {
	RoleId         int       `gorm:"primary_key;autoIncrement:false;not null" json:"role_id" binding:"required"`
	ModuleId       int       `gorm:"primary_key;autoIncrement:false;not null" json:"module_id" binding:"required"`
	AllowedActions string    `gorm:"not null" json:"allowed_actions" binding:"required"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Role           Role      `json:"role"`
	Module         Module    `json:"module"`
}

type NewRole struct {
	Name           string              `json:"name" binding:"required"`
	AllowedModules []*NewAllowedModule `json:"allowed_modules"`
}

type NewAllowedModule struct {
	ModuleID       int    `json:"module_id"`
	AllowedActions string `json:"allowed_actions"`
}

func extractModuleActions(s string) []string {
	return strings.Split(strings.ToLower(s), ";")
}

/*
cache
	RolePermissions:$roleId
*/

// GetPermissionsForRole returns the "module|action" pairs the role allows,
// redis-cached per role.
func GetPermissionsForRole(ctx context.Context, roleId int) (map[string]bool, error) {
	redisKey := "RolePermissions:" + strconv.Itoa(roleId)
	cached := make(map[string]bool)
	exists, err := config.GetRedisObject(redisKey, &cached)
	if err != nil {
		return nil, err
	}
	if exists {
		return cached, nil
	}

	db := config.GetDB()
	var role Role
	if err := db.WithContext(ctx).Preload("RoleModules").Preload("RoleModules.Module").
		Where("id = ?", roleId).First(&role).Error; err != nil {
		return nil, err
	}

	allowed := make(map[string]bool)
	for _, permission := range role.RoleModules {
		validActions := extractModuleActions(permission.Module.Actions)
		allowedActions := extractModuleActions(permission.AllowedActions)
		module := strings.ToLower(permission.Module.Name)

		for _, action := range allowedActions {
			if slices.Contains(validActions, action) {
				allowed[module+"|"+action] = true
			}
		}
	}
	if err := config.SetRedisObject(redisKey, &allowed, 0); err != nil {
		return nil, err
	}
	return allowed, nil
}

func invalidateRolePermissionCache(roleId int) error {
	return config.RemoveRedisKey("RolePermissions:" + strconv.Itoa(roleId))
}

func mapRoleModules(ctx context.Context, roleId int, input []*NewAllowedModule) ([]*RoleModule, error) {

	availableModuleActions := make(map[int]string) // moduleId:actions
	var modules []Module
	db := config.GetDB()
	if err := db.WithContext(ctx).Find(&modules).Error; err != nil {
		return nil, err
	}
	for _, m := range modules {
		availableModuleActions[m.ID] = m.Actions
	}

	var roleModules []*RoleModule
	for _, permission := range input {
		validActions, ok := availableModuleActions[permission.ModuleID]
		if !ok {
			return nil, errors.New("module does not exist")
		}
		valid := extractModuleActions(validActions)
		for _, action := range extractModuleActions(permission.AllowedActions) {
			if !slices.Contains(valid, action) {
				return nil, errors.New("invalid action " + action)
			}
		}
		roleModules = append(roleModules, &RoleModule{
			RoleId:         roleId,
			ModuleId:       permission.ModuleID,
			AllowedActions: strings.ToLower(permission.AllowedActions),
		})
	}
	return roleModules, nil
}

func CreateRole(ctx context.Context, input *NewRole) (*Role, error) {
	if err := utils.ValidateUnique[Role](ctx, "name", input.Name, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	role := Role{Name: input.Name}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		roleModules, err := mapRoleModules(ctx, role.ID, input.AllowedModules)
		if err != nil {
			return err
		}
		for _, rm := range roleModules {
			if err := tx.Create(rm).Error; err != nil {
				return err
			}
		}
		role.RoleModules = roleModules
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func UpdateRole(ctx context.Context, id int, input *NewRole) (*Role, error) {
	role, err := utils.FetchModel[Role](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Role](ctx, "name", input.Name, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&role).Update("Name", input.Name).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&RoleModule{}).Error; err != nil {
			return err
		}
		roleModules, err := mapRoleModules(ctx, id, input.AllowedModules)
		if err != nil {
			return err
		}
		for _, rm := range roleModules {
			if err := tx.Create(rm).Error; err != nil {
				return err
			}
		}
		role.RoleModules = roleModules
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := invalidateRolePermissionCache(id); err != nil {
		return nil, err
	}
	return role, nil
}

func DeleteRole(ctx context.Context, id int) (*Role, error) {
	role, err := utils.FetchModel[Role](ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := utils.ResourceCountWhere[User](ctx, "role_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("role is assigned to users")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&RoleModule{}).Error; err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
	if err != nil {
		return nil, err
	}
	if err := invalidateRolePermissionCache(id); err != nil {
		return nil, err
	}
	return role, nil
}

func GetRole(ctx context.Context, id int) (*Role, error) {
	return utils.FetchModel[Role](ctx, id, "RoleModules", "RoleModules.Module")
}

func ListRoles(ctx context.Context) ([]*Role, error) {
	return utils.FetchAllModels[Role](ctx, "RoleModules", "RoleModules.Module")
}

func ListModules(ctx context.Context) ([]*Module, error) {
	return utils.FetchAllModels[Module](ctx)
}
