package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

type Employee struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Name         string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone        string          `gorm:"size:20" json:"phone"`
	Position     string          `gorm:"size:100" json:"position"`
	BaseSalary   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_salary"`
	OvertimeRate decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overtime_rate"`
	PhotoUrl     string          `json:"photo_url"`
	JoinedAt     *time.Time      `json:"joined_at"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEmployee struct {
	Name         string          `json:"name" binding:"required"`
	Phone        string          `json:"phone"`
	Position     string          `json:"position"`
	BaseSalary   decimal.Decimal `json:"base_salary"`
	OvertimeRate decimal.Decimal `json:"overtime_rate"`
	PhotoUrl     string          `json:"photo_url"`
	JoinedAt     *time.Time      `json:"joined_at"`
}

func (input *NewEmployee) validate() error {
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return errors.New("invalid phone number")
		}
	}
	if input.BaseSalary.IsNegative() || input.OvertimeRate.IsNegative() {
		return errors.New("salary amounts cannot be negative")
	}
	return nil
}

func CreateEmployee(ctx context.Context, input *NewEmployee) (*Employee, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	employee := Employee{
		Name:         input.Name,
		Phone:        input.Phone,
		Position:     input.Position,
		BaseSalary:   input.BaseSalary,
		OvertimeRate: input.OvertimeRate,
		PhotoUrl:     input.PhotoUrl,
		JoinedAt:     input.JoinedAt,
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

func UpdateEmployee(ctx context.Context, id int, input *NewEmployee) (*Employee, error) {
	employee, err := utils.FetchModel[Employee](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&employee).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Phone":        input.Phone,
		"Position":     input.Position,
		"BaseSalary":   input.BaseSalary,
		"OvertimeRate": input.OvertimeRate,
		"PhotoUrl":     input.PhotoUrl,
		"JoinedAt":     input.JoinedAt,
	}).Error; err != nil {
		return nil, err
	}
	return employee, nil
}

func ToggleActiveEmployee(ctx context.Context, id int, isActive bool) (*Employee, error) {
	employee, err := utils.FetchModel[Employee](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&employee).Update("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	return employee, nil
}

func GetEmployee(ctx context.Context, id int) (*Employee, error) {
	return utils.FetchModel[Employee](ctx, id)
}

func ListEmployees(ctx context.Context) ([]*Employee, error) {
	return utils.FetchAllModels[Employee](ctx)
}
