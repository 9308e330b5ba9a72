package models

import (
	"context"
	"errors"
	"regexp"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

// SalaryEntry is one payroll-ledger row for an employee and period (YYYY-MM).
type SalaryEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	EmployeeId    int             `gorm:"uniqueIndex:idx_salary_employee_period;not null" json:"employee_id"`
	Employee      *Employee       `json:"employee,omitempty"`
	Period        string          `gorm:"uniqueIndex:idx_salary_employee_period;size:7;not null" json:"period"`
	BaseAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_amount"`
	OvertimeHours decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overtime_hours"`
	OvertimeRate  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overtime_rate"`
	Bonus         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"bonus"`
	Deductions    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deductions"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	PaidAt        *time.Time      `json:"paid_at"`
	CreatedBy     int             `gorm:"not null" json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSalaryEntry struct {
	EmployeeId    int              `json:"employee_id" binding:"required"`
	Period        string           `json:"period" binding:"required"` // "2006-01"
	BaseAmount    *decimal.Decimal `json:"base_amount"`
	OvertimeHours decimal.Decimal  `json:"overtime_hours"`
	OvertimeRate  *decimal.Decimal `json:"overtime_rate"`
	Bonus         decimal.Decimal  `json:"bonus"`
	Deductions    decimal.Decimal  `json:"deductions"`
}

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// CalculateNetSalary is the payroll arithmetic:
// net = base + overtimeHours*overtimeRate + bonus - deductions, floored at 0.
func CalculateNetSalary(base, overtimeHours, overtimeRate, bonus, deductions decimal.Decimal) decimal.Decimal {
	net := base.Add(overtimeHours.Mul(overtimeRate)).Add(bonus).Sub(deductions)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

func (input *NewSalaryEntry) validate() error {
	if !periodPattern.MatchString(input.Period) {
		return errors.New("invalid period, expected YYYY-MM")
	}
	if input.OvertimeHours.IsNegative() || input.Bonus.IsNegative() || input.Deductions.IsNegative() {
		return errors.New("salary components cannot be negative")
	}
	if input.BaseAmount != nil && input.BaseAmount.IsNegative() {
		return errors.New("salary components cannot be negative")
	}
	if input.OvertimeRate != nil && input.OvertimeRate.IsNegative() {
		return errors.New("salary components cannot be negative")
	}
	return nil
}

// CreateSalaryEntry books one payroll row. Base amount and overtime rate
// default to the employee's configured values when not supplied.
func CreateSalaryEntry(ctx context.Context, input *NewSalaryEntry) (*SalaryEntry, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	employee, err := utils.FetchModel[Employee](ctx, input.EmployeeId)
	if err != nil {
		return nil, errors.New("employee not found")
	}

	count, err := utils.ResourceCountWhere[SalaryEntry](ctx, "employee_id = ? AND period = ?", input.EmployeeId, input.Period)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("salary entry already exists for this period")
	}

	base := employee.BaseSalary
	if input.BaseAmount != nil {
		base = *input.BaseAmount
	}
	overtimeRate := employee.OvertimeRate
	if input.OvertimeRate != nil {
		overtimeRate = *input.OvertimeRate
	}

	entry := SalaryEntry{
		EmployeeId:    input.EmployeeId,
		Period:        input.Period,
		BaseAmount:    base,
		OvertimeHours: input.OvertimeHours,
		OvertimeRate:  overtimeRate,
		Bonus:         input.Bonus,
		Deductions:    input.Deductions,
		NetAmount:     CalculateNetSalary(base, input.OvertimeHours, overtimeRate, input.Bonus, input.Deductions),
		CreatedBy:     userId,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func MarkSalaryPaid(ctx context.Context, id int) (*SalaryEntry, error) {
	entry, err := utils.FetchModel[SalaryEntry](ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.PaidAt != nil {
		return nil, errors.New("salary entry is already paid")
	}
	now := time.Now()
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&entry).Update("PaidAt", &now).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func ListSalaryEntries(ctx context.Context, period string, employeeId int) ([]*SalaryEntry, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Employee").Order("period DESC, employee_id")
	if period != "" {
		if !periodPattern.MatchString(period) {
			return nil, errors.New("invalid period, expected YYYY-MM")
		}
		dbCtx = dbCtx.Where("period = ?", period)
	}
	if employeeId > 0 {
		dbCtx = dbCtx.Where("employee_id = ?", employeeId)
	}
	var entries []*SalaryEntry
	if err := dbCtx.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
