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

// Attendance is one employee-day. (employee_id, date) is unique so the bulk
// upsert can re-submit a whole day idempotently.
type Attendance struct {
	ID         int              `gorm:"primary_key" json:"id"`
	EmployeeId int              `gorm:"uniqueIndex:idx_attendance_employee_date;not null" json:"employee_id"`
	Employee   *Employee        `json:"employee,omitempty"`
	Date       time.Time        `gorm:"uniqueIndex:idx_attendance_employee_date;type:date;not null" json:"date"`
	Status     AttendanceStatus `gorm:"type:enum('present','absent','leave','half_day');default:present" json:"status"`
	CheckIn    *time.Time       `json:"check_in"`
	CheckOut   *time.Time       `json:"check_out"`
	Note       string           `gorm:"size:255" json:"note"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAttendance struct {
	EmployeeId int              `json:"employee_id" binding:"required"`
	Status     AttendanceStatus `json:"status" binding:"required"`
	CheckIn    *time.Time       `json:"check_in"`
	CheckOut   *time.Time       `json:"check_out"`
	Note       string           `json:"note"`
}

type BulkAttendanceInput struct {
	Date    string           `json:"date" binding:"required"` // "2006-01-02"
	Entries []*NewAttendance `json:"entries" binding:"required"`
}

func validAttendanceStatus(status AttendanceStatus) bool {
	switch status {
	case AttendancePresent, AttendanceAbsent, AttendanceLeave, AttendanceHalfDay:
		return true
	}
	return false
}

// BulkUpsertAttendance records one day's attendance sheet for many employees
// at once, updating rows that already exist for (employee, date).
func BulkUpsertAttendance(ctx context.Context, input *BulkAttendanceInput) ([]*Attendance, error) {
	date, err := time.Parse("2006-01-02", input.Date)
	if err != nil {
		return nil, errors.New("invalid date, expected YYYY-MM-DD")
	}
	if len(input.Entries) == 0 {
		return nil, errors.New("entries are required")
	}

	employeeIds := make([]int, 0, len(input.Entries))
	for _, entry := range input.Entries {
		if !validAttendanceStatus(entry.Status) {
			return nil, errors.New("invalid attendance status")
		}
		employeeIds = append(employeeIds, entry.EmployeeId)
	}

	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&Employee{}).Where("id IN ?", employeeIds).Count(&count).Error; err != nil {
		return nil, err
	}
	if count != int64(len(utils.UniqueSlice(employeeIds))) {
		return nil, errors.New("employee not found")
	}

	rows := make([]*Attendance, 0, len(input.Entries))
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range input.Entries {
			row := Attendance{
				EmployeeId: entry.EmployeeId,
				Date:       date,
				Status:     entry.Status,
				CheckIn:    entry.CheckIn,
				CheckOut:   entry.CheckOut,
				Note:       entry.Note,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "employee_id"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns([]string{"status", "check_in", "check_out", "note", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return err
			}
			rows = append(rows, &row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAttendance returns rows for a date range, optionally for one employee.
func ListAttendance(ctx context.Context, from, to string, employeeId int) ([]*Attendance, error) {
	fromDate, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, errors.New("invalid from date, expected YYYY-MM-DD")
	}
	toDate, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, errors.New("invalid to date, expected YYYY-MM-DD")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Employee").
		Where("date BETWEEN ? AND ?", fromDate, toDate).
		Order("date, employee_id")
	if employeeId > 0 {
		dbCtx = dbCtx.Where("employee_id = ?", employeeId)
	}
	var rows []*Attendance
	if err := dbCtx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountAttendanceDays returns present-equivalent day counts per status for
// one employee in a period (used by the salary calculation).
func CountAttendanceDays(ctx context.Context, employeeId int, from, to time.Time) (map[AttendanceStatus]int, error) {
	type statusCount struct {
		Status AttendanceStatus
		Total  int
	}
	var counts []statusCount
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Attendance{}).
		Select("status, COUNT(*) AS total").
		Where("employee_id = ? AND date BETWEEN ? AND ?", employeeId, from, to).
		Group("status").Scan(&counts).Error; err != nil {
		return nil, err
	}
	result := make(map[AttendanceStatus]int, len(counts))
	for _, c := range counts {
		result[c.Status] = c.Total
	}
	return result, nil
}
