package reports

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type PayrollReportResponse struct {
	EmployeeId    int             `json:"employee_id"`
	EmployeeName  string          `json:"employee_name"`
	Position      string          `json:"position"`
	Period        string          `json:"period"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	OvertimeRate  decimal.Decimal `json:"overtime_rate"`
	Bonus         decimal.Decimal `json:"bonus"`
	Deductions    decimal.Decimal `json:"deductions"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Paid          bool            `json:"paid"`
}

var reportPeriodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// GetPayrollReport returns the booked salary ledger for one period (YYYY-MM).
func GetPayrollReport(ctx context.Context, period string) ([]*PayrollReportResponse, error) {
	if !reportPeriodPattern.MatchString(period) {
		return nil, errors.New("invalid period, expected YYYY-MM")
	}

	started := time.Now()
	cacheKey := "Report:Payroll:" + period
	if reportCacheEnabled() {
		var cached []*PayrollReportResponse
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	sql := `
SELECT
    s.employee_id,
    e.name AS employee_name,
    e.position,
    s.period,
    s.base_amount,
    s.overtime_hours,
    s.overtime_rate,
    s.bonus,
    s.deductions,
    s.net_amount,
    s.paid_at IS NOT NULL AS paid
FROM salary_entries s
LEFT JOIN employees e ON e.id = s.employee_id
WHERE s.period = ?
ORDER BY e.name;
`

	var results []*PayrollReportResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, period).Scan(&results).Error; err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, results, reportCacheTTL())
	}
	logSlowReport(ctx, "payroll", started, map[string]any{"period": period, "rows": len(results)})
	return results, nil
}

func BuildPayrollExcel(data []*PayrollReportResponse) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	f.SetCellValue(sheet, "A1", "Employee")
	f.SetCellValue(sheet, "B1", "Position")
	f.SetCellValue(sheet, "C1", "Period")
	f.SetCellValue(sheet, "D1", "Base")
	f.SetCellValue(sheet, "E1", "OvertimeHours")
	f.SetCellValue(sheet, "F1", "OvertimeRate")
	f.SetCellValue(sheet, "G1", "Bonus")
	f.SetCellValue(sheet, "H1", "Deductions")
	f.SetCellValue(sheet, "I1", "Net")
	f.SetCellValue(sheet, "J1", "Paid")

	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, d.EmployeeName)
		f.SetCellValue(sheet, "B"+row, d.Position)
		f.SetCellValue(sheet, "C"+row, d.Period)
		f.SetCellValue(sheet, "D"+row, d.BaseAmount.String())
		f.SetCellValue(sheet, "E"+row, d.OvertimeHours.String())
		f.SetCellValue(sheet, "F"+row, d.OvertimeRate.String())
		f.SetCellValue(sheet, "G"+row, d.Bonus.String())
		f.SetCellValue(sheet, "H"+row, d.Deductions.String())
		f.SetCellValue(sheet, "I"+row, d.NetAmount.String())
		f.SetCellValue(sheet, "J"+row, d.Paid)
	}

	return f, nil
}
