package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCalculateNetSalary(t *testing.T) {
	cases := []struct {
		name          string
		base          string
		overtimeHours string
		overtimeRate  string
		bonus         string
		deductions    string
		want          string
	}{
		{"base only", "300000", "0", "0", "0", "0", "300000"},
		{"with overtime", "300000", "12.5", "2000", "0", "0", "325000"},
		{"with bonus and deductions", "300000", "0", "0", "50000", "20000", "330000"},
		{"deductions exceed gross", "100000", "0", "0", "0", "150000", "0"},
		{"fractional overtime", "250000", "1.5", "1500", "0", "0", "252250"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.CalculateNetSalary(d(tc.base), d(tc.overtimeHours), d(tc.overtimeRate), d(tc.bonus), d(tc.deductions))
			if got.Cmp(d(tc.want)) != 0 {
				t.Fatalf("expected %s, got %s", tc.want, got.String())
			}
		})
	}
}
