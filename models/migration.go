package models

import (
	"log"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &Role{}, &Module{}, &RoleModule{},
		&Employee{}, &Attendance{}, &SalaryEntry{},
		&Product{}, &Source{}, &StockMovement{},
		&JobRecord{}, &LineItem{},
		&DeletionLogEntry{}, &ViewLogEntry{},
		&AuditEventRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
