// seed-admin bootstraps the permission modules and the admin console user.
// Admin users have role_id = 0 and role = 'A'; the backend returns role "Admin" for login.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
//
// Override credentials with ADMIN_USERNAME / ADMIN_PASSWORD / ADMIN_NAME.
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

const (
	defaultAdminUsername = "backofficeAdmin"
	defaultAdminPassword = "B@ck0fficeAdmin"
	defaultAdminName     = "Back Office Admin"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	username := envOr("ADMIN_USERNAME", defaultAdminUsername)
	password := envOr("ADMIN_PASSWORD", defaultAdminPassword)
	name := envOr("ADMIN_NAME", defaultAdminName)

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetUsernameInContext(ctx, username)
	ctx = utils.SetIsAdminInContext(ctx, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		modules, err := models.CreateDefaultModules(tx, ctx)
		if err != nil {
			return fmt.Errorf("seed modules: %w", err)
		}
		fmt.Printf("Seeded %d permission modules\n", len(modules))

		var existing models.User
		err = tx.Model(&models.User{}).Where("username = ?", username).First(&existing).Error
		if err == nil {
			hashed, err := utils.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			if err := tx.Model(&models.User{}).Where("username = ?", username).Updates(map[string]any{
				"password":  string(hashed),
				"name":      name,
				"is_active": utils.NewTrue(),
				"role_id":   0,
				"role":      models.UserRoleAdmin,
			}).Error; err != nil {
				return fmt.Errorf("update admin user: %w", err)
			}
			_ = existing.RemoveInstanceRedis()
			fmt.Printf("Updated admin user: username=%q (role_id=0, role=Admin)\n", username)
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("lookup user: %w", err)
		}

		if _, err := models.CreateDefaultAdmin(tx, ctx, username, name, password); err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		fmt.Printf("Created admin user: username=%q (role_id=0, role=Admin)\n", username)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
