package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"gorm.io/gorm/clause"
)

const DemoPassword = "password123"

// Seed inserts the demo accounts and the super admin. Rows whose email or
// username already exist are left alone. It returns how many rows were added.
func (s *Store) Seed(ctx context.Context, adminPassword string) (int64, error) {
	if adminPassword == "" {
		return 0, errors.New("ADMIN_PASSWORD is required to seed the admin account")
	}

	demoHash, err := auth.HashPassword(DemoPassword)

	if err != nil {
		return 0, fmt.Errorf("hashing demo password: %w", err)
	}

	adminHash, err := auth.HashPassword(adminPassword)

	if err != nil {
		return 0, fmt.Errorf("hashing admin password: %w", err)
	}

	users := []models.User{
		{Email: "user1@example.com", Username: "user1", FirstName: "John", LastName: "Doe", Password: demoHash, Role: auth.RoleUser},
		{Email: "user2@example.com", Username: "user2", FirstName: "Jane", LastName: "Smith", Password: demoHash, Role: auth.RoleUser},
		{Email: "user3@example.com", Username: "user3", FirstName: "Alice", LastName: "Brown", Password: demoHash, Role: auth.RoleUser},
		{Email: "admin@admin.com", Username: "admin", FirstName: "Admin", LastName: "Admin", Password: adminHash, Role: auth.RoleSuperAdmin},
	}

	result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&users)

	if result.Error != nil {
		return 0, fmt.Errorf("seeding users: %w", result.Error)
	}

	return result.RowsAffected, nil
}
