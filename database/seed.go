package database

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/advisorop/advisorop-api/model"
	"github.com/advisorop/advisorop-api/services"
	"github.com/advisorop/advisorop-api/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("Starting database seeding...")

	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedDefaultAIConfig(); err != nil {
		return fmt.Errorf("failed to seed default AI config: %w", err)
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedAdminUser creates the default admin user when ADMIN_EMAIL and
// ADMIN_PASSWORD are set in the environment.
func (s *Seeder) SeedAdminUser() error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	var count int64
	if err := s.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin := model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Admin",
		Role:         "admin",
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Seeded admin user %s", email)
	return nil
}

// SeedDefaultAIConfig ensures at least one active configuration profile
// exists so the engine always has a system prompt and model parameters.
func (s *Seeder) SeedDefaultAIConfig() error {
	var existing model.AIConfig
	err := s.db.Where("is_active = ?", true).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	profile := model.AIConfig{
		Name:         "default",
		ModelName:    services.DefaultModelName,
		SystemPrompt: services.DefaultSystemPrompt,
		MaxTokens:    1000,
		Temperature:  0.7,
		IsActive:     true,
	}
	if err := s.db.Create(&profile).Error; err != nil {
		return err
	}

	log.Println("Seeded default AI configuration profile")
	return nil
}
