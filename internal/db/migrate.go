package db

import (
	"context"
	defError "errors"

	"site-builder/internal/project"
	"site-builder/internal/user"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(log *zap.Logger) error {
	err := AppDb.AutoMigrate(
		&user.User{},
		&project.Project{},
	)
	if err != nil {
		return err
	}

	log.Info("database schema migrated")
	return nil
}

// SeedData creates a login for local development
func SeedData(ctx context.Context, log *zap.Logger) {
	userRepo := user.NewRepository(AppDb)

	testUser := &user.User{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
		IsActive: true,
	}

	_, err := userRepo.FindByEmail(ctx, testUser.Email)
	switch {
	case err == nil:
		log.Debug("test user already exists", zap.String("email", testUser.Email))
	case defError.Is(err, gorm.ErrRecordNotFound):
		userService := user.NewService(userRepo)
		if err := userService.Register(ctx, testUser); err != nil {
			log.Warn("error creating test user", zap.Error(err))
			return
		}
		log.Info("created test user", zap.String("email", testUser.Email))
	default:
		log.Warn("error looking up test user", zap.Error(err))
	}
}
