package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// SeedAdmin creates an "admin" user on first boot so notifications have at
// least one recipient. It does nothing when any user exists and returns the
// created user otherwise.
func SeedAdmin(ctx context.Context, userRepo UserRepository, logger *slog.Logger) (*User, error) {
	count, err := userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping admin seed")
		return nil, nil
	}

	admin := &User{
		Username: "admin",
		Email:    "admin@localhost",
		Role:     RoleAdmin,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin user created",
		"user_id", admin.ID,
		"action_required", "mint a token with -issue-token "+admin.ID,
	)
	return admin, nil
}
