package main

import (
	"context"
	"fmt"
	"os"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/service"
	"go-pos-sync/pkg/config"
	"go-pos-sync/pkg/database"
	"go-pos-sync/pkg/jwt"
	"go-pos-sync/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "set-password", Console: true})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cmd := &cobra.Command{
		Use:   "set-password <user|admin> <password>",
		Short: "Replace the stored password for a role",
		Long: `Replace the stored password for a role.

Existing sessions stay valid. Issue a global logout from the admin screen
to sign every device out after changing a password.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPassword(cmd.Context(), logg, model.Role(args[0]), args[1])
		},
	}

	if err := cmd.Execute(); err != nil {
		logg.Error(context.Background(), "set-password failed", err)
		os.Exit(1)
	}
}

func setPassword(ctx context.Context, logg *logger.Logger, role model.Role, password string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Connect(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := repository.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	auth := service.NewAuthService(
		repository.NewConfigRepo(db),
		jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL()),
		nil,
		logg,
	)
	if err := auth.SetPassword(ctx, role, password); err != nil {
		return err
	}
	logg.Info(logg.WithRole(ctx, string(role)), "password updated")
	return nil
}
