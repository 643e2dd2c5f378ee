package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cantina/backend/internal/config"
	"cantina/backend/internal/domain"
	"cantina/backend/internal/httpapi"
	"cantina/backend/internal/logger"
	pgstore "cantina/backend/internal/store/postgres"
)

// accountCreator is the slice of the repository create-admin needs.
type accountCreator interface {
	CreateAccount(ctx context.Context, user domain.UserAccount) (*domain.Account, error)
}

// database opens the configured Postgres store.
type database func(ctx context.Context) (*pgstore.Store, error)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(openPostgres).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open database) *cobra.Command {
	root := &cobra.Command{
		Use:           "cantinactl",
		Short:         "Maintenance commands for the canteen backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(open), newGenhashCmd(), newCreateAdminCmd(open))
	return root
}

func newMigrateCmd(open database) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to DATABASE_URL.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			pg, err := open(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newGenhashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genhash <password>",
		Short: "Print a bcrypt hash suitable for the accounts table.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := httpapi.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newCreateAdminCmd(open database) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			pg, err := open(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()
			acct, err := createAdmin(ctx, pg, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", acct.Username, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "login name")
	cmd.Flags().StringVar(&password, "password", "", "initial password (min 6 characters)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func createAdmin(ctx context.Context, repo accountCreator, username string, password string) (*domain.Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if len(username) < 3 || strings.ContainsAny(username, " \t") {
		return nil, fmt.Errorf("%w: username must have at least 3 characters and no spaces", domain.ErrValidation)
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password must have at least 6 characters", domain.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return repo.CreateAccount(ctx, domain.UserAccount{
		Account: domain.Account{
			Username:             username,
			Role:                 domain.RoleAdmin,
			NotificationsEnabled: true,
		},
		PasswordHash: string(hash),
	})
}

func openPostgres(ctx context.Context) (*pgstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	logg, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: "console"})
	if err != nil {
		return nil, err
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL, logg)
	if err != nil {
		logg.Error("postgres unavailable", zap.Error(err))
		return nil, err
	}
	return pg, nil
}
