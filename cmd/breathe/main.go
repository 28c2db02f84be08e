package main

import (
	"fmt"
	"os"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/config"
	"github.com/breathe-dev/breathe/internal/logging"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "breathe"

const envFileFlag = "env-file"

var rootFlags = map[string]cobraflags.Flag{
	envFileFlag: &cobraflags.StringFlag{
		Name:  envFileFlag,
		Value: "",
		Usage: "Dotenv file to load before reading the environment (defaults to ./.env when present)",
	},
}

func main() {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "CO2 sensor monitoring API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobraflags.RegisterMap(root, rootFlags)

	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(rootFlags[envFileFlag].GetString())

	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)

	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (*db.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required environment variables: DATABASE_URL")
	}

	store, err := db.Connect(cfg.DBDriver, cfg.DatabaseURL)

	if err != nil {
		return nil, err
	}

	logger.Info("database connected", zap.String("driver", cfg.DBDriver))

	return store, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()

			if err != nil {
				return err
			}

			defer func() { _ = logger.Sync() }()

			store, err := openStore(cfg, logger)

			if err != nil {
				return err
			}

			defer func() { _ = store.Close() }()

			if err := store.Migrate(); err != nil {
				return err
			}

			logger.Info("schema migrated")

			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo users and the superadmin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()

			if err != nil {
				return err
			}

			defer func() { _ = logger.Sync() }()

			store, err := openStore(cfg, logger)

			if err != nil {
				return err
			}

			defer func() { _ = store.Close() }()

			if err := store.Migrate(); err != nil {
				return err
			}

			inserted, err := store.Seed(cmd.Context(), cfg.AdminPassword)

			if err != nil {
				return err
			}

			logger.Info("seed complete", zap.Int64("inserted", inserted))

			return nil
		},
	}
}
