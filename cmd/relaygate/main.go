package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/relaygate/internal/config"
	"github.com/gosuda/relaygate/internal/secrets"
	"github.com/gosuda/relaygate/internal/store/postgres"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "relaygate",
		Short:         "Relaygate - tenant-scoped RPC and webhook security gateway",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rotateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("relaygate failed")
	}
}

// loadConfig reads the environment and configures the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(lc config.LogConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// openStore connects to PostgreSQL and applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newCipher builds the credential cipher over the master keys in the
// environment. Missing keys surface at first use, not here.
func newCipher(cfg *config.Config) (*secrets.Cipher, error) {
	keys := secrets.NewKeyRegistry(secrets.NewEnvProvider(config.MasterKeyPrefix))
	if v, err := keys.Current(); err != nil {
		log.Warn().Err(err).Msg("no master key configured; credential operations will fail")
	} else {
		log.Info().Int("key_version", v).Msg("master key loaded")
	}
	return secrets.NewCipher(keys, secrets.WithIterations(cfg.Gateway.PBKDF2Iterations))
}
