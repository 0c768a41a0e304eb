package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gosuda/relaygate/internal/audit"
	"github.com/gosuda/relaygate/internal/rotation"
	"github.com/gosuda/relaygate/internal/secrets"
)

func rotateCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Re-encrypt stored credentials under the current master key version",
		Long: `Re-encrypt every stored credential sealed under an older master key
version. Add RELAYGATE_MASTER_KEY_V<n+1> to the environment, run this command,
and retire the old key once it reports no failures.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRotate(cmd.Context(), cmd, batchSize)
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "credentials per batch (default RELAYGATE_ROTATION_BATCH_SIZE)")

	return cmd
}

func runRotate(ctx context.Context, cmd *cobra.Command, batchSize int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = cfg.Rotation.BatchSize
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cipher, err := newCipher(cfg)
	if err != nil {
		return err
	}

	credentials := secrets.NewCredentialService(store.Credentials(), cipher, secrets.NewRotator(cipher, cfg.Rotation.Workers))
	emitter := audit.NewEmitter(store.Audit(), nil)

	sum, err := rotation.NewJob(credentials, batchSize, emitter).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rotated %d, skipped %d, failed %d (%d batches)\n", sum.Rotated, sum.Skipped, sum.Failed, sum.Batches)
	if sum.Failed > 0 {
		return fmt.Errorf("rotate: %d credentials could not be rotated", sum.Failed)
	}
	return nil
}
