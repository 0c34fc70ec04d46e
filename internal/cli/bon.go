package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stustapay/stustapayd/internal/bon"
	"github.com/stustapay/stustapayd/internal/di"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

var bonCmd = &cobra.Command{
	Use:   "bon",
	Short: "Run only the bon worker",
	Long: `Listen for booked orders and render their receipt documents into
the document store. At startup every order whose receipt is still
pending is caught up first, so the worker may be restarted at any
time.`,
	RunE: runBon,
}

func init() {
	rootCmd.AddCommand(bonCmd)
}

func runBon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	container := di.New()
	provider := di.NewProvider(container, cfg, logger)
	if err := provider.RegisterAll(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, err := container.Get(di.ServiceStorageManager)
	if err != nil {
		return err
	}
	storage := manager.(*relationaldb.Manager)
	if err := storage.Open(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := storage.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("closing storage")
		}
	}()

	workerSvc, err := container.Get(di.ServiceBonWorker)
	if err != nil {
		return err
	}
	if err := workerSvc.(*bon.Worker).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
