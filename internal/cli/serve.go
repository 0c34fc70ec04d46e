package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stustapay/stustapayd/internal/bon"
	"github.com/stustapay/stustapayd/internal/di"
	"github.com/stustapay/stustapayd/internal/rpc"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// shutdownGrace bounds how long in-flight requests may run after a
// termination signal.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the payment backend",
	Long: `Run the three HTTP APIs (terminal, administration, customer portal)
and the bon worker. The process shuts down gracefully on SIGINT or
SIGTERM: listeners stop accepting, in-flight requests drain, then the
database pool closes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	servers := make([]*rpc.Server, 0, 3)
	for _, name := range []string{di.ServiceTerminalServer, di.ServiceAdminServer, di.ServiceCustomerServer} {
		built, err := container.Get(name)
		if err != nil {
			return err
		}
		servers = append(servers, built.(*rpc.Server))
	}
	workerSvc, err := container.Get(di.ServiceBonWorker)
	if err != nil {
		return err
	}
	worker := workerSvc.(*bon.Worker)
	hub := container.MustGet(di.ServiceEventHub).(*rpc.Hub)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, server := range servers {
		group.Go(server.Start)
	}
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		for _, server := range servers {
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Str("api", server.Name()).Msg("shutdown")
			}
		}
		return nil
	})

	logger.Info().Msg("stustapayd running")
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("stustapayd stopped")
	return nil
}
