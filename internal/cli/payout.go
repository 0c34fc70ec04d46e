package cli

import (
	"context"
	"fmt"
	"os/user"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/stustapay/stustapayd/internal/di"
	"github.com/stustapay/stustapayd/internal/service"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

var (
	payoutOutputPath    string
	payoutMaxSum        string
	payoutBatchSize     int
	payoutExecutionDate string
	payoutDryRun        bool
)

var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "Payout pipeline commands",
}

var payoutExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Create a payout run and write the bank files",
	Long: `Create a payout run: attach every eligible customer in account
order until the cap is reached, then write one CSV for the whole run
and one SEPA pain.001.001.03 XML per batch. With --dry-run the run is
rolled back afterwards while the files stay on disk for inspection.`,
	RunE: runPayoutExport,
}

func init() {
	rootCmd.AddCommand(payoutCmd)
	payoutCmd.AddCommand(payoutExportCmd)

	payoutExportCmd.Flags().StringVar(&payoutOutputPath, "output-path", ".", "directory the bank files are written to")
	payoutExportCmd.Flags().StringVar(&payoutMaxSum, "max-payout-sum", "50000.00", "cap on the sum of the run")
	payoutExportCmd.Flags().IntVar(&payoutBatchSize, "batch-size", 0, "max transfers per SEPA XML file, 0 for one file")
	payoutExportCmd.Flags().StringVar(&payoutExecutionDate, "execution-date", "", "bank execution date YYYY-MM-DD (default tomorrow)")
	payoutExportCmd.Flags().BoolVar(&payoutDryRun, "dry-run", false, "write files but roll the run back")
}

func runPayoutExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	maxSum, err := decimal.NewFromString(payoutMaxSum)
	if err != nil {
		return fmt.Errorf("invalid --max-payout-sum: %w", err)
	}
	executionDate := time.Now().AddDate(0, 0, 1)
	if payoutExecutionDate != "" {
		executionDate, err = time.Parse("2006-01-02", payoutExecutionDate)
		if err != nil {
			return fmt.Errorf("invalid --execution-date: %w", err)
		}
	}

	container := di.New()
	provider := di.NewProvider(container, cfg, logger)
	if err := provider.RegisterAll(); err != nil {
		return err
	}

	ctx := cmd.Context()
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

	payouts, err := container.Get(di.ServicePayouts)
	if err != nil {
		return err
	}
	result, err := payouts.(*service.PayoutService).Export(ctx, exportCreatedBy(), service.ExportOptions{
		OutputPath:    payoutOutputPath,
		MaxPayoutSum:  maxSum,
		BatchSize:     payoutBatchSize,
		ExecutionDate: executionDate,
		DryRun:        payoutDryRun,
	})
	if err != nil {
		return err
	}

	fmt.Printf("payout run %d: %d customers, total %s\n", result.RunID, result.Customers, result.TotalAmount.StringFixed(2))
	for _, file := range result.Files {
		fmt.Printf("  wrote %s\n", file)
	}
	if result.DryRun {
		fmt.Println("dry run: the run was rolled back, files are for inspection only")
	}
	return nil
}

// exportCreatedBy records who started the run; falls back to the
// process name when the OS user is unknown.
func exportCreatedBy() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "stustapayd"
}
