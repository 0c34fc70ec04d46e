package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/core/payout"
	"github.com/stustapay/stustapayd/internal/core/sepa"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/metrics"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// payoutPageSize is how many payouts are loaded per query while
// assembling a run.
const payoutPageSize = 1000

// PayoutService creates payout runs and exports them as bank files:
// one CSV covering the run and one SEPA pain.001.001.03 XML per batch.
type PayoutService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
	portal config.CustomerPortalConfig
}

func NewPayoutService(db relationaldb.RepositoryManager, logger zerolog.Logger, portal config.CustomerPortalConfig) *PayoutService {
	return &PayoutService{
		db:     db,
		logger: logger.With().Str("component", "payout").Logger(),
		portal: portal,
	}
}

// ExportOptions parameterizes one export run.
type ExportOptions struct {
	// OutputPath is the directory the bank files are written to.
	OutputPath string
	// MaxPayoutSum caps the run: customers are attached in account
	// order until the running total would exceed it.
	MaxPayoutSum decimal.Decimal
	// BatchSize splits the SEPA XML into files of at most this many
	// transfers; zero or negative means one file for the whole run.
	BatchSize int
	// ExecutionDate is the requested bank execution date.
	ExecutionDate time.Time
	// DryRun writes the files but rolls the run back afterwards.
	DryRun bool
}

// ExportResult reports what an export produced.
type ExportResult struct {
	RunID       int64           `json:"run_id"`
	Customers   int64           `json:"customers"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Files       []string        `json:"files"`
	DryRun      bool            `json:"dry_run"`
}

// Export creates a payout run, attaches every eligible customer up to
// the cap, validates their bank data and writes the bank files. The
// run, the file contents and the customer attachment all come from one
// transaction; with DryRun the transaction is rolled back at the end
// while the written files stay on disk for inspection.
func (s *PayoutService) Export(ctx context.Context, createdBy string, opts ExportOptions) (*ExportResult, error) {
	if !s.portal.SEPA.Enabled {
		return nil, errs.InvalidArgument("sepa payouts are disabled")
	}
	if s.portal.SEPA.SenderBIC == "" {
		return nil, errs.InvalidArgument("sepa sender bic is not configured")
	}
	if opts.OutputPath == "" {
		return nil, errs.InvalidArgument("an output path is required")
	}

	var (
		result        *ExportResult
		invalidID     int64
		invalidReason string
	)
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		run, err := tx.Payout().CreatePayoutRun(ctx, createdBy, opts.ExecutionDate)
		if err != nil {
			return errs.Internal("creating payout run", err)
		}
		attached, err := tx.Payout().AttachEligibleCustomers(ctx, run.ID, opts.MaxPayoutSum)
		if err != nil {
			return errs.Internal("attaching customers to payout run", err)
		}
		if attached == 0 {
			return errs.InvalidArgument("no customers are eligible for payout")
		}

		payouts, err := s.loadRunPayouts(ctx, tx, run.ID)
		if err != nil {
			return err
		}
		for _, p := range payouts {
			if reason := s.validatePayout(p); reason != "" {
				invalidID, invalidReason = p.CustomerAccountID, reason
				return errs.Newf(errs.KindInvalidArgument,
					"payout for customer account %d is invalid: %s", p.CustomerAccountID, reason)
			}
		}

		currency, err := configValue(ctx, tx.Config(), keyCurrencyIdentifier)
		if err != nil {
			return err
		}
		files, err := s.writeBankFiles(ctx, run, payouts, currency, opts)
		if err != nil {
			return err
		}
		result = &ExportResult{
			RunID:       run.ID,
			Customers:   attached,
			TotalAmount: payout.Total(payouts),
			Files:       files,
			DryRun:      opts.DryRun,
		}
		if opts.DryRun {
			return errRollback
		}
		if err := tx.Payout().MarkPayoutRunDone(ctx, run.ID); err != nil {
			return errs.Internal("marking payout run done", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRollback) {
		// The run is rolled back either way; a data problem is
		// additionally pinned to the offending customer so the portal
		// can show it.
		if invalidReason != "" {
			if markErr := s.db.Payout().SetPayoutError(ctx, invalidID, invalidReason); markErr != nil {
				s.logger.Error().Err(markErr).Int64("customer_account_id", invalidID).
					Msg("failed to record payout error")
			}
		}
		return nil, err
	}
	if !result.DryRun {
		metrics.PayoutRunsCreatedTotal.Inc()
	}
	s.logger.Info().Int64("run_id", result.RunID).Int64("customers", result.Customers).
		Str("total_amount", result.TotalAmount.StringFixed(2)).Bool("dry_run", result.DryRun).
		Msg("payout run exported")
	return result, nil
}

func (s *PayoutService) loadRunPayouts(ctx context.Context, tx relationaldb.TransactionContext, runID int64) ([]payout.Payout, error) {
	var payouts []payout.Payout
	for offset := int64(0); ; offset += payoutPageSize {
		page, err := tx.Payout().ListRunPayouts(ctx, runID, payoutPageSize, offset)
		if err != nil {
			return nil, errs.Internal("loading run payouts", err)
		}
		payouts = append(payouts, page...)
		if int64(len(page)) < payoutPageSize {
			return payouts, nil
		}
	}
}

// validatePayout re-checks bank data at export time. The portal
// validates on entry, but config may have tightened since and manual
// database edits happen.
func (s *PayoutService) validatePayout(p payout.Payout) string {
	iban, err := sepa.ParseIBAN(p.IBAN)
	if err != nil {
		return "invalid iban"
	}
	if len(s.portal.AllowedCountryCodes) > 0 && !slices.Contains(s.portal.AllowedCountryCodes, iban.CountryCode()) {
		return "iban country is not supported"
	}
	if !p.Amount.IsPositive() {
		return "payout amount is not positive"
	}
	return ""
}

func (s *PayoutService) writeBankFiles(ctx context.Context, run *payout.Run, payouts []payout.Payout, currency string, opts ExportOptions) ([]string, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(payouts)
	}
	cfg := sepa.Config{
		SenderName: s.portal.SEPA.SenderName,
		SenderIBAN: s.portal.SEPA.SenderIBAN,
		SenderBIC:  s.portal.SEPA.SenderBIC,
		Currency:   currency,
	}

	type bankFile struct {
		path string
		data []byte
	}
	files := make([]bankFile, 0, 2)

	now := time.Now()
	for i, batch := range payout.Chunk(payouts, batchSize) {
		transfers := payout.Transfers(batch, s.portal.SEPA.Description)
		msgID := fmt.Sprintf("payout-run-%d-%d", run.ID, i+1)
		data, err := sepa.Render(cfg, transfers, opts.ExecutionDate, msgID, now)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("payout_run_%d_batch_%d.xml", run.ID, i+1)
		files = append(files, bankFile{path: filepath.Join(opts.OutputPath, name), data: data})
	}

	csvData, err := payout.RenderCSV(payouts, payout.CSVOptions{
		Currency:            currency,
		SenderName:          s.portal.SEPA.SenderName,
		DescriptionTemplate: s.portal.SEPA.Description,
		ExecutionDate:       opts.ExecutionDate,
	})
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("payout_run_%d.csv", run.ID)
	files = append(files, bankFile{path: filepath.Join(opts.OutputPath, name), data: csvData})

	g, _ := errgroup.WithContext(ctx)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
				return errs.Internal("writing bank file "+f.path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// ListRuns returns all payout runs, newest first.
func (s *PayoutService) ListRuns(ctx context.Context, current *user.CurrentUser) ([]payout.Run, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	runs, err := s.db.Payout().ListPayoutRuns(ctx)
	if err != nil {
		return nil, errs.Internal("listing payout runs", err)
	}
	return runs, nil
}

func (s *PayoutService) GetRun(ctx context.Context, current *user.CurrentUser, id int64) (*payout.Run, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	run, err := s.db.Payout().GetPayoutRun(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "payout run", id)
	}
	return run, nil
}

// PendingPayouts reports how many customers have registered bank data
// that no run has picked up yet, and the sum waiting.
func (s *PayoutService) PendingPayouts(ctx context.Context, current *user.CurrentUser) (*relationaldb.PendingPayoutStats, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	stats, err := s.db.Payout().PendingPayouts(ctx)
	if err != nil {
		return nil, errs.Internal("loading pending payouts", err)
	}
	return stats, nil
}
