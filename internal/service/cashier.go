package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// CashierService exposes the cashier views and the shift close-out.
// Close-out is the one flow that settles a drawer against the books:
// it returns the counted cash to the vault, books the difference
// against the imbalance account and closes the accounting period of
// the virtual till.
type CashierService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
}

func NewCashierService(db relationaldb.RepositoryManager, logger zerolog.Logger) *CashierService {
	return &CashierService{
		db:     db,
		logger: logger.With().Str("component", "cashier").Logger(),
	}
}

func (s *CashierService) ListCashiers(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]user.Cashier, error) {
	if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	cashiers, err := s.db.Cashier().ListCashiers(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing cashiers", err)
	}
	return cashiers, nil
}

func (s *CashierService) GetCashier(ctx context.Context, current *user.CurrentUser, id int64) (*user.Cashier, error) {
	if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	cashier, err := s.db.Cashier().GetCashier(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "cashier", id)
	}
	return cashier, nil
}

func (s *CashierService) ListCashierShifts(ctx context.Context, current *user.CurrentUser, cashierID int64) ([]user.CashierShift, error) {
	if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	shifts, err := s.db.Cashier().ListCashierShifts(ctx, cashierID)
	if err != nil {
		return nil, errs.Internal("listing cashier shifts", err)
	}
	return shifts, nil
}

func (s *CashierService) GetCashierShiftStats(ctx context.Context, current *user.CurrentUser, cashierID int64, shiftID *int64) (*user.CashierShiftStats, error) {
	if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	stats, err := s.db.Cashier().GetCashierShiftStats(ctx, cashierID, shiftID)
	if err != nil {
		return nil, wrapNotFound(err, "cashier", cashierID)
	}
	return stats, nil
}

// CloseOut settles a cashier's drawer at the end of a shift. Three
// transfer orders are booked against the virtual till: a tracking
// order over the expected amount, the return of the counted cash to
// the vault, and the imbalance settlement. The cashier must have
// handed in their terminal login first; the register is unlinked and
// the accounting period advances as part of the same transaction.
func (s *CashierService) CloseOut(ctx context.Context, current *user.CurrentUser, cashierID int64, closeOut till.CloseOut) (*till.CloseOutResult, error) {
	if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	var result *till.CloseOutResult
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		cashier, err := tx.Cashier().GetCashier(ctx, cashierID)
		if err != nil {
			return wrapNotFound(err, "cashier", cashierID)
		}
		if cashier.CashRegisterID == nil {
			return errs.Conflict("cashier does not have a cash register assigned")
		}
		if cashier.CashierAccountID == nil {
			return errs.Conflict("cashier has no cashier account")
		}
		active, err := tx.Cashier().IsCashierActiveOnTill(ctx, cashierID)
		if err != nil {
			return errs.Internal("checking terminal logins", err)
		}
		if active {
			return errs.Conflict("cashier is still logged in at a terminal")
		}
		shiftStart, err := tx.Cashier().GetCashierShiftStart(ctx, cashierID)
		if err != nil {
			return errs.Internal("loading shift start", err)
		}
		if shiftStart == nil {
			return errs.Conflict("cashier did not book any orders since the last close out")
		}

		cashierAccount, err := tx.Account().GetAccount(ctx, *cashier.CashierAccountID)
		if err != nil {
			return wrapNotFound(err, "account", *cashier.CashierAccountID)
		}
		expected := cashier.CashDrawerBalance
		actual := closeOut.ActualCashDrawerBalance
		imbalance := actual.Sub(expected)

		transferProduct, err := tx.Product().GetProduct(ctx, product.MoneyTransferID)
		if err != nil {
			return wrapNotFound(err, "product", product.MoneyTransferID)
		}
		differenceProduct, err := tx.Product().GetProduct(ctx, product.MoneyDifferenceID)
		if err != nil {
			return wrapNotFound(err, "product", product.MoneyDifferenceID)
		}

		// tracking order over the expected drawer content
		if _, err := bookTransferOrder(ctx, tx, cashier.NodeID, current.ID, cashier.CashRegisterID,
			order.PrepareMoneyTransfer(*transferProduct, expected, nil)); err != nil {
			return err
		}

		// counted cash goes back to the vault
		returnBookings := make(order.BookingMap)
		returnBookings.Add(cashierAccount.ID, account.CashVaultID, tax.NameNone, actual)
		closeOutOrder, err := bookTransferOrder(ctx, tx, cashier.NodeID, current.ID, cashier.CashRegisterID,
			order.PrepareMoneyTransfer(*transferProduct, actual.Neg(), returnBookings))
		if err != nil {
			return err
		}

		imbalanceOrder, err := bookTransferOrder(ctx, tx, cashier.NodeID, current.ID, cashier.CashRegisterID,
			order.PrepareImbalance(*differenceProduct, cashierAccount.ID, imbalance))
		if err != nil {
			return err
		}

		shift, err := tx.Cashier().CreateCashierShift(ctx, user.NewCashierShift{
			CashierID:                 cashierID,
			StartedAt:                 *shiftStart,
			EndedAt:                   time.Now(),
			ActualCashDrawerBalance:   actual,
			ExpectedCashDrawerBalance: expected,
			Comment:                   closeOut.Comment,
			CloseOutOrderID:           closeOutOrder.ID,
			ImbalanceOrderID:          imbalanceOrder.ID,
			ClosingOutUserID:          current.ID,
		})
		if err != nil {
			return errs.Internal("recording cashier shift", err)
		}

		if err := tx.User().SetUserCashRegister(ctx, cashierID, nil); err != nil {
			return errs.Internal("unlinking cash register", err)
		}
		if _, err := tx.Till().BumpZNr(ctx, till.VirtualTillID); err != nil {
			return errs.Internal("advancing accounting period", err)
		}
		// booking rounds per transaction; force the account to exact zero
		if err := tx.Account().SetAccountBalance(ctx, cashierAccount.ID, decimal.Zero); err != nil {
			return errs.Internal("zeroing cashier account", err)
		}

		result = &till.CloseOutResult{CashierID: cashierID, Imbalance: shift.CashDrawerImbalance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("cashier_id", cashierID).Str("imbalance", result.Imbalance.String()).
		Msg("cashier closed out")
	return result, nil
}
