package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// RegisterService manages physical cash registers and their stocking
// templates, and moves drawers (with their cash) between cashiers.
type RegisterService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
}

func NewRegisterService(db relationaldb.RepositoryManager, logger zerolog.Logger) *RegisterService {
	return &RegisterService{
		db:     db,
		logger: logger.With().Str("component", "register").Logger(),
	}
}

func (s *RegisterService) ListCashRegisters(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]till.CashRegister, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	registers, err := s.db.Till().ListCashRegisters(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing cash registers", err)
	}
	return registers, nil
}

func (s *RegisterService) CreateCashRegister(ctx context.Context, current *user.CurrentUser, nodeID int64, name string) (*till.CashRegister, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errs.InvalidArgument("a cash register requires a name")
	}
	register, err := s.db.Till().CreateCashRegister(ctx, nodeID, name)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a cash register with this name already exists")
		}
		return nil, errs.Internal("creating cash register", err)
	}
	return register, nil
}

func (s *RegisterService) UpdateCashRegister(ctx context.Context, current *user.CurrentUser, id int64, name string) (*till.CashRegister, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errs.InvalidArgument("a cash register requires a name")
	}
	register, err := s.db.Till().UpdateCashRegister(ctx, id, name)
	if err != nil {
		return nil, wrapNotFound(err, "cash register", id)
	}
	return register, nil
}

func (s *RegisterService) DeleteCashRegister(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if err := s.db.Till().DeleteCashRegister(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("cash register is still assigned or referenced by orders")
		}
		return wrapNotFound(err, "cash register", id)
	}
	return nil
}

func (s *RegisterService) ListStockings(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]till.CashRegisterStocking, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	stockings, err := s.db.Till().ListStockings(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing register stockings", err)
	}
	return stockings, nil
}

func (s *RegisterService) CreateStocking(ctx context.Context, current *user.CurrentUser, nodeID int64, newStocking till.NewCashRegisterStocking) (*till.CashRegisterStocking, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if err := validateStocking(newStocking); err != nil {
		return nil, err
	}
	stocking, err := s.db.Till().CreateStocking(ctx, nodeID, newStocking)
	if err != nil {
		return nil, errs.Internal("creating register stocking", err)
	}
	return stocking, nil
}

func (s *RegisterService) UpdateStocking(ctx context.Context, current *user.CurrentUser, id int64, update till.NewCashRegisterStocking) (*till.CashRegisterStocking, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if err := validateStocking(update); err != nil {
		return nil, err
	}
	stocking, err := s.db.Till().UpdateStocking(ctx, id, update)
	if err != nil {
		return nil, wrapNotFound(err, "register stocking", id)
	}
	return stocking, nil
}

func (s *RegisterService) DeleteStocking(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if err := s.db.Till().DeleteStocking(ctx, id); err != nil {
		return wrapNotFound(err, "register stocking", id)
	}
	return nil
}

func validateStocking(stocking till.NewCashRegisterStocking) error {
	if stocking.Name == "" {
		return errs.InvalidArgument("a register stocking requires a name")
	}
	counts := []int64{
		stocking.Euro200, stocking.Euro100, stocking.Euro50, stocking.Euro20,
		stocking.Euro10, stocking.Euro5, stocking.Euro2, stocking.Euro1,
		stocking.Cent50, stocking.Cent20, stocking.Cent10, stocking.Cent5,
		stocking.Cent2, stocking.Cent1,
	}
	for _, count := range counts {
		if count < 0 {
			return errs.InvalidArgument("stocking denomination counts cannot be negative")
		}
	}
	if stocking.VariableInEuro.IsNegative() {
		return errs.InvalidArgument("stocking variable amount cannot be negative")
	}
	return nil
}

// StockUpCashRegister hands a freshly stocked register to a cashier.
// The stocking total moves from the cash vault onto the cashier
// account as a transfer order, so the drawer content and the account
// balance agree from the first moment.
func (s *RegisterService) StockUpCashRegister(ctx context.Context, current *user.CurrentUser, cashierID, registerID, stockingID int64) (*till.CashRegister, error) {
	if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	var register *till.CashRegister
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		stocking, err := tx.Till().GetStocking(ctx, stockingID)
		if err != nil {
			return wrapNotFound(err, "register stocking", stockingID)
		}
		register, err = tx.Till().GetCashRegister(ctx, registerID)
		if err != nil {
			return wrapNotFound(err, "cash register", registerID)
		}
		cashier, err := tx.Cashier().GetCashier(ctx, cashierID)
		if err != nil {
			return wrapNotFound(err, "cashier", cashierID)
		}
		if cashier.CashRegisterID != nil {
			return errs.Conflict("cashier already holds a cash register")
		}
		if cashier.CashierAccountID == nil {
			return errs.Conflict("cashier has no cashier account")
		}
		holder, err := tx.User().GetUserByCashRegister(ctx, registerID)
		if err == nil {
			return errs.Newf(errs.KindConflict, "cash register is already assigned to %s", holder.Login)
		}
		if !relationaldb.IsNotFound(err) {
			return errs.Internal("checking register assignment", err)
		}
		transferProduct, err := tx.Product().GetProduct(ctx, product.MoneyTransferID)
		if err != nil {
			return wrapNotFound(err, "product", product.MoneyTransferID)
		}
		total := stocking.Total()
		bookings := order.BookingMap{}
		bookings.Add(account.CashVaultID, *cashier.CashierAccountID, tax.NameNone, total)
		prepared := order.PrepareMoneyTransfer(*transferProduct, total, bookings)
		if _, err := bookTransferOrder(ctx, tx, cashier.NodeID, current.ID, &registerID, prepared); err != nil {
			return err
		}
		return asServiceError("assigning cash register", tx.User().SetUserCashRegister(ctx, cashierID, &registerID))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("cashier_id", cashierID).Int64("register_id", registerID).
		Int64("stocking_id", stockingID).Msg("cash register stocked up")
	return register, nil
}

// TransferRegister moves a register, drawer cash included, from one
// cashier to another. The target takes over mid-shift, so the source's
// drawer balance is booked across instead of being counted back in.
func (s *RegisterService) TransferRegister(ctx context.Context, current *user.CurrentUser, sourceCashierID, targetCashierID int64) (*till.CashRegister, error) {
	if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if sourceCashierID == targetCashierID {
		return nil, errs.InvalidArgument("source and target cashier are the same")
	}
	var register *till.CashRegister
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		source, err := tx.Cashier().GetCashier(ctx, sourceCashierID)
		if err != nil {
			return wrapNotFound(err, "cashier", sourceCashierID)
		}
		target, err := tx.Cashier().GetCashier(ctx, targetCashierID)
		if err != nil {
			return wrapNotFound(err, "cashier", targetCashierID)
		}
		if source.CashRegisterID == nil {
			return errs.Conflict("source cashier does not hold a cash register")
		}
		if target.CashRegisterID != nil {
			return errs.Conflict("target cashier already holds a cash register")
		}
		if source.CashierAccountID == nil || target.CashierAccountID == nil {
			return errs.Conflict("both cashiers need a cashier account")
		}
		registerID := *source.CashRegisterID
		balance := source.CashDrawerBalance
		if !balance.IsZero() {
			transferProduct, err := tx.Product().GetProduct(ctx, product.MoneyTransferID)
			if err != nil {
				return wrapNotFound(err, "product", product.MoneyTransferID)
			}
			bookings := order.BookingMap{}
			bookings.Add(*source.CashierAccountID, *target.CashierAccountID, tax.NameNone, balance)
			prepared := order.PrepareMoneyTransfer(*transferProduct, balance, bookings)
			if _, err := bookTransferOrder(ctx, tx, source.NodeID, current.ID, &registerID, prepared); err != nil {
				return err
			}
		}
		if err := tx.User().SetUserCashRegister(ctx, sourceCashierID, nil); err != nil {
			return asServiceError("unassigning cash register", err)
		}
		if err := tx.User().SetUserCashRegister(ctx, targetCashierID, &registerID); err != nil {
			return asServiceError("assigning cash register", err)
		}
		register, err = tx.Till().GetCashRegister(ctx, registerID)
		if err != nil {
			return wrapNotFound(err, "cash register", registerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("source_cashier_id", sourceCashierID).
		Int64("target_cashier_id", targetCashierID).Int64("register_id", register.ID).
		Msg("cash register transferred")
	return register, nil
}
