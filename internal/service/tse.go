package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/core/tse"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// TSEService manages the registry of fiscal signing units. Units are
// registered and reconfigured here; driving them is the signer
// process's job.
type TSEService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
}

func NewTSEService(db relationaldb.RepositoryManager, logger zerolog.Logger) *TSEService {
	return &TSEService{
		db:     db,
		logger: logger.With().Str("component", "tse").Logger(),
	}
}

func (s *TSEService) GetTSE(ctx context.Context, current *user.CurrentUser, id int64) (*tse.TSE, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	t, err := s.db.TSE().GetTSE(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "tse", id)
	}
	return t, nil
}

func (s *TSEService) ListTSEs(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]tse.TSE, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	tses, err := s.db.TSE().ListTSEs(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing tses", err)
	}
	return tses, nil
}

func (s *TSEService) CreateTSE(ctx context.Context, current *user.CurrentUser, nodeID int64, newTSE tse.NewTSE) (*tse.TSE, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if newTSE.Name == "" || newTSE.WsURL == "" {
		return nil, errs.InvalidArgument("tse name and websocket url are required")
	}
	t, err := s.db.TSE().CreateTSE(ctx, nodeID, newTSE)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a tse with this name or serial already exists")
		}
		return nil, errs.Internal("creating tse", err)
	}
	s.logger.Info().Int64("tse_id", t.ID).Str("name", t.Name).Msg("tse registered")
	return t, nil
}

func (s *TSEService) UpdateTSE(ctx context.Context, current *user.CurrentUser, id int64, update tse.UpdateTSE) (*tse.TSE, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if update.Name == "" || update.WsURL == "" {
		return nil, errs.InvalidArgument("tse name and websocket url are required")
	}
	t, err := s.db.TSE().UpdateTSE(ctx, id, update)
	if err != nil {
		return nil, wrapNotFound(err, "tse", id)
	}
	return t, nil
}
