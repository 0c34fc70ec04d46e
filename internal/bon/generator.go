package bon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/metrics"
	"github.com/stustapay/stustapayd/internal/storage/docstore"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// Generator renders single receipts. It is shared by the listen worker
// and the startup catch-up pass.
type Generator struct {
	db     relationaldb.RepositoryManager
	store  *docstore.Store
	logger zerolog.Logger
}

// NewGenerator creates a receipt generator.
func NewGenerator(db relationaldb.RepositoryManager, store *docstore.Store, logger zerolog.Logger) *Generator {
	return &Generator{
		db:     db,
		store:  store,
		logger: logger.With().Str("component", "bon-generator").Logger(),
	}
}

// Generate renders the receipt for one order and marks the bon row.
// It returns true when a document was written, false when there was
// nothing to do. Already generated bons and orders without a bon row
// are skipped silently, so duplicate notifications are harmless.
//
// Render failures are recorded on the bon row; such orders no longer
// appear in the pending query until an operator clears the error.
func (g *Generator) Generate(ctx context.Context, orderID int64) (bool, error) {
	b, err := g.db.Bon().GetBon(ctx, orderID)
	if err != nil {
		if errors.Is(err, relationaldb.ErrBonNotFound) {
			return false, nil
		}
		return false, err
	}
	if b.Generated {
		return false, nil
	}

	doc, err := g.render(ctx, orderID)
	if err != nil {
		// Database trouble is retryable on the next notification; a
		// render failure is not and gets pinned to the bon row.
		if relationaldb.IsRetryable(err) {
			return false, err
		}
		metrics.BonErrorsTotal.Inc()
		if markErr := g.db.Bon().MarkBonError(ctx, orderID, err.Error()); markErr != nil {
			g.logger.Error().Err(markErr).Int64("order_id", orderID).Msg("failed to record bon error")
		}
		return false, err
	}

	if err := g.store.Put(ctx, DocumentKey(orderID), doc); err != nil {
		metrics.BonErrorsTotal.Inc()
		return false, fmt.Errorf("failed to store bon document: %w", err)
	}

	if err := g.db.Bon().MarkBonGenerated(ctx, orderID); err != nil {
		return false, err
	}

	metrics.BonGeneratedTotal.Inc()
	return true, nil
}

// render loads everything the receipt shows and builds the document.
func (g *Generator) render(ctx context.Context, orderID int64) (*Document, error) {
	o, err := g.db.Order().GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Type.ReceiptEligible() {
		return nil, fmt.Errorf("order type %s is not receipt eligible", o.Type)
	}

	products := make(map[int64]product.Product)
	for _, li := range o.LineItems {
		if _, ok := products[li.ProductID]; ok {
			continue
		}
		p, err := g.db.Product().GetProduct(ctx, li.ProductID)
		if err != nil {
			return nil, err
		}
		products[li.ProductID] = *p
	}

	t, err := g.db.Till().GetTill(ctx, o.TillID)
	if err != nil {
		return nil, err
	}
	cashier, err := g.db.User().GetUser(ctx, o.CashierID)
	if err != nil {
		return nil, err
	}

	cfg, err := g.displayConfig(ctx)
	if err != nil {
		return nil, err
	}

	return BuildDocument(o, products, t.Name, cashier.DisplayName, cfg)
}

// displayConfig reads the receipt header fields from the runtime
// config table.
func (g *Generator) displayConfig(ctx context.Context) (DisplayConfig, error) {
	entries, err := g.db.Config().ListConfigEntries(ctx)
	if err != nil {
		return DisplayConfig{}, err
	}

	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}

	return DisplayConfig{
		Title:              values["bon.title"],
		Issuer:             values["bon.issuer"],
		Address:            values["bon.address"],
		UstID:              values["bon.ust_id"],
		Currency:           values["currency.symbol"],
		CurrencyIdentifier: values["currency.identifier"],
	}, nil
}
