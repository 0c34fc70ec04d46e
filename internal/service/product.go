package service

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

const productCacheSize = 1024

// ProductService manages the product registry. Reads go through a
// small LRU since terminal configs and admin views hammer the same
// products; order booking reads products inside its own transaction
// and bypasses the cache on purpose.
type ProductService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
	cache  *lru.Cache[int64, product.Product]
}

func NewProductService(db relationaldb.RepositoryManager, logger zerolog.Logger) (*ProductService, error) {
	cache, err := lru.New[int64, product.Product](productCacheSize)
	if err != nil {
		return nil, err
	}
	return &ProductService{
		db:     db,
		logger: logger.With().Str("component", "product").Logger(),
		cache:  cache,
	}, nil
}

func (s *ProductService) GetProduct(ctx context.Context, current *user.CurrentUser, id int64) (*product.Product, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	if p, ok := s.cache.Get(id); ok {
		return &p, nil
	}
	p, err := s.db.Product().GetProduct(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "product", id)
	}
	s.cache.Add(id, *p)
	return p, nil
}

func (s *ProductService) ListProducts(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]product.Product, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	products, err := s.db.Product().ListProducts(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing products", err)
	}
	return products, nil
}

func (s *ProductService) CreateProduct(ctx context.Context, current *user.CurrentUser, nodeID int64, newProduct product.NewProduct) (*product.Product, error) {
	if err := requirePrivileges(current, user.PrivilegeProductManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if !newProduct.Validate() {
		return nil, errs.InvalidArgument("a fixed price product requires a price, a free price product must not carry one")
	}
	p, err := s.db.Product().CreateProduct(ctx, nodeID, newProduct)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a product with this name already exists")
		}
		return nil, errs.Internal("creating product", err)
	}
	s.cache.Add(p.ID, *p)
	s.logger.Info().Int64("product_id", p.ID).Str("name", p.Name).Msg("product created")
	return p, nil
}

// UpdateProduct applies an update, refusing changes to booking-relevant
// attributes of locked products. The name stays editable either way.
func (s *ProductService) UpdateProduct(ctx context.Context, current *user.CurrentUser, id int64, update product.NewProduct) (*product.Product, error) {
	if err := requirePrivileges(current, user.PrivilegeProductManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if !update.Validate() {
		return nil, errs.InvalidArgument("a fixed price product requires a price, a free price product must not carry one")
	}
	var updated *product.Product
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		existing, err := tx.Product().GetProduct(ctx, id)
		if err != nil {
			return wrapNotFound(err, "product", id)
		}
		if existing.IsLocked && product.LockedAttributeChanged(*existing, update) {
			return errs.ProductNotEditable(id)
		}
		updated, err = tx.Product().UpdateProduct(ctx, id, update)
		if err != nil {
			return wrapNotFound(err, "product", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Add(updated.ID, *updated)
	return updated, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeProductManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	switch id {
	case product.DiscountID, product.TopUpID, product.PayOutID, product.MoneyTransferID, product.MoneyDifferenceID:
		return errs.InvalidArgument("bookkeeping products cannot be deleted")
	}
	if err := s.db.Product().DeleteProduct(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("product is referenced by existing orders")
		}
		return wrapNotFound(err, "product", id)
	}
	s.cache.Remove(id)
	return nil
}
