package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// ProductRepository implements the ProductRepository interface for PostgreSQL
type ProductRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewProductRepository creates a new PostgreSQL product repository
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// NewProductRepositoryWithTx creates a new PostgreSQL product repository within a transaction
func NewProductRepositoryWithTx(tx *sql.Tx) *ProductRepository {
	return &ProductRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *ProductRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// The tax rate is joined in for display; bookings still freeze their own
// copy of the rate at booking time.
const productQuery = `SELECT p.id, p.node_id, p.name, p.price, p.fixed_price,
		p.price_in_vouchers, p.tax_name, t.rate, p.is_locked, p.is_returnable,
		p.target_account_id,
		COALESCE(array_agg(pr.restriction) FILTER (WHERE pr.restriction IS NOT NULL), '{}')
	FROM product p
	JOIN tax t ON p.tax_name = t.name
	LEFT JOIN product_restriction pr ON p.id = pr.id`

func (r *ProductRepository) CreateProduct(ctx context.Context, nodeID int64, newProduct product.NewProduct) (*product.Product, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO product (node_id, name, price, fixed_price, price_in_vouchers,
			tax_name, is_locked, is_returnable, target_account_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		nodeID, newProduct.Name, newProduct.Price, newProduct.FixedPrice,
		newProduct.PriceInVouchers, newProduct.TaxRateName, newProduct.IsLocked,
		newProduct.IsReturnable, newProduct.TargetAccountID).Scan(&id)
	if err != nil {
		return nil, classifyError("create_product", "failed to create product", err)
	}

	if err := r.setRestrictions(ctx, id, newProduct.Restrictions); err != nil {
		return nil, err
	}

	return r.GetProduct(ctx, id)
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	query := productQuery + ` WHERE p.id = $1 GROUP BY p.id, t.rate`

	p, err := scanProduct(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_product", relationaldb.ErrProductNotFound, "PRODUCT_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_product", "failed to query product", err)
	}

	return p, nil
}

func (r *ProductRepository) ListProducts(ctx context.Context, nodeID int64) ([]product.Product, error) {
	query := productQuery + ` WHERE p.node_id = $1 GROUP BY p.id, t.rate ORDER BY p.name`

	rows, err := r.getExecutor().QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_products", "failed to query products", err)
	}
	defer rows.Close()

	var products []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_products", "failed to scan product", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_products", "failed to iterate products", err)
	}

	return products, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, id int64, update product.NewProduct) (*product.Product, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE product SET name = $1, price = $2, fixed_price = $3,
			price_in_vouchers = $4, tax_name = $5, is_locked = $6,
			is_returnable = $7, target_account_id = $8
		 WHERE id = $9`,
		update.Name, update.Price, update.FixedPrice, update.PriceInVouchers,
		update.TaxRateName, update.IsLocked, update.IsReturnable,
		update.TargetAccountID, id)
	if err != nil {
		return nil, classifyError("update_product", "failed to update product", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_product", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_product", relationaldb.ErrProductNotFound, "PRODUCT_NOT_FOUND")
	}

	_, err = r.getExecutor().ExecContext(ctx, `DELETE FROM product_restriction WHERE id = $1`, id)
	if err != nil {
		return nil, relationaldb.NewQueryError("update_product", "failed to clear restrictions", err)
	}
	if err := r.setRestrictions(ctx, id, update.Restrictions); err != nil {
		return nil, err
	}

	return r.GetProduct(ctx, id)
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM product WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_product", "failed to delete product", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_product", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_product", relationaldb.ErrProductNotFound, "PRODUCT_NOT_FOUND")
	}

	return nil
}

func (r *ProductRepository) setRestrictions(ctx context.Context, productID int64, restrictions []account.Restriction) error {
	if len(restrictions) == 0 {
		return nil
	}

	arr := make(pq.StringArray, len(restrictions))
	for i, res := range restrictions {
		arr[i] = string(res)
	}

	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO product_restriction (id, restriction) SELECT $1, unnest($2::TEXT[])`,
		productID, arr)
	if err != nil {
		return classifyError("set_product_restrictions", "failed to set restrictions", err)
	}

	return nil
}

func scanProduct(row scanner) (*product.Product, error) {
	var p product.Product
	var price decimal.NullDecimal
	var priceInVouchers, targetAccountID sql.NullInt64
	var restrictions pq.StringArray

	err := row.Scan(&p.ID, &p.NodeID, &p.Name, &price, &p.FixedPrice,
		&priceInVouchers, &p.TaxRateName, &p.TaxRate, &p.IsLocked,
		&p.IsReturnable, &targetAccountID, &restrictions)
	if err != nil {
		return nil, err
	}

	p.Price = ptrDecimal(price)
	p.PriceInVouchers = ptrInt64(priceInVouchers)
	p.TargetAccountID = ptrInt64(targetAccountID)

	p.Restrictions = make([]account.Restriction, len(restrictions))
	for i, res := range restrictions {
		p.Restrictions[i] = account.Restriction(res)
	}

	return &p, nil
}
