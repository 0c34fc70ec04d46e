package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// OrderRepository implements the OrderRepository interface for PostgreSQL
type OrderRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewOrderRepository creates a new PostgreSQL order repository
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// NewOrderRepositoryWithTx creates a new PostgreSQL order repository within a transaction
func NewOrderRepositoryWithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *OrderRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const orderColumns = `id, uuid, node_id, order_type, status, payment_method,
	cashier_id, till_id, customer_account_id, cash_register_id, z_nr,
	booked_at, item_count, value_sum, value_tax, value_notax`

// CreateOrder inserts a pending order and its line items. The uuid is
// the idempotency key: a replay with a known uuid returns the existing
// order and created=false without touching it.
func (r *OrderRepository) CreateOrder(ctx context.Context, row relationaldb.NewOrderRow) (*order.Order, bool, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO ordr (uuid, node_id, status, order_type, payment_method,
			cashier_id, till_id, customer_account_id, cash_register_id)
		 VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (uuid) DO NOTHING
		 RETURNING id`,
		row.UUID, row.NodeID, string(row.Type), string(row.PaymentMethod),
		row.CashierID, row.TillID, row.CustomerAccountID, row.CashRegisterID).Scan(&id)

	if err == sql.ErrNoRows {
		err = r.getExecutor().QueryRowContext(ctx,
			`SELECT id FROM ordr WHERE uuid = $1`, row.UUID).Scan(&id)
		if err != nil {
			return nil, false, relationaldb.NewQueryError("create_order", "failed to resolve replayed order", err)
		}

		existing, err := r.GetOrder(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, classifyError("create_order", "failed to create order", err)
	}

	for _, item := range row.LineItems {
		_, err := r.getExecutor().ExecContext(ctx,
			`INSERT INTO line_item (order_id, item_id, product_id, quantity,
				price, tax_name, tax_rate)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, item.ItemID, item.ProductID, item.Quantity,
			item.Price, item.TaxRateName, item.TaxRate)
		if err != nil {
			return nil, false, classifyError("create_order", "failed to create line item", err)
		}
	}

	created, err := r.GetOrder(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM ordr WHERE id = $1`

	o, err := scanOrder(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_order", relationaldb.ErrOrderNotFound, "ORDER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_order", "failed to query order", err)
	}

	if err := r.attachLineItems(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrderForUpdate locks the order row for the rest of the transaction
// so concurrent finish and cancel attempts serialize.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM ordr WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_order_for_update", relationaldb.ErrOrderNotFound, "ORDER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_order_for_update", "failed to query order", err)
	}

	if err := r.attachLineItems(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}

	return o, nil
}

func (r *OrderRepository) ListOrders(ctx context.Context, filter relationaldb.OrderFilter) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM ordr WHERE node_id = $1`
	args := []interface{}{filter.NodeID}

	if filter.TillID != nil {
		args = append(args, *filter.TillID)
		query += ` AND till_id = $` + strconv.Itoa(len(args))
	}
	if filter.CashierID != nil {
		args = append(args, *filter.CashierID)
		query += ` AND cashier_id = $` + strconv.Itoa(len(args))
	}
	if len(filter.Types) > 0 {
		typeNames := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			typeNames[i] = string(t)
		}
		args = append(args, pq.StringArray(typeNames))
		query += ` AND order_type = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY id DESC`

	return r.listOrders(ctx, "list_orders", query, args...)
}

// ListCustomerOrders returns the portal view: only booked orders, newest
// first.
func (r *OrderRepository) ListCustomerOrders(ctx context.Context, customerAccountID int64) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM ordr
			  WHERE customer_account_id = $1 AND status = 'done'
			  ORDER BY booked_at DESC, id DESC`

	return r.listOrders(ctx, "list_customer_orders", query, customerAccountID)
}

func (r *OrderRepository) ListCustomerOrdersWithBon(ctx context.Context, customerAccountID int64) ([]order.OrderWithBon, error) {
	query := `SELECT ` + prefixedOrderColumns("o") + `, COALESCE(b.generated, FALSE)
			  FROM ordr o
			  LEFT JOIN bon b ON o.id = b.id
			  WHERE o.customer_account_id = $1 AND o.status = 'done'
			  ORDER BY o.booked_at DESC, o.id DESC`

	rows, err := r.getExecutor().QueryContext(ctx, query, customerAccountID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_customer_orders_with_bon", "failed to query orders", err)
	}
	defer rows.Close()

	var orders []order.OrderWithBon
	var refs []*order.Order
	for rows.Next() {
		var o order.OrderWithBon
		if err := scanOrderInto(rows, &o.Order, &o.BonGenerated); err != nil {
			return nil, relationaldb.NewQueryError("list_customer_orders_with_bon", "failed to scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_customer_orders_with_bon", "failed to iterate orders", err)
	}

	for i := range orders {
		refs = append(refs, &orders[i].Order)
	}
	if err := r.attachLineItems(ctx, refs); err != nil {
		return nil, err
	}

	return orders, nil
}

// FinishOrder marks a pending order done: totals are recomputed from the
// line items and frozen, the till's z number is recorded and booked_at
// is set. Each total is rounded once over the whole order.
func (r *OrderRepository) FinishOrder(ctx context.Context, id int64, zNr int64) (time.Time, error) {
	var bookedAt time.Time
	err := r.getExecutor().QueryRowContext(ctx,
		`UPDATE ordr SET status = 'done', booked_at = NOW(), z_nr = $2,
			item_count = li.item_count,
			value_sum = li.value_sum,
			value_tax = li.value_tax,
			value_notax = li.value_sum - li.value_tax
		 FROM (
			SELECT COUNT(*) AS item_count,
				COALESCE(ROUND(SUM(price * quantity), 2), 0) AS value_sum,
				COALESCE(ROUND(SUM(price * quantity * tax_rate / (1 + tax_rate)), 2), 0) AS value_tax
			FROM line_item WHERE order_id = $1
		 ) li
		 WHERE ordr.id = $1 AND ordr.status = 'pending'
		 RETURNING ordr.booked_at`, id, zNr).Scan(&bookedAt)

	if err == sql.ErrNoRows {
		return time.Time{}, r.orderStateError(ctx, "finish_order", id)
	}
	if err != nil {
		return time.Time{}, relationaldb.NewQueryError("finish_order", "failed to finish order", err)
	}

	return bookedAt, nil
}

func (r *OrderRepository) CancelOrder(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE ordr SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return relationaldb.NewQueryError("cancel_order", "failed to cancel order", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("cancel_order", "failed to check cancel result", err)
	}
	if affected == 0 {
		return r.orderStateError(ctx, "cancel_order", id)
	}

	return nil
}

// orderStateError distinguishes a missing order from one that already
// left the pending state.
func (r *OrderRepository) orderStateError(ctx context.Context, operation string, id int64) error {
	var status string
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT status FROM ordr WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return relationaldb.NewNotFoundError(operation, relationaldb.ErrOrderNotFound, "ORDER_NOT_FOUND")
	}
	if err != nil {
		return relationaldb.NewQueryError(operation, "failed to query order status", err)
	}

	return relationaldb.NewDataError(operation, "order is not pending", relationaldb.ErrOrderNotFound).
		WithCode("ORDER_NOT_PENDING").WithDetail("status", status)
}

func (r *OrderRepository) listOrders(ctx context.Context, operation, query string, args ...interface{}) ([]order.Order, error) {
	rows, err := r.getExecutor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to query orders", err)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError(operation, "failed to scan order", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to iterate orders", err)
	}

	refs := make([]*order.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	if err := r.attachLineItems(ctx, refs); err != nil {
		return nil, err
	}

	return orders, nil
}

// attachLineItems loads the line items for a batch of orders in one
// query and distributes them.
func (r *OrderRepository) attachLineItems(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make(pq.Int64Array, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.getExecutor().QueryContext(ctx,
		`SELECT order_id, item_id, product_id, quantity, price, tax_name, tax_rate
		 FROM line_item WHERE order_id = ANY($1)
		 ORDER BY order_id, item_id`, ids)
	if err != nil {
		return relationaldb.NewQueryError("attach_line_items", "failed to query line items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var li order.LineItem
		err := rows.Scan(&li.OrderID, &li.ItemID, &li.ProductID, &li.Quantity,
			&li.Price, &li.TaxRateName, &li.TaxRate)
		if err != nil {
			return relationaldb.NewQueryError("attach_line_items", "failed to scan line item", err)
		}
		if o, ok := byID[li.OrderID]; ok {
			o.LineItems = append(o.LineItems, li)
		}
	}

	if err := rows.Err(); err != nil {
		return relationaldb.NewQueryError("attach_line_items", "failed to iterate line items", err)
	}

	return nil
}

func scanOrder(row scanner) (*order.Order, error) {
	var o order.Order
	if err := scanOrderInto(row, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// scanOrderInto scans the order columns plus any trailing extras.
func scanOrderInto(row scanner, o *order.Order, extras ...interface{}) error {
	var customerAccountID, registerID sql.NullInt64
	var bookedAt sql.NullTime

	dest := []interface{}{
		&o.ID, &o.UUID, &o.NodeID, &o.Type, &o.Status, &o.PaymentMethod,
		&o.CashierID, &o.TillID, &customerAccountID, &registerID, &o.ZNr,
		&bookedAt, &o.ItemCount, &o.ValueSum, &o.ValueTax, &o.ValueNoTax,
	}
	dest = append(dest, extras...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	o.CustomerAccountID = ptrInt64(customerAccountID)
	o.CashRegisterID = ptrInt64(registerID)
	o.BookedAt = ptrTime(bookedAt)

	return nil
}

// prefixedOrderColumns qualifies each order column with a table alias
// for joined queries.
func prefixedOrderColumns(alias string) string {
	cols := []string{
		"id", "uuid", "node_id", "order_type", "status", "payment_method",
		"cashier_id", "till_id", "customer_account_id", "cash_register_id",
		"z_nr", "booked_at", "item_count", "value_sum", "value_tax", "value_notax",
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
