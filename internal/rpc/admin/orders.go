package admin

import (
	"net/http"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/rpc"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	filter := relationaldb.OrderFilter{NodeID: nodeID}
	if tillID, err := rpc.QueryInt64(r, "till_id", 0); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	} else if tillID != 0 {
		filter.TillID = &tillID
	}
	if cashierID, err := rpc.QueryInt64(r, "cashier_id", 0); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	} else if cashierID != 0 {
		filter.CashierID = &cashierID
	}
	if orderType := r.URL.Query().Get("order_type"); orderType != "" {
		filter.Types = []order.Type{order.Type(orderType)}
	}
	orders, err := a.orders.ListOrders(r.Context(), rpc.UserFrom(r.Context()), filter)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, orders, len(orders))
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	o, err := a.orders.GetOrder(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, o)
}

func (a *API) listOrderTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	transactions, err := a.orders.ListOrderTransactions(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, transactions, len(transactions))
}

func (a *API) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	accountID, err := rpc.PathInt64(r, "account_id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	orders, err := a.orders.ListCustomerOrders(r.Context(), rpc.UserFrom(r.Context()), accountID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, orders, len(orders))
}
