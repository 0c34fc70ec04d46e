package admin

import (
	"net/http"

	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/rpc"
)

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	products, err := a.products.ListProducts(r.Context(), rpc.UserFrom(r.Context()), nodeID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, products, len(products))
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	p, err := a.products.GetProduct(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, p)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload product.NewProduct
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	p, err := a.products.CreateProduct(r.Context(), rpc.UserFrom(r.Context()), nodeID, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusCreated, p)
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload product.NewProduct
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	p, err := a.products.UpdateProduct(r.Context(), rpc.UserFrom(r.Context()), id, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, p)
}

func (a *API) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	if err := a.products.DeleteProduct(r.Context(), rpc.UserFrom(r.Context()), id); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}
