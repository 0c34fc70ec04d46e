package admin

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/rpc"
)

func (a *API) listTaxRates(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rates, err := a.taxRates.ListTaxRates(r.Context(), rpc.UserFrom(r.Context()), nodeID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, rates, len(rates))
}

func (a *API) getTaxRate(w http.ResponseWriter, r *http.Request) {
	rate, err := a.taxRates.GetTaxRate(r.Context(), rpc.UserFrom(r.Context()), mux.Vars(r)["name"])
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, rate)
}

func (a *API) createTaxRate(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload tax.NewRate
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rate, err := a.taxRates.CreateTaxRate(r.Context(), rpc.UserFrom(r.Context()), nodeID, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusCreated, rate)
}

func (a *API) updateTaxRate(w http.ResponseWriter, r *http.Request) {
	var payload tax.NewRate
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rate, err := a.taxRates.UpdateTaxRate(r.Context(), rpc.UserFrom(r.Context()), mux.Vars(r)["name"], payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, rate)
}

func (a *API) deleteTaxRate(w http.ResponseWriter, r *http.Request) {
	if err := a.taxRates.DeleteTaxRate(r.Context(), rpc.UserFrom(r.Context()), mux.Vars(r)["name"]); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}
