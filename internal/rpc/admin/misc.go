package admin

import (
	"net/http"

	"github.com/stustapay/stustapayd/internal/core/tse"
	"github.com/stustapay/stustapayd/internal/rpc"
)

func (a *API) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	c, err := a.customers.GetCustomerByID(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, c)
}

func (a *API) getCustomerByTag(w http.ResponseWriter, r *http.Request) {
	tagUID, err := rpc.PathTagUID(r, "tag_uid")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	c, err := a.tills.GetCustomer(r.Context(), rpc.UserFrom(r.Context()), tagUID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, c)
}

func (a *API) listPayoutRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.payouts.ListRuns(r.Context(), rpc.UserFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, runs, len(runs))
}

func (a *API) getPayoutRun(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	run, err := a.payouts.GetRun(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, run)
}

func (a *API) pendingPayouts(w http.ResponseWriter, r *http.Request) {
	stats, err := a.payouts.PendingPayouts(r.Context(), rpc.UserFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, stats)
}

func (a *API) listConfigEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := a.config.ListEntries(r.Context(), rpc.UserFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, entries, len(entries))
}

type configEntryPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (a *API) setConfigEntry(w http.ResponseWriter, r *http.Request) {
	var payload configEntryPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	entry, err := a.config.SetEntry(r.Context(), rpc.UserFrom(r.Context()), payload.Key, payload.Value)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, entry)
}

func (a *API) listTSEs(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	tses, err := a.tses.ListTSEs(r.Context(), rpc.UserFrom(r.Context()), nodeID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, tses, len(tses))
}

func (a *API) getTSE(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	unit, err := a.tses.GetTSE(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, unit)
}

func (a *API) createTSE(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload tse.NewTSE
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	unit, err := a.tses.CreateTSE(r.Context(), rpc.UserFrom(r.Context()), nodeID, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusCreated, unit)
}

func (a *API) updateTSE(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload tse.UpdateTSE
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	unit, err := a.tses.UpdateTSE(r.Context(), rpc.UserFrom(r.Context()), id, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, unit)
}
