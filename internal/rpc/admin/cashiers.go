package admin

import (
	"net/http"

	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/rpc"
)

func (a *API) listCashiers(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	cashiers, err := a.cashiers.ListCashiers(r.Context(), rpc.UserFrom(r.Context()), nodeID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, cashiers, len(cashiers))
}

func (a *API) getCashier(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	cashier, err := a.cashiers.GetCashier(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, cashier)
}

func (a *API) listCashierShifts(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	shifts, err := a.cashiers.ListCashierShifts(r.Context(), rpc.UserFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, shifts, len(shifts))
}

// getCashierShiftStats reports per-product sale quantities, either for
// one shift (shift_id query) or the cashier's current open window.
func (a *API) getCashierShiftStats(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var shiftID *int64
	if raw, err := rpc.QueryInt64(r, "shift_id", 0); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	} else if raw != 0 {
		shiftID = &raw
	}
	stats, err := a.cashiers.GetCashierShiftStats(r.Context(), rpc.UserFrom(r.Context()), id, shiftID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, stats)
}

func (a *API) closeOutCashier(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload till.CloseOut
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	result, err := a.cashiers.CloseOut(r.Context(), rpc.UserFrom(r.Context()), id, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, result)
}

type stockUpPayload struct {
	RegisterID int64 `json:"cash_register_id"`
	StockingID int64 `json:"stocking_id"`
}

func (a *API) stockUpCashier(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload stockUpPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	register, err := a.registers.StockUpCashRegister(r.Context(), rpc.UserFrom(r.Context()), id, payload.RegisterID, payload.StockingID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, register)
}
