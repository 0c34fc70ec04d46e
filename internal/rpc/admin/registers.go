package admin

import (
	"net/http"

	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/rpc"
)

type newRegisterPayload struct {
	Name string `json:"name"`
}

func (a *API) listRegisters(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	registers, err := a.registers.ListCashRegisters(r.Context(), rpc.UserFrom(r.Context()), nodeID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, registers, len(registers))
}

func (a *API) createRegister(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload newRegisterPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	register, err := a.registers.CreateCashRegister(r.Context(), rpc.UserFrom(r.Context()), nodeID, payload.Name)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusCreated, register)
}

func (a *API) updateRegister(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload newRegisterPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	register, err := a.registers.UpdateCashRegister(r.Context(), rpc.UserFrom(r.Context()), id, payload.Name)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, register)
}

func (a *API) deleteRegister(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	if err := a.registers.DeleteCashRegister(r.Context(), rpc.UserFrom(r.Context()), id); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}

type transferRegisterPayload struct {
	SourceCashierID int64 `json:"source_cashier_id"`
	TargetCashierID int64 `json:"target_cashier_id"`
}

func (a *API) transferRegister(w http.ResponseWriter, r *http.Request) {
	var payload transferRegisterPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	register, err := a.registers.TransferRegister(r.Context(), rpc.UserFrom(r.Context()), payload.SourceCashierID, payload.TargetCashierID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, register)
}

func (a *API) listStockings(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	stockings, err := a.registers.ListStockings(r.Context(), rpc.UserFrom(r.Context()), nodeID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, stockings, len(stockings))
}

func (a *API) createStocking(w http.ResponseWriter, r *http.Request) {
	nodeID, err := a.nodeID(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload till.NewCashRegisterStocking
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	stocking, err := a.registers.CreateStocking(r.Context(), rpc.UserFrom(r.Context()), nodeID, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusCreated, stocking)
}

func (a *API) updateStocking(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	var payload till.NewCashRegisterStocking
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	stocking, err := a.registers.UpdateStocking(r.Context(), rpc.UserFrom(r.Context()), id, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, stocking)
}

func (a *API) deleteStocking(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	if err := a.registers.DeleteStocking(r.Context(), rpc.UserFrom(r.Context()), id); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}
