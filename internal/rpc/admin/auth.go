package admin

import (
	"net/http"

	"github.com/stustapay/stustapayd/internal/rpc"
)

type loginPayload struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	NodeID   int64  `json:"node_id"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	if payload.NodeID == 0 {
		payload.NodeID = 1
	}
	result, err := a.auth.LoginUser(r.Context(), payload.NodeID, payload.Login, payload.Password)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, result)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	current := rpc.UserFrom(r.Context())
	if err := a.auth.LogoutUser(r.Context(), current, rpc.TokenFrom(r.Context())); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}
