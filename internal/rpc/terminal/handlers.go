package terminal

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/rpc"
)

type registerPayload struct {
	RegistrationUUID uuid.UUID `json:"registration_uuid"`
}

func (a *API) registerTerminal(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	if payload.RegistrationUUID == uuid.Nil {
		rpc.WriteError(w, a.logger, errs.InvalidArgument("registration_uuid is required"))
		return
	}
	result, err := a.tills.RegisterTerminal(r.Context(), payload.RegistrationUUID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, result)
}

func (a *API) logoutTerminal(w http.ResponseWriter, r *http.Request) {
	if err := a.tills.LogoutTerminal(r.Context(), rpc.TillFrom(r.Context())); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}

func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.tills.GetTerminalConfig(r.Context(), rpc.TillFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, cfg)
}

type checkLoginPayload struct {
	UserTagUID uint64 `json:"user_tag_uid"`
}

// checkUserLogin lists the roles the tag may assume on this till;
// roles needing a supervisor are filtered by the service.
func (a *API) checkUserLogin(w http.ResponseWriter, r *http.Request) {
	var payload checkLoginPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	roles, err := a.tills.CheckUserLogin(r.Context(), rpc.TillFrom(r.Context()), payload.UserTagUID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, roles)
}

type loginPayload struct {
	UserTagUID uint64 `json:"user_tag_uid"`
	UserRoleID int64  `json:"user_role_id"`
}

func (a *API) loginUser(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	current, err := a.tills.LoginUser(r.Context(), rpc.TillFrom(r.Context()), payload.UserTagUID, payload.UserRoleID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, current)
}

func (a *API) logoutUser(w http.ResponseWriter, r *http.Request) {
	if err := a.tills.LogoutUser(r.Context(), rpc.TillFrom(r.Context())); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}

// currentUser reports who is logged in on this till, nil body when
// nobody is.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) {
	current, err := a.auth.TerminalUser(r.Context(), rpc.TillFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, current)
}

func (a *API) getUserInfo(w http.ResponseWriter, r *http.Request) {
	tagUID, err := rpc.PathTagUID(r, "tag_uid")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	current, err := a.terminalUser(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	info, err := a.tills.GetUserInfo(r.Context(), current, tagUID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, info)
}

func (a *API) getCustomer(w http.ResponseWriter, r *http.Request) {
	tagUID, err := rpc.PathTagUID(r, "tag_uid")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	current, err := a.terminalUser(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	c, err := a.tills.GetCustomer(r.Context(), current, tagUID)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, c)
}

func (a *API) checkOrder(w http.ResponseWriter, r *http.Request) {
	var payload order.NewOrder
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	current, err := a.terminalUser(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	preview, err := a.orders.CheckOrder(r.Context(), rpc.TillFrom(r.Context()), current, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, preview)
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var payload order.NewOrder
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	current, err := a.terminalUser(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	created, err := a.orders.CreateOrder(r.Context(), rpc.TillFrom(r.Context()), current, payload)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusCreated, created)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	o, err := a.orders.GetTerminalOrder(r.Context(), rpc.TillFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, o)
}

func (a *API) bookOrder(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	current, err := a.terminalUser(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	booked, err := a.orders.BookOrder(r.Context(), rpc.TillFrom(r.Context()), current, id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, booked)
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	current, err := a.terminalUser(r)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	if err := a.orders.CancelOrder(r.Context(), rpc.TillFrom(r.Context()), current, id); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}

// terminalUser resolves the staff member logged in on the requesting
// till; order and lookup calls refuse tills nobody is logged in on.
func (a *API) terminalUser(r *http.Request) (*user.CurrentUser, error) {
	current, err := a.auth.TerminalUser(r.Context(), rpc.TillFrom(r.Context()))
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errs.AccessDenied("no user logged in on this terminal")
	}
	return current, nil
}
