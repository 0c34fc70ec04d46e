// Package customer exposes the self-service portal API: wristband pin
// login, order history with receipts, and bank data entry for the
// after-event payout.
package customer

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	corecustomer "github.com/stustapay/stustapayd/internal/core/customer"
	"github.com/stustapay/stustapayd/internal/rpc"
	"github.com/stustapay/stustapayd/internal/service"
)

// API bundles the services the portal surface calls into.
type API struct {
	auth      *service.AuthService
	customers *service.CustomerService
	config    *service.ConfigService
	logger    zerolog.Logger
}

// New assembles the customer portal API.
func New(auth *service.AuthService, customers *service.CustomerService, config *service.ConfigService, logger zerolog.Logger) *API {
	return &API{
		auth:      auth,
		customers: customers,
		config:    config,
		logger:    logger.With().Str("api", "customer").Logger(),
	}
}

// Router mounts the portal routes. Login and the public config are
// open; everything else needs the session token the login handed out.
func (a *API) Router() *mux.Router {
	authn := rpc.NewAuthenticator(a.auth, a.logger)

	r := mux.NewRouter()
	r.HandleFunc("/auth/login", a.login).Methods(http.MethodPost)
	r.HandleFunc("/public-config", a.publicConfig).Methods(http.MethodGet)

	p := r.NewRoute().Subrouter()
	p.Use(authn.RequireCustomer)
	p.HandleFunc("/auth/logout", a.logout).Methods(http.MethodPost)
	p.HandleFunc("/customer", a.getCustomer).Methods(http.MethodGet)
	p.HandleFunc("/customer/info", a.updateInfo).Methods(http.MethodPost)
	p.HandleFunc("/customer/donate-all", a.donateAll).Methods(http.MethodPost)
	p.HandleFunc("/orders-with-bon", a.listOrders).Methods(http.MethodGet)
	p.HandleFunc("/bon/{id}", a.getBon).Methods(http.MethodGet)
	p.HandleFunc("/payout-info", a.payoutInfo).Methods(http.MethodGet)

	return r
}

type loginPayload struct {
	Pin string `json:"pin"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	result, err := a.customers.Login(r.Context(), payload.Pin)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, result)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	c := rpc.CustomerFrom(r.Context())
	if err := a.auth.LogoutCustomer(r.Context(), c, rpc.TokenFrom(r.Context())); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}

func (a *API) publicConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.config.GetPublicConfig(r.Context())
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, cfg)
}

func (a *API) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := a.customers.GetCustomer(r.Context(), rpc.CustomerFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, c)
}

func (a *API) updateInfo(w http.ResponseWriter, r *http.Request) {
	var payload corecustomer.Bank
	if err := rpc.DecodeJSON(r, &payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	if err := a.customers.UpdateCustomerInfo(r.Context(), rpc.CustomerFrom(r.Context()), payload); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}

func (a *API) donateAll(w http.ResponseWriter, r *http.Request) {
	if err := a.customers.DonateAll(r.Context(), rpc.CustomerFrom(r.Context())); err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusNoContent, nil)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.customers.ListOrders(r.Context(), rpc.CustomerFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteList(w, orders, len(orders))
}

func (a *API) getBon(w http.ResponseWriter, r *http.Request) {
	id, err := rpc.PathInt64(r, "id")
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	doc, err := a.customers.GetBon(r.Context(), rpc.CustomerFrom(r.Context()), id)
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, doc)
}

func (a *API) payoutInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.customers.PayoutInfo(r.Context(), rpc.CustomerFrom(r.Context()))
	if err != nil {
		rpc.WriteError(w, a.logger, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, info)
}
