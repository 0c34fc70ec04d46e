// Package terminal exposes the API the point-of-sale terminals talk
// to: terminal registration, staff login on the till and the order
// flow itself.
package terminal

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/rpc"
	"github.com/stustapay/stustapayd/internal/service"
)

// API bundles the services the terminal surface calls into.
type API struct {
	auth   *service.AuthService
	tills  *service.TillService
	orders *service.OrderService
	logger zerolog.Logger
}

// New assembles the terminal API.
func New(auth *service.AuthService, tills *service.TillService, orders *service.OrderService, logger zerolog.Logger) *API {
	return &API{
		auth:   auth,
		tills:  tills,
		orders: orders,
		logger: logger.With().Str("api", "terminal").Logger(),
	}
}

// Router mounts the terminal routes. Registration is the only
// unauthenticated call; everything else carries the session token the
// registration handed out.
func (a *API) Router() *mux.Router {
	authn := rpc.NewAuthenticator(a.auth, a.logger)

	r := mux.NewRouter()
	r.HandleFunc("/auth/register_terminal", a.registerTerminal).Methods(http.MethodPost)

	p := r.NewRoute().Subrouter()
	p.Use(authn.RequireTerminal)
	p.HandleFunc("/auth/logout_terminal", a.logoutTerminal).Methods(http.MethodPost)
	p.HandleFunc("/config", a.getConfig).Methods(http.MethodGet)

	p.HandleFunc("/user/check-login", a.checkUserLogin).Methods(http.MethodPost)
	p.HandleFunc("/user/login", a.loginUser).Methods(http.MethodPost)
	p.HandleFunc("/user/logout", a.logoutUser).Methods(http.MethodPost)
	p.HandleFunc("/user", a.currentUser).Methods(http.MethodGet)
	p.HandleFunc("/user/info/{tag_uid}", a.getUserInfo).Methods(http.MethodGet)

	p.HandleFunc("/order/check", a.checkOrder).Methods(http.MethodPost)
	p.HandleFunc("/order", a.createOrder).Methods(http.MethodPost)
	p.HandleFunc("/order/{id}", a.getOrder).Methods(http.MethodGet)
	p.HandleFunc("/order/{id}/book", a.bookOrder).Methods(http.MethodPost)
	p.HandleFunc("/order/{id}/cancel", a.cancelOrder).Methods(http.MethodPost)

	p.HandleFunc("/customer/{tag_uid}", a.getCustomer).Methods(http.MethodGet)

	return r
}
