// Package admin exposes the administration HTTP API: event staff
// manage products, tills, users and cashiers here, watch live orders
// over the event stream and inspect payout runs.
package admin

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/rpc"
	"github.com/stustapay/stustapayd/internal/service"
)

// API bundles the services the administration surface calls into.
type API struct {
	auth      *service.AuthService
	users     *service.UserService
	products  *service.ProductService
	taxRates  *service.TaxRateService
	tills     *service.TillService
	registers *service.RegisterService
	cashiers  *service.CashierService
	customers *service.CustomerService
	orders    *service.OrderService
	payouts   *service.PayoutService
	config    *service.ConfigService
	tses      *service.TSEService
	hub       *rpc.Hub
	logger    zerolog.Logger
}

// Deps names everything the admin API needs; the container fills it.
type Deps struct {
	Auth      *service.AuthService
	Users     *service.UserService
	Products  *service.ProductService
	TaxRates  *service.TaxRateService
	Tills     *service.TillService
	Registers *service.RegisterService
	Cashiers  *service.CashierService
	Customers *service.CustomerService
	Orders    *service.OrderService
	Payouts   *service.PayoutService
	Config    *service.ConfigService
	TSEs      *service.TSEService
	Hub       *rpc.Hub
	Logger    zerolog.Logger
}

// New assembles the administration API.
func New(deps Deps) *API {
	return &API{
		auth:      deps.Auth,
		users:     deps.Users,
		products:  deps.Products,
		taxRates:  deps.TaxRates,
		tills:     deps.Tills,
		registers: deps.Registers,
		cashiers:  deps.Cashiers,
		customers: deps.Customers,
		orders:    deps.Orders,
		payouts:   deps.Payouts,
		config:    deps.Config,
		tses:      deps.TSEs,
		hub:       deps.Hub,
		logger:    deps.Logger.With().Str("api", "admin").Logger(),
	}
}

// Router mounts every administration route. Everything except login
// and the metrics endpoint requires an authenticated user.
func (a *API) Router() *mux.Router {
	authn := rpc.NewAuthenticator(a.auth, a.logger)

	r := mux.NewRouter()
	r.HandleFunc("/auth/login", a.login).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	p := r.NewRoute().Subrouter()
	p.Use(authn.RequireUser)
	p.HandleFunc("/auth/logout", a.logout).Methods(http.MethodPost)
	p.HandleFunc("/events", a.events).Methods(http.MethodGet)

	p.HandleFunc("/tax-rates", a.listTaxRates).Methods(http.MethodGet)
	p.HandleFunc("/tax-rates", a.createTaxRate).Methods(http.MethodPost)
	p.HandleFunc("/tax-rates/{name}", a.getTaxRate).Methods(http.MethodGet)
	p.HandleFunc("/tax-rates/{name}", a.updateTaxRate).Methods(http.MethodPut)
	p.HandleFunc("/tax-rates/{name}", a.deleteTaxRate).Methods(http.MethodDelete)

	p.HandleFunc("/products", a.listProducts).Methods(http.MethodGet)
	p.HandleFunc("/products", a.createProduct).Methods(http.MethodPost)
	p.HandleFunc("/products/{id}", a.getProduct).Methods(http.MethodGet)
	p.HandleFunc("/products/{id}", a.updateProduct).Methods(http.MethodPut)
	p.HandleFunc("/products/{id}", a.deleteProduct).Methods(http.MethodDelete)

	p.HandleFunc("/tills", a.listTills).Methods(http.MethodGet)
	p.HandleFunc("/tills", a.createTill).Methods(http.MethodPost)
	p.HandleFunc("/tills/{id}", a.getTill).Methods(http.MethodGet)
	p.HandleFunc("/tills/{id}", a.updateTill).Methods(http.MethodPut)
	p.HandleFunc("/tills/{id}", a.deleteTill).Methods(http.MethodDelete)
	p.HandleFunc("/tills/{id}/force-logout-user", a.forceLogoutUser).Methods(http.MethodPost)
	p.HandleFunc("/terminals", a.listTerminals).Methods(http.MethodGet)
	p.HandleFunc("/terminals/switch", a.switchTerminal).Methods(http.MethodPost)

	p.HandleFunc("/till_profiles", a.listProfiles).Methods(http.MethodGet)
	p.HandleFunc("/till_profiles", a.createProfile).Methods(http.MethodPost)
	p.HandleFunc("/till_profiles/{id}", a.getProfile).Methods(http.MethodGet)
	p.HandleFunc("/till_profiles/{id}", a.updateProfile).Methods(http.MethodPut)
	p.HandleFunc("/till_profiles/{id}", a.deleteProfile).Methods(http.MethodDelete)

	p.HandleFunc("/till_layouts", a.listLayouts).Methods(http.MethodGet)
	p.HandleFunc("/till_layouts", a.createLayout).Methods(http.MethodPost)
	p.HandleFunc("/till_layouts/{id}", a.getLayout).Methods(http.MethodGet)
	p.HandleFunc("/till_layouts/{id}", a.updateLayout).Methods(http.MethodPut)
	p.HandleFunc("/till_layouts/{id}", a.deleteLayout).Methods(http.MethodDelete)

	p.HandleFunc("/till_buttons", a.listButtons).Methods(http.MethodGet)
	p.HandleFunc("/till_buttons", a.createButton).Methods(http.MethodPost)
	p.HandleFunc("/till_buttons/{id}", a.getButton).Methods(http.MethodGet)
	p.HandleFunc("/till_buttons/{id}", a.updateButton).Methods(http.MethodPut)
	p.HandleFunc("/till_buttons/{id}", a.deleteButton).Methods(http.MethodDelete)

	p.HandleFunc("/till_registers", a.listRegisters).Methods(http.MethodGet)
	p.HandleFunc("/till_registers", a.createRegister).Methods(http.MethodPost)
	p.HandleFunc("/till_registers/{id}", a.updateRegister).Methods(http.MethodPut)
	p.HandleFunc("/till_registers/{id}", a.deleteRegister).Methods(http.MethodDelete)
	p.HandleFunc("/till_registers/transfer", a.transferRegister).Methods(http.MethodPost)

	p.HandleFunc("/till_register_stockings", a.listStockings).Methods(http.MethodGet)
	p.HandleFunc("/till_register_stockings", a.createStocking).Methods(http.MethodPost)
	p.HandleFunc("/till_register_stockings/{id}", a.updateStocking).Methods(http.MethodPut)
	p.HandleFunc("/till_register_stockings/{id}", a.deleteStocking).Methods(http.MethodDelete)

	p.HandleFunc("/user", a.listUsers).Methods(http.MethodGet)
	p.HandleFunc("/user", a.createUser).Methods(http.MethodPost)
	p.HandleFunc("/user/{id}", a.getUser).Methods(http.MethodGet)
	p.HandleFunc("/user/{id}", a.updateUser).Methods(http.MethodPut)
	p.HandleFunc("/user/{id}", a.deleteUser).Methods(http.MethodDelete)

	p.HandleFunc("/user_roles", a.listUserRoles).Methods(http.MethodGet)
	p.HandleFunc("/user_roles", a.createUserRole).Methods(http.MethodPost)
	p.HandleFunc("/user_roles/{id}", a.getUserRole).Methods(http.MethodGet)
	p.HandleFunc("/user_roles/{id}", a.updateUserRole).Methods(http.MethodPut)
	p.HandleFunc("/user_roles/{id}", a.deleteUserRole).Methods(http.MethodDelete)

	p.HandleFunc("/cashiers", a.listCashiers).Methods(http.MethodGet)
	p.HandleFunc("/cashiers/{id}", a.getCashier).Methods(http.MethodGet)
	p.HandleFunc("/cashiers/{id}/shifts", a.listCashierShifts).Methods(http.MethodGet)
	p.HandleFunc("/cashiers/{id}/stats", a.getCashierShiftStats).Methods(http.MethodGet)
	p.HandleFunc("/cashiers/{id}/close-out", a.closeOutCashier).Methods(http.MethodPost)
	p.HandleFunc("/cashiers/{id}/stock-up", a.stockUpCashier).Methods(http.MethodPost)

	p.HandleFunc("/customers/{id}", a.getCustomer).Methods(http.MethodGet)
	p.HandleFunc("/customers/by-tag/{tag_uid}", a.getCustomerByTag).Methods(http.MethodGet)

	p.HandleFunc("/orders", a.listOrders).Methods(http.MethodGet)
	p.HandleFunc("/orders/{id}", a.getOrder).Methods(http.MethodGet)
	p.HandleFunc("/orders/{id}/transactions", a.listOrderTransactions).Methods(http.MethodGet)
	p.HandleFunc("/orders/by-customer/{account_id}", a.listCustomerOrders).Methods(http.MethodGet)

	p.HandleFunc("/payouts", a.listPayoutRuns).Methods(http.MethodGet)
	p.HandleFunc("/payouts/pending", a.pendingPayouts).Methods(http.MethodGet)
	p.HandleFunc("/payouts/{id}", a.getPayoutRun).Methods(http.MethodGet)

	p.HandleFunc("/config", a.listConfigEntries).Methods(http.MethodGet)
	p.HandleFunc("/config", a.setConfigEntry).Methods(http.MethodPost)

	p.HandleFunc("/tse", a.listTSEs).Methods(http.MethodGet)
	p.HandleFunc("/tse", a.createTSE).Methods(http.MethodPost)
	p.HandleFunc("/tse/{id}", a.getTSE).Methods(http.MethodGet)
	p.HandleFunc("/tse/{id}", a.updateTSE).Methods(http.MethodPut)

	return r
}

// events upgrades to the order event stream.
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	a.hub.ServeWS(w, r)
}

// nodeID resolves the node scope of a list request: an explicit
// node_id query wins, otherwise the caller's own node.
func (a *API) nodeID(r *http.Request) (int64, error) {
	current := rpc.UserFrom(r.Context())
	return rpc.QueryInt64(r, "node_id", current.NodeID)
}
