// Package di wires the daemon together: storage, services, the three
// HTTP APIs and the bon worker are registered once and resolved lazily
// so subcommands only pay for what they use.
package di

import (
	"fmt"
	"sync"
)

// Builder creates a service instance, resolving its dependencies
// through the container.
type Builder func(c *Container) (interface{}, error)

// Container resolves named services from registered builders. Each
// builder runs at most once; later lookups return the cached instance.
type Container struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// entry memoizes one build. The once runs the builder outside the
// container lock, so builders may resolve further services through the
// container without deadlocking.
type entry struct {
	once  sync.Once
	build Builder
	inst  interface{}
	err   error
}

// New creates an empty container.
func New() *Container {
	return &Container{entries: make(map[string]*entry)}
}

// Register stores a ready service instance.
func (c *Container) Register(name string, service interface{}) {
	c.RegisterBuilder(name, func(*Container) (interface{}, error) {
		return service, nil
	})
}

// RegisterBuilder stores a builder that runs on first Get. Registering
// the same name again replaces the previous entry.
func (c *Container) RegisterBuilder(name string, builder Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = &entry{build: builder}
}

// Get resolves a service, running its builder on first use. Every
// caller sees the same instance, and a failed build stays failed.
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("service not found: %s", name)
	}
	e.once.Do(func() {
		e.inst, e.err = e.build(c)
	})
	if e.err != nil {
		return nil, fmt.Errorf("building %s: %w", name, e.err)
	}
	return e.inst, nil
}

// MustGet resolves a service or panics. Reserved for wiring code where
// a missing registration is a programming error.
func (c *Container) MustGet(name string) interface{} {
	service, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return service
}

// Service name constants for type-safe access.
const (
	ServiceConfig         = "config"
	ServiceLogger         = "logger"
	ServiceStorageConfig  = "storage.config"
	ServiceStorageManager = "storage.manager"
	ServiceRepositories   = "storage.repositories"
	ServiceDocStore       = "storage.docstore"
	ServiceTokens         = "tokens"
	ServiceEventHub       = "event.hub"
	ServiceAuth           = "service.auth"
	ServiceUsers          = "service.users"
	ServiceProducts       = "service.products"
	ServiceTaxRates       = "service.taxrates"
	ServiceTills          = "service.tills"
	ServiceRegisters      = "service.registers"
	ServiceCashiers       = "service.cashiers"
	ServiceCustomers      = "service.customers"
	ServiceOrders         = "service.orders"
	ServicePayouts        = "service.payouts"
	ServiceRuntimeConfig  = "service.config"
	ServiceTSEs           = "service.tses"
	ServiceAdminServer    = "server.admin"
	ServiceTerminalServer = "server.terminal"
	ServiceCustomerServer = "server.customer"
	ServiceBonWorker      = "bon.worker"
)
