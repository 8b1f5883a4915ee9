// Package app wires the MuseLink services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/services/allocator"
	"github.com/muse-link/muselink-backend/internal/app/services/artists"
	"github.com/muse-link/muselink-backend/internal/app/services/clients"
	"github.com/muse-link/muselink-backend/internal/app/services/ledger"
	"github.com/muse-link/muselink-backend/internal/app/services/payments"
	"github.com/muse-link/muselink-backend/internal/app/services/requests"
	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/internal/app/storage/memory"
	"github.com/muse-link/muselink-backend/internal/app/system"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Artists  storage.ArtistStore
	Clients  storage.ClientStore
	Requests storage.RequestStore
	Unlocks  storage.UnlockStore
}

// Options tune service behavior at construction time.
type Options struct {
	// SignupCredits is the starting balance for new artist accounts.
	SignupCredits int64
	// CloseOnQuota controls whether the final unlock closes its request.
	// Defaults to true when constructed through DefaultOptions.
	CloseOnQuota bool
	// SweepInterval is the period between expired-request sweeps.
	SweepInterval time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		CloseOnQuota:  true,
		SweepInterval: 5 * time.Minute,
	}
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Artists   *artists.Service
	Clients   *clients.Service
	Requests  *requests.Service
	Ledger    *ledger.Service
	Allocator *allocator.Service
	Payments  *payments.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Artists == nil {
		stores.Artists = mem
	}
	if stores.Clients == nil {
		stores.Clients = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}
	if stores.Unlocks == nil {
		stores.Unlocks = mem
	}

	manager := system.NewManager()

	artistService := artists.New(stores.Artists, opts.SignupCredits, log)
	clientService := clients.New(stores.Clients, log)
	requestService := requests.New(stores.Requests, log)
	ledgerService := ledger.New(stores.Artists, stores.Unlocks, log)
	allocatorService := allocator.New(stores.Unlocks, ledgerService, log,
		allocator.WithCloseOnQuota(opts.CloseOnQuota))
	paymentService := payments.New(stores.Unlocks, log)

	for _, name := range []string{"artists", "clients", "ledger", "allocator", "payments"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	sweeper := requests.NewSweeper(stores.Requests, opts.SweepInterval, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register sweeper: %w", err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Artists:   artistService,
		Clients:   clientService,
		Requests:  requestService,
		Ledger:    ledgerService,
		Allocator: allocatorService,
		Payments:  paymentService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
