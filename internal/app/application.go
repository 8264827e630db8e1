// Package app wires the domain services together.
package app

import (
	clientsvc "github.com/pretimmo/service_backend/internal/app/services/clients"
	diagsvc "github.com/pretimmo/service_backend/internal/app/services/diagnostics"
	dossiersvc "github.com/pretimmo/service_backend/internal/app/services/dossiers"
	subsvc "github.com/pretimmo/service_backend/internal/app/services/subscriptions"
	"github.com/pretimmo/service_backend/internal/app/storage"
	"github.com/pretimmo/service_backend/internal/app/storage/memory"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Clients         storage.ClientStore
	Dossiers        storage.DossierStore
	Diagnostics     storage.DiagnosticStore
	SelfDiagnostics storage.SelfDiagnosticStore
}

// Options configures the application.
type Options struct {
	Stores Stores

	// StatsCache is optional; without it stats recompute on every request.
	StatsCache diagsvc.StatsCache

	// Directory and Expander back the payment webhook. When Directory is
	// nil the subscription resolver is disabled.
	Directory  subsvc.Directory
	Expander   subsvc.CheckoutExpander
	PriceIDPro string

	Logger *logger.Logger
}

// Application ties domain services together.
type Application struct {
	log *logger.Logger

	Clients       *clientsvc.Service
	Dossiers      *dossiersvc.Service
	Diagnostics   *diagsvc.Service
	Subscriptions *subsvc.Service
}

// New builds a fully initialised application.
func New(opts Options) *Application {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("app")
	}

	stores := opts.Stores
	mem := memory.New()
	if stores.Clients == nil {
		stores.Clients = mem
	}
	if stores.Dossiers == nil {
		stores.Dossiers = mem
	}
	if stores.Diagnostics == nil {
		stores.Diagnostics = mem
	}
	if stores.SelfDiagnostics == nil {
		stores.SelfDiagnostics = mem
	}

	app := &Application{
		log:         log,
		Clients:     clientsvc.New(stores.Clients, stores.Dossiers, log),
		Dossiers:    dossiersvc.New(stores.Dossiers, stores.Clients, stores.Diagnostics, log),
		Diagnostics: diagsvc.New(stores.Diagnostics, stores.SelfDiagnostics, stores.Dossiers, opts.StatsCache, log),
	}
	if opts.Directory != nil {
		app.Subscriptions = subsvc.New(opts.Directory, opts.Expander, opts.PriceIDPro, log)
	}
	return app
}
