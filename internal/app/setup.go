// Package app contains the application setup for the storefront.
package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bsms/storefront/internal/auth"
	"github.com/bsms/storefront/internal/backend"
	"github.com/bsms/storefront/internal/cart"
	"github.com/bsms/storefront/internal/catalog"
	"github.com/bsms/storefront/internal/checkout"
	"github.com/bsms/storefront/internal/config"
	"github.com/bsms/storefront/internal/storage"
	"github.com/bsms/storefront/internal/transport/rest"
	"github.com/bsms/storefront/internal/wishlist"
	"github.com/bsms/storefront/pkg/server"
)

type Dependencies struct {
	Catalog   *catalog.Store
	Cart      *cart.Store
	Wishlist  *wishlist.Store
	Session   *auth.Session
	Checkout  *checkout.Orchestrator
	Backend   *backend.Client
	Debouncer *catalog.Debouncer
	Logger    *slog.Logger
}

// SetupDependencies wires the core components. Each owned state object has
// a single update path: the session is mutated only by provider events,
// the cart and wishlist only through their stores, the catalog only
// through loads and filter changes.
func SetupDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	local, err := storage.NewLocal(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	provider := auth.NewStaticTokenProvider(cfg.Auth.Token)
	session := auth.NewSession(provider, logger)

	client := backend.NewClient(cfg.API.BaseURL, cfg.API.LegacyURL, cfg.API.Timeout, session, logger)
	// Wired after construction: the client reads tokens through the
	// session, the session syncs profiles through the client.
	session.SetProfileSyncer(client)

	cartStore, err := cart.NewStore(local, logger)
	if err != nil {
		return nil, err
	}
	wishlistStore, err := wishlist.NewStore(local, session, client, logger)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Catalog:   catalog.NewStore(client, logger),
		Cart:      cartStore,
		Wishlist:  wishlistStore,
		Session:   session,
		Checkout:  checkout.NewOrchestrator(cartStore, session, client, logger),
		Backend:   client,
		Debouncer: catalog.NewDebouncer(cfg.Search.Debounce),
		Logger:    logger,
	}, nil
}

// SetupHttpHandler initializes the HTTP routes for the storefront facade.
// Used by tests to exercise the facade without binding a port.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the storefront facade.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.Catalog, deps.Cart, deps.Wishlist, deps.Session, deps.Checkout, deps.Debouncer, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures the HTTP server for the facade.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.Server.Port,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ReadTimeout:    cfg.Server.Timeout.Read,
		WriteTimeout:   cfg.Server.Timeout.Write,
		IdleTimeout:    cfg.Server.Timeout.Idle,
		ReadHeader:     cfg.Server.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
