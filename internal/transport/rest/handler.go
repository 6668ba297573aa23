// Package rest exposes the storefront core to a local UI process as a
// thin JSON facade. It holds no business state of its own: every request
// maps onto a core operation and its state-change notifications.
package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bsms/storefront/internal/auth"
	"github.com/bsms/storefront/internal/cart"
	"github.com/bsms/storefront/internal/catalog"
	"github.com/bsms/storefront/internal/checkout"
	"github.com/bsms/storefront/internal/wishlist"
	"github.com/bsms/storefront/pkg/web"
)

type Handler struct {
	catalog   *catalog.Store
	cart      *cart.Store
	wishlist  *wishlist.Store
	session   *auth.Session
	checkout  *checkout.Orchestrator
	debouncer *catalog.Debouncer
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler creates the facade handler over the core components.
func NewHandler(
	catalogStore *catalog.Store,
	cartStore *cart.Store,
	wishlistStore *wishlist.Store,
	session *auth.Session,
	orchestrator *checkout.Orchestrator,
	debouncer *catalog.Debouncer,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		catalog:   catalogStore,
		cart:      cartStore,
		wishlist:  wishlistStore,
		session:   session,
		checkout:  orchestrator,
		debouncer: debouncer,
		validate:  validator.New(),
		logger:    logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the storefront facade.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.Products)
		r.Post("/catalog/refresh", h.RefreshCatalog)
		r.Put("/filters", h.SetFilters)
		r.Post("/filters/reset", h.ResetFilters)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddToCart)
			r.Put("/items/{id}", h.UpdateQuantity)
			r.Delete("/items/{id}", h.RemoveFromCart)
		})

		r.Post("/checkout", h.Checkout)

		r.Get("/wishlist", h.Wishlist)
		r.Post("/wishlist/{id}/toggle", h.ToggleWishlist)

		r.Get("/session", h.Session)
		r.Post("/session/signin", h.SignIn)
		r.Post("/session/signout", h.SignOut)
	})
	r.Get("/healthz", h.HealthCheck)
}

type productView struct {
	catalog.Product
	StockLevel catalog.StockLevel `json:"stockLevel"`
	Wishlisted bool               `json:"wishlisted"`
	InCart     bool               `json:"inCart"`
}

// Products returns the current filtered view of the catalog.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	products := h.catalog.Filtered()
	inCart := make(map[catalog.ID]bool)
	for _, line := range h.cart.Items() {
		inCart[line.ProductID] = true
	}

	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{
			Product:    p,
			StockLevel: catalog.LevelForStock(p.Stock),
			Wishlisted: h.wishlist.Contains(p.ID),
			InCart:     inCart[p.ID],
		})
	}
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]any{
		"products": views,
		"count":    len(views),
	})
}

// RefreshCatalog re-fetches the product list from the backend.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	count, err := h.catalog.Load(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Catalog refresh failed", "error", err)
		web.RespondError(w, h.logger, http.StatusBadGateway, "Failed to load products. Please try again later.")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]int{"count": count})
}

type filtersRequest struct {
	Category string `json:"category"`
	Search   string `json:"search"`
}

// SetFilters updates the category and search selection. The category
// applies immediately; the search term goes through the debouncer so a
// typing burst filters once.
func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if !web.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.Category != "" {
		h.catalog.SetCategory(req.Category)
	}
	term := req.Search
	h.debouncer.Trigger(func() {
		h.catalog.SetSearchTerm(term)
	})
	w.WriteHeader(http.StatusAccepted)
}

// ResetFilters clears category and search state.
func (h *Handler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	h.debouncer.Stop()
	count := h.catalog.ResetFilters()
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) cartPayload() map[string]any {
	return map[string]any{
		"items": h.cart.Items(),
		"count": h.cart.Count(),
		"total": catalog.FormatPrice(h.cart.Total()),
	}
}

// Cart returns the cart lines with count and formatted total.
func (h *Handler) Cart(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, h.logger, http.StatusOK, h.cartPayload())
}

type addToCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// AddToCart adds a catalog product to the cart. Out-of-stock products are
// ignored, mirroring the disabled add button.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if !web.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		web.RespondError(w, h.logger, http.StatusBadRequest, "productId is required")
		return
	}

	product, ok := h.catalog.FindByID(catalog.NormalizeID(req.ProductID))
	if !ok {
		web.RespondError(w, h.logger, http.StatusNotFound, fmt.Sprintf("Product %s not found", req.ProductID))
		return
	}
	if err := h.cart.Add(product, req.Quantity); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to add to cart", "productId", product.ID, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.cartPayload())
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateQuantity sets a line's quantity, clamped to a minimum of one.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !web.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	id := catalog.NormalizeID(chi.URLParam(r, "id"))
	if err := h.cart.UpdateQuantity(id, req.Quantity); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to update quantity", "productId", id, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.cartPayload())
}

// RemoveFromCart deletes a cart line.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id := catalog.NormalizeID(chi.URLParam(r, "id"))
	if err := h.cart.Remove(id); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to remove from cart", "productId", id, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.cartPayload())
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to clear cart", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to clear cart")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, h.cartPayload())
}

// Checkout submits the cart as an order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if !web.DecodeJSON(w, r, h.logger, &form) {
		return
	}

	orderID, err := h.checkout.Submit(r.Context(), form)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			web.RespondError(w, h.logger, http.StatusBadRequest, "Your cart is empty")
		case errors.Is(err, checkout.ErrNotSignedIn):
			web.RespondError(w, h.logger, http.StatusUnauthorized, "Please sign in to place an order")
		case errors.Is(err, checkout.ErrInvalidForm):
			web.RespondError(w, h.logger, http.StatusBadRequest, "Please fill in all required shipping fields")
		case errors.Is(err, checkout.ErrSubmitInProgress):
			web.RespondError(w, h.logger, http.StatusConflict, "An order submission is already in progress")
		default:
			h.logger.ErrorContext(r.Context(), "Checkout failed", "error", err)
			web.RespondError(w, h.logger, http.StatusBadGateway, "Checkout failed. Please try again.")
		}
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, map[string]string{"orderId": orderID})
}

// Wishlist returns the wishlisted product ids.
func (h *Handler) Wishlist(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]any{"items": h.wishlist.Items()})
}

// ToggleWishlist flips wishlist membership for a product.
func (h *Handler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	id := catalog.NormalizeID(chi.URLParam(r, "id"))
	added, err := h.wishlist.Toggle(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to toggle wishlist", "productId", id, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to update wishlist")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]bool{"wishlisted": added})
}

type sessionView struct {
	SignedIn bool       `json:"signedIn"`
	User     *auth.User `json:"user,omitempty"`
	Name     string     `json:"name,omitempty"`
}

// Session returns the current sign-in state.
func (h *Handler) Session(w http.ResponseWriter, _ *http.Request) {
	view := sessionView{SignedIn: h.session.SignedIn()}
	if user := h.session.Current(); user != nil {
		view.User = user
		view.Name = user.ShortName()
	}
	web.RespondJSON(w, h.logger, http.StatusOK, view)
}

// SignIn runs the provider sign-in flow.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	user, err := h.session.SignIn(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "Sign-in failed", "error", err)
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, "Sign-in failed")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, sessionView{SignedIn: true, User: user, Name: user.ShortName()})
}

// SignOut runs the provider sign-out flow.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "Sign-out failed", "error", err)
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, "Sign-out failed")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, sessionView{SignedIn: false})
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
