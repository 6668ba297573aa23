// Package checkout implements the order-submission workflow, the one
// multi-step state machine in the storefront:
// Idle -> Validating -> Submitting -> Succeeded | Failed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/bsms/storefront/internal/auth"
	"github.com/bsms/storefront/internal/backend"
	"github.com/bsms/storefront/internal/cart"
)

var ErrEmptyCart = errors.New("cart is empty")
var ErrNotSignedIn = errors.New("sign-in required to place an order")
var ErrInvalidForm = errors.New("invalid checkout form")
var ErrSubmitInProgress = errors.New("order submission already in progress")
var ErrSubmit = errors.New("order submission failed")

// State is the orchestrator's workflow state.
type State string

const (
	StateIdle       State = "IDLE"
	StateValidating State = "VALIDATING"
	StateSubmitting State = "SUBMITTING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// Cart is the slice of the cart store the orchestrator needs.
type Cart interface {
	Items() []cart.Line
	Clear() error
}

// Session exposes the current signed-in user.
type Session interface {
	Current() *auth.User
}

// Submitter posts orders to the backend over an authorized request.
type Submitter interface {
	SubmitOrder(ctx context.Context, order *backend.OrderRequest) (*backend.OrderResponse, error)
}

// Form is the user-entered checkout data.
type Form struct {
	FullName      string `json:"fullName" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
	Street        string `json:"street" validate:"required"`
	City          string `json:"city" validate:"required"`
	PostalCode    string `json:"postalCode" validate:"required"`
	Country       string `json:"country"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=COD CARD BANK_TRANSFER"`
	Notes         string `json:"notes"`
}

// Orchestrator drives order submission. Exactly one submission may be in
// flight; a Submit while another is validating or submitting is rejected,
// not queued.
type Orchestrator struct {
	mu    sync.Mutex
	state State

	cart     Cart
	session  Session
	backend  Submitter
	validate *validator.Validate
	logger   *slog.Logger
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(cartStore Cart, session Session, submitter Submitter, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		state:    StateIdle,
		cart:     cartStore,
		session:  session,
		backend:  submitter,
		validate: validator.New(),
		logger:   logger.With("component", "checkout"),
	}
}

// State returns the current workflow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Submit validates the cart and session, posts the order and, on success,
// clears the cart and returns the created order id. Validation failures
// reject locally with no network call and leave the state Idle. A backend
// failure leaves the cart untouched for a user-initiated retry.
func (o *Orchestrator) Submit(ctx context.Context, form Form) (string, error) {
	o.mu.Lock()
	// In-flight covers the whole submit, validation included; two rapid
	// submits must never both reach the backend.
	if o.state == StateValidating || o.state == StateSubmitting {
		o.mu.Unlock()
		return "", ErrSubmitInProgress
	}
	o.state = StateValidating
	o.mu.Unlock()

	items := o.cart.Items()
	user := o.session.Current()
	switch {
	case len(items) == 0:
		o.setState(StateIdle)
		return "", ErrEmptyCart
	case user == nil:
		o.setState(StateIdle)
		return "", ErrNotSignedIn
	}
	if err := o.validate.Struct(form); err != nil {
		o.setState(StateIdle)
		return "", fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}

	o.setState(StateSubmitting)
	order := buildOrder(user, items, form)

	created, err := o.backend.SubmitOrder(ctx, order)
	if err != nil {
		o.setState(StateFailed)
		o.logger.ErrorContext(ctx, "Order submission failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrSubmit, err)
	}

	// Success and cart-clear are coupled: success is only reported once
	// the cart is gone, and the cart is never cleared on failure.
	if err := o.cart.Clear(); err != nil {
		o.setState(StateFailed)
		o.logger.ErrorContext(ctx, "Order created but cart clear failed", "orderId", created.ID, "error", err)
		return "", fmt.Errorf("order %s created but cart clear failed: %w", created.ID, err)
	}
	o.setState(StateSucceeded)
	o.logger.InfoContext(ctx, "Order placed", "orderId", created.ID, "items", len(items))
	return created.ID, nil
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// buildOrder assembles the wire payload from the cart snapshot. Amounts
// are accumulated as decimals and rounded to two places only when they
// cross onto the wire.
func buildOrder(user *auth.User, items []cart.Line, form Form) *backend.OrderRequest {
	orderItems := make([]backend.OrderItem, 0, len(items))
	subtotal := decimal.Zero
	for i := range items {
		line := &items[i]
		lineTotal := line.Total()
		subtotal = subtotal.Add(lineTotal)
		orderItems = append(orderItems, backend.OrderItem{
			ProductID:    string(line.ProductID),
			ProductName:  line.Name,
			ProductImage: line.Image,
			Quantity:     line.Quantity,
			UnitPrice:    toWire(line.Price),
			TotalPrice:   toWire(lineTotal),
		})
	}

	country := form.Country
	if country == "" {
		country = "USA"
	}
	paymentMethod := form.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "COD"
	}

	tax := decimal.Zero
	shipping := decimal.Zero
	total := subtotal.Add(tax).Add(shipping)

	return &backend.OrderRequest{
		UserID:        user.UID,
		UserEmail:     user.Email,
		UserName:      user.DisplayName,
		Items:         orderItems,
		Subtotal:      toWire(subtotal),
		Tax:           toWire(tax),
		ShippingCost:  toWire(shipping),
		Total:         toWire(total),
		PaymentMethod: paymentMethod,
		ShippingAddress: backend.ShippingAddress{
			FullName:   form.FullName,
			Phone:      form.Phone,
			Street:     form.Street,
			City:       form.City,
			PostalCode: form.PostalCode,
			Country:    country,
		},
		Notes: form.Notes,
	}
}

func toWire(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
