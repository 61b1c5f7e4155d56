// Package handler exposes the checkout and pickup services over HTTP.
package handler

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/checkout"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
)

// WindowCatalog is the window management surface the handler needs.
type WindowCatalog interface {
	CreateWindow(ctx context.Context, req pickup.CreateWindowRequest) (*pickup.Window, error)
	UpdateWindow(ctx context.Context, id string, patch pickup.WindowPatch) (*pickup.Window, error)
	DeleteWindow(ctx context.Context, id string) error
	GetWindow(ctx context.Context, id string) (*pickup.Window, error)
	ListAvailable(ctx context.Context, pointID string, from, to time.Time) ([]pickup.Availability, error)
}

// CapacityLedger is the reservation surface the handler needs. These two
// endpoints and the checkout orchestrator are the only writers of the
// reserved counter. External reservations are persisted holds, and both
// calls return the row the conditional update produced, so the response
// reflects this call's change even under concurrent reservations.
type CapacityLedger interface {
	Hold(ctx context.Context, windowID string) (*pickup.Window, error)
	ReleaseHold(ctx context.Context, windowID string) (*pickup.Window, error)
}

// CheckoutService finalizes, reads, and cancels orders.
type CheckoutService interface {
	Finalize(ctx context.Context, req checkout.FinalizeRequest) (*checkout.Order, error)
	Get(ctx context.Context, orderID string) (*checkout.Order, error)
	Cancel(ctx context.Context, orderID string) (*checkout.Order, error)
}

// Handler wires the services into a chi router.
type Handler struct {
	catalog  WindowCatalog
	ledger   CapacityLedger
	checkout CheckoutService
}

// New creates a Handler over the given services.
func New(catalog WindowCatalog, ledger CapacityLedger, checkoutSvc CheckoutService) *Handler {
	return &Handler{
		catalog:  catalog,
		ledger:   ledger,
		checkout: checkoutSvc,
	}
}

// Routes returns the API route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/cancel", h.cancelOrder)
	})

	r.Route("/points/{pointID}/windows", func(r chi.Router) {
		r.Get("/", h.listWindows)
		r.Post("/", h.createWindow)
	})

	r.Route("/windows/{id}", func(r chi.Router) {
		r.Get("/", h.getWindow)
		r.Patch("/", h.updateWindow)
		r.Delete("/", h.deleteWindow)
		r.Post("/reserve", h.reserveWindow)
		r.Post("/release", h.releaseWindow)
	})

	return r
}
