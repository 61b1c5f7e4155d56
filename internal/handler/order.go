package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/checkout"
)

type orderItemRequest struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type customerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type placeOrderRequest struct {
	Items          []orderItemRequest `json:"items"`
	Customer       customerRequest    `json:"customer"`
	DeliveryMethod string             `json:"deliveryMethod"`
	PaymentMethod  string             `json:"paymentMethod"`
	PayLater       bool               `json:"payLater"`
	PointID        string             `json:"pointId,omitempty"`
	PickupTime     *time.Time         `json:"pickupTime,omitempty"`
	Address        string             `json:"address,omitempty"`
	CouponCode     string             `json:"couponCode,omitempty"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	DeliveryMethod string              `json:"deliveryMethod"`
	PaymentMethod  string              `json:"paymentMethod"`
	PayLater       bool                `json:"payLater"`
	PointID        string              `json:"pointId,omitempty"`
	WindowID       string              `json:"windowId,omitempty"`
	Address        string              `json:"address,omitempty"`
	Total          float64             `json:"total"`
	Discount       float64             `json:"discount"`
	FinalTotal     float64             `json:"finalTotal"`
	CouponCode     string              `json:"couponCode,omitempty"`
	Items          []orderItemResponse `json:"items"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func orderToResponse(o *checkout.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.InexactFloat64(),
		}
	}
	return orderResponse{
		ID:             o.ID,
		Status:         string(o.Status),
		DeliveryMethod: string(o.DeliveryMethod),
		PaymentMethod:  string(o.PaymentMethod),
		PayLater:       o.PayLater,
		PointID:        o.PointID,
		WindowID:       o.WindowID,
		Address:        o.Address,
		Total:          o.Total.InexactFloat64(),
		Discount:       o.Discount.InexactFloat64(),
		FinalTotal:     o.FinalTotal.InexactFloat64(),
		CouponCode:     o.CouponCode,
		Items:          items,
		CreatedAt:      o.CreatedAt,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]checkout.OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = checkout.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: decimal.NewFromFloat(item.UnitPrice),
		}
	}

	finalize := checkout.FinalizeRequest{
		Items: items,
		Customer: checkout.Customer{
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
			Email: req.Customer.Email,
		},
		DeliveryMethod: checkout.DeliveryMethod(req.DeliveryMethod),
		PaymentMethod:  checkout.PaymentMethod(req.PaymentMethod),
		PayLater:       req.PayLater,
		PointID:        req.PointID,
		Address:        req.Address,
		CouponCode:     req.CouponCode,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.PickupTime != nil {
		finalize.PickupTime = *req.PickupTime
	}

	order, err := h.checkout.Finalize(r.Context(), finalize)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderToResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(order))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(order))
}
