package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/checkout"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/coupon"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain errors onto HTTP statuses. Every error kind
// keeps a distinct message so callers can tell an invalid coupon from an
// expired one, or a full slot from an overlapping one.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *checkout.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, vErr.Error())
		return
	}

	var oErr *pickup.OverlapError
	if errors.As(err, &oErr) {
		writeError(w, http.StatusConflict, oErr.Error())
		return
	}

	switch {
	case errors.Is(err, pickup.ErrInvalidTimeRange),
		errors.Is(err, pickup.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, pickup.ErrPointNotFound),
		errors.Is(err, pickup.ErrWindowNotFound),
		errors.Is(err, checkout.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, pickup.ErrWindowFull):
		writeError(w, http.StatusConflict, "this time slot is full, please choose another")

	case errors.Is(err, pickup.ErrNoReservations),
		errors.Is(err, pickup.ErrWindowReferenced),
		errors.Is(err, pickup.ErrCapacityBelowReserved),
		errors.Is(err, checkout.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrNotYetValid),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
