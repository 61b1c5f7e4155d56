package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
)

// defaultListHorizon bounds a windows listing when the client omits ?to.
const defaultListHorizon = 7 * 24 * time.Hour

type createWindowRequest struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Capacity  int       `json:"capacity"`
}

type updateWindowRequest struct {
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Capacity  *int       `json:"capacity"`
}

type windowResponse struct {
	ID        string    `json:"id"`
	PointID   string    `json:"pointId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Capacity  int       `json:"capacity"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
	IsFull    bool      `json:"isFull"`
}

func windowToResponse(w *pickup.Window) windowResponse {
	return windowResponse{
		ID:        w.ID,
		PointID:   w.PointID,
		StartTime: w.StartTime,
		EndTime:   w.EndTime,
		Capacity:  w.Capacity,
		Reserved:  w.Reserved,
		Available: w.Available(),
		IsFull:    w.IsFull(),
	}
}

func availabilityToResponse(a pickup.Availability) windowResponse {
	return windowResponse{
		ID:        a.WindowID,
		PointID:   a.PointID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Capacity:  a.Capacity,
		Reserved:  a.Reserved,
		Available: a.Available,
		IsFull:    a.IsFull,
	}
}

func (h *Handler) listWindows(w http.ResponseWriter, r *http.Request) {
	pointID := chi.URLParam(r, "pointID")

	from := time.Now()
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: expected RFC 3339 timestamp")
			return
		}
		from = t
	}
	to := from.Add(defaultListHorizon)
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: expected RFC 3339 timestamp")
			return
		}
		to = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "invalid range: from must precede to")
		return
	}

	list, err := h.catalog.ListAvailable(r.Context(), pointID, from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]windowResponse, len(list))
	for i, a := range list {
		resp[i] = availabilityToResponse(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createWindow(w http.ResponseWriter, r *http.Request) {
	var req createWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	win, err := h.catalog.CreateWindow(r.Context(), pickup.CreateWindowRequest{
		PointID:   chi.URLParam(r, "pointID"),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Capacity:  req.Capacity,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, windowToResponse(win))
}

func (h *Handler) getWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.catalog.GetWindow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowToResponse(win))
}

func (h *Handler) updateWindow(w http.ResponseWriter, r *http.Request) {
	var req updateWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	win, err := h.catalog.UpdateWindow(r.Context(), chi.URLParam(r, "id"), pickup.WindowPatch{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Capacity:  req.Capacity,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowToResponse(win))
}

func (h *Handler) deleteWindow(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteWindow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reserveWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.ledger.Hold(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowToResponse(win))
}

func (h *Handler) releaseWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.ledger.ReleaseHold(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowToResponse(win))
}
