//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowLifecycle(t *testing.T) {
	w := createWindow(t, "point-central", 5)
	assert.Equal(t, 5, w.Available)
	assert.False(t, w.IsFull)

	// Overlapping sibling is rejected.
	resp := doPost(t, "/api/points/point-central/windows", windowRequest{
		StartTime: w.StartTime.Add(30 * time.Minute),
		EndTime:   w.EndTime.Add(30 * time.Minute),
		Capacity:  5,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Patch capacity.
	resp = doJSON(t, http.MethodPatch, "/api/windows/"+w.ID, map[string]any{"capacity": 8}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decodeJSON[windowResponse](t, resp)
	assert.Equal(t, 8, patched.Capacity)

	// Listing covers the patched window.
	from := w.StartTime.Add(-time.Hour).Format(time.RFC3339)
	to := w.EndTime.Add(time.Hour).Format(time.RFC3339)
	resp = doGet(t, "/api/points/point-central/windows?from="+from+"&to="+to)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeJSON[[]windowResponse](t, resp)
	require.NotEmpty(t, list)

	found := false
	for _, entry := range list {
		if entry.ID == w.ID {
			found = true
			assert.Equal(t, 8, entry.Capacity, "listing must not serve the pre-patch entry")
		}
	}
	assert.True(t, found)

	// Delete.
	resp = doJSON(t, http.MethodDelete, "/api/windows/"+w.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doGet(t, "/api/windows/"+w.ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWindowReserveRelease(t *testing.T) {
	w := createWindow(t, "point-central", 2)

	r1 := decodeJSON[windowResponse](t, doPost(t, "/api/windows/"+w.ID+"/reserve", nil))
	assert.Equal(t, 1, r1.Reserved)

	r2 := decodeJSON[windowResponse](t, doPost(t, "/api/windows/"+w.ID+"/reserve", nil))
	assert.Equal(t, 2, r2.Reserved)
	assert.True(t, r2.IsFull)

	resp := doPost(t, "/api/windows/"+w.ID+"/reserve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	released := decodeJSON[windowResponse](t, doPost(t, "/api/windows/"+w.ID+"/release", nil))
	assert.Equal(t, 1, released.Reserved)
}

func TestWindowDelete_ReferencedByOrder(t *testing.T) {
	w := createWindow(t, "point-central", 3)

	resp := doPost(t, "/api/orders", pickupOrderRequest(w))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, "/api/windows/"+w.ID, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

// A cancelled order still references its window, so the delete keeps
// answering with a conflict rather than tripping over the foreign key.
func TestWindowDelete_ReferencedByCancelledOrder(t *testing.T) {
	w := createWindow(t, "point-central", 3)

	order := decodeJSON[orderResponse](t, doPost(t, "/api/orders", pickupOrderRequest(w)))

	resp := doPost(t, "/api/orders/"+order.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, "/api/windows/"+w.ID, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	resp := doGet(t, "/livez")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doGet(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
