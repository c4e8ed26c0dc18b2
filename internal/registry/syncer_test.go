package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parking-access-backend/config"
	"parking-access-backend/internal/model"
)

// mockWriter is a mock implementation of the VehicleWriter interface.
type mockWriter struct {
	UpsertVehiclesFunc func(ctx context.Context, vehicles []model.Vehicle) (int, error)
}

func (m *mockWriter) UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) (int, error) {
	return m.UpsertVehiclesFunc(ctx, vehicles)
}

func syncConfig(url string) config.RegistrySync {
	return config.RegistrySync{
		Enabled:  true,
		URL:      url,
		Interval: time.Minute,
		PageSize: 2,
		Headers:  map[string]string{"X-Api-Key": "secret"},
	}
}

func TestSyncer_PagesAndNormalizes(t *testing.T) {
	pages := map[int][]vehicleItem{
		1: {{ID: 1, Plate: " abc123 ", Color: "Rojo"}, {ID: 2, Plate: "x"}},
		2: {{ID: 3, Plate: "xyz-987", Brand: "Mazda"}, {ID: 4, Plate: "ABC123"}},
		3: {{ID: 5, Plate: "KLM456"}},
	}

	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		requested = append(requested, r.URL.Query().Get("page"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(vehiclePage{Success: true, Total: 5, Data: pages[page]})
	}))
	defer server.Close()

	var written []model.Vehicle
	writer := &mockWriter{
		UpsertVehiclesFunc: func(ctx context.Context, vehicles []model.Vehicle) (int, error) {
			written = vehicles
			return len(vehicles), nil
		},
	}

	n, err := NewSyncer(syncConfig(server.URL), writer, zap.NewNop()).SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"1", "2", "3"}, requested)

	require.Len(t, written, 3)
	assert.Equal(t, "ABC123", written[0].Plate)
	assert.Equal(t, "Rojo", written[0].Color)
	assert.Equal(t, "XYZ-987", written[1].Plate)
	assert.Equal(t, int64(5), written[2].ID)
	assert.False(t, written[0].SyncedAt.IsZero())
}

func TestSyncer_FetchErrorWithNoItemsAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	writer := &mockWriter{
		UpsertVehiclesFunc: func(ctx context.Context, vehicles []model.Vehicle) (int, error) {
			t.Fatal("store must not be touched")
			return 0, nil
		},
	}

	_, err := NewSyncer(syncConfig(server.URL), writer, zap.NewNop()).SyncOnce(context.Background())
	assert.Error(t, err)
}

func TestSyncer_PartialFetchKeepsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			json.NewEncoder(w).Encode(vehiclePage{Success: true, Total: 4, Data: []vehicleItem{{ID: 1, Plate: "AAA111"}, {ID: 2, Plate: "BBB222"}}})
			return
		}
		json.NewEncoder(w).Encode(vehiclePage{Success: false, Error: "boom"})
	}))
	defer server.Close()

	writer := &mockWriter{
		UpsertVehiclesFunc: func(ctx context.Context, vehicles []model.Vehicle) (int, error) {
			return len(vehicles), nil
		},
	}

	n, err := NewSyncer(syncConfig(server.URL), writer, zap.NewNop()).SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSyncer_RunDisabledReturns(t *testing.T) {
	cfg := syncConfig("http://127.0.0.1:0")
	cfg.Enabled = false

	done := make(chan struct{})
	go func() {
		NewSyncer(cfg, &mockWriter{}, zap.NewNop()).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a disabled sync")
	}
}
