package googleplaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirandagan/llmflow/pkg/services"
)

func TestNearbySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nearbysearch/json", r.URL.Path)
		assert.Equal(t, "47.6,-122.3", r.URL.Query().Get("location"))
		assert.Equal(t, "5000", r.URL.Query().Get("radius"))
		assert.Equal(t, "hospital", r.URL.Query().Get("type"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "OK",
			"results": []any{map[string]any{"name": "Harborview Medical Center"}},
		})
	}))
	defer server.Close()

	service := New("test-key", server.URL, 5*time.Second)

	data, err := service.Call(context.Background(), "nearby_search", map[string]any{
		"location": "47.6,-122.3",
		"radius":   float64(5000),
		"type":     "hospital",
	})
	require.NoError(t, err)

	results, ok := data["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 1)
}

func TestNearbySearchMissingParams(t *testing.T) {
	service := New("test-key", "http://unused", 5*time.Second)

	_, err := service.Call(context.Background(), "nearby_search", map[string]any{"location": "47.6,-122.3"})

	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrMissingParameter)
}

func TestTextSearchZeroResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/textsearch/json", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ZERO_RESULTS", "results": []any{}})
	}))
	defer server.Close()

	service := New("test-key", server.URL, 5*time.Second)

	data, err := service.Call(context.Background(), "text_search", map[string]any{"query": "hospitals near nowhere"})
	require.NoError(t, err)
	assert.Equal(t, "ZERO_RESULTS", data["status"])
}

func TestPlacesAPIStatusErrors(t *testing.T) {
	tests := []struct {
		status   string
		expected error
	}{
		{"REQUEST_DENIED", services.ErrAuth},
		{"OVER_QUERY_LIMIT", services.ErrQuota},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"status": tt.status, "error_message": "nope"})
			}))
			defer server.Close()

			service := New("test-key", server.URL, 5*time.Second)

			_, err := service.Call(context.Background(), "place_details", map[string]any{"place_id": "abc"})

			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestMissingAPIKey(t *testing.T) {
	service := New("", "", 5*time.Second)

	_, err := service.Call(context.Background(), "nearby_search", map[string]any{"location": "1,2", "radius": 10})

	assert.ErrorIs(t, err, services.ErrAuth)
}

func TestHTTPStatusMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	service := New("test-key", server.URL, 5*time.Second)

	_, err := service.Call(context.Background(), "text_search", map[string]any{"query": "anything"})

	assert.ErrorIs(t, err, services.ErrQuota)
}
