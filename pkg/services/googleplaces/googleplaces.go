// Package googleplaces adapts the Google Places API: nearby search, text
// search, and place details.
package googleplaces

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tirandagan/llmflow/pkg/log"
	"github.com/tirandagan/llmflow/pkg/services"
)

const (
	// ServiceName is the registry identifier.
	ServiceName = "google_places"
	// DefaultBaseURL is the production Places endpoint.
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"
)

// Service calls the Google Places API.
type Service struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates the adapter. An empty baseURL uses production.
func New(apiKey, baseURL string, timeout time.Duration) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Service{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  log.WithModule("googleplaces"),
	}
}

// Name returns the registry identifier.
func (s *Service) Name() string {
	return ServiceName
}

// Operations lists the supported operations.
func (s *Service) Operations() []string {
	return []string{"nearby_search", "text_search", "place_details"}
}

// Call executes one Places operation.
func (s *Service) Call(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w: no Google Places API key configured", services.ErrAuth)
	}

	switch operation {
	case "nearby_search":
		return s.nearbySearch(ctx, params)
	case "text_search":
		return s.textSearch(ctx, params)
	case "place_details":
		return s.placeDetails(ctx, params)
	default:
		return nil, &services.OperationError{Service: ServiceName, Operation: operation, Supported: s.Operations()}
	}
}

// nearbySearch finds places around a "lat,lng" location within a radius in
// meters. Optional params: type, keyword, name, language.
func (s *Service) nearbySearch(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, err := requireParams(params, "location", "radius")
	if err != nil {
		return nil, err
	}

	copyOptional(query, params, "type", "keyword", "name", "language")
	query.Set("key", s.apiKey)

	return s.placesRequest(ctx, s.baseURL+"/nearbysearch/json", query)
}

// textSearch runs a free-text place query, optionally biased by location and
// radius.
func (s *Service) textSearch(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, err := requireParams(params, "query")
	if err != nil {
		return nil, err
	}

	copyOptional(query, params, "location", "radius", "type", "language")
	query.Set("key", s.apiKey)

	return s.placesRequest(ctx, s.baseURL+"/textsearch/json", query)
}

// placeDetails fetches the full record for one place_id. Optional params:
// fields, language.
func (s *Service) placeDetails(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, err := requireParams(params, "place_id")
	if err != nil {
		return nil, err
	}

	copyOptional(query, params, "fields", "language")
	query.Set("key", s.apiKey)

	return s.placesRequest(ctx, s.baseURL+"/details/json", query)
}

func (s *Service) placesRequest(ctx context.Context, endpoint string, query url.Values) (map[string]any, error) {
	s.logger.Debug("places request", "endpoint", endpoint)

	data, err := services.GetJSON(ctx, s.client, endpoint, query)
	if err != nil {
		return nil, err
	}

	status, _ := data["status"].(string)
	if status == "OK" || status == "ZERO_RESULTS" {
		return data, nil
	}

	message, _ := data["error_message"].(string)

	switch status {
	case "REQUEST_DENIED":
		return nil, fmt.Errorf("%w: %s", services.ErrAuth, message)
	case "OVER_QUERY_LIMIT":
		return nil, fmt.Errorf("%w: %s", services.ErrQuota, message)
	default:
		return nil, fmt.Errorf("places API error (%s): %s", status, message)
	}
}

func requireParams(params map[string]any, names ...string) (url.Values, error) {
	query := url.Values{}

	for _, name := range names {
		value, ok := params[name]
		if !ok || value == nil || value == "" {
			return nil, fmt.Errorf("%w: %s", services.ErrMissingParameter, name)
		}

		query.Set(name, stringify(value))
	}

	return query, nil
}

func copyOptional(query url.Values, params map[string]any, names ...string) {
	for _, name := range names {
		if value, ok := params[name]; ok && value != nil {
			query.Set(name, stringify(value))
		}
	}
}

func stringify(value any) string {
	if number, ok := value.(float64); ok && number == float64(int64(number)) {
		return fmt.Sprintf("%d", int64(number))
	}

	return fmt.Sprintf("%v", value)
}
