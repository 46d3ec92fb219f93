// Package weatherapi adapts WeatherAPI.com: current conditions and multi-day
// forecasts.
package weatherapi

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
	ServiceName = "weatherapi"
	// DefaultBaseURL is the production WeatherAPI endpoint.
	DefaultBaseURL = "https://api.weatherapi.com/v1"
)

// Service calls WeatherAPI.com.
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
		logger:  log.WithModule("weatherapi"),
	}
}

// Name returns the registry identifier.
func (s *Service) Name() string {
	return ServiceName
}

// Operations lists the supported operations.
func (s *Service) Operations() []string {
	return []string{"current", "forecast"}
}

// Call executes one WeatherAPI operation. Location comes from "q" (name,
// zip, or "lat,lng"), or from separate "lat"/"lng" params.
func (s *Service) Call(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w: no WeatherAPI key configured", services.ErrAuth)
	}

	switch operation {
	case "current":
		return s.fetch(ctx, "/current.json", params, nil)
	case "forecast":
		days := "3"
		if value, ok := params["days"]; ok {
			days = stringify(value)
		}

		return s.fetch(ctx, "/forecast.json", params, url.Values{"days": {days}})
	default:
		return nil, &services.OperationError{Service: ServiceName, Operation: operation, Supported: s.Operations()}
	}
}

func (s *Service) fetch(ctx context.Context, path string, params map[string]any, extra url.Values) (map[string]any, error) {
	location, err := locationParam(params)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("key", s.apiKey)
	query.Set("q", location)

	if aqi, ok := params["aqi"].(bool); ok {
		if aqi {
			query.Set("aqi", "yes")
		} else {
			query.Set("aqi", "no")
		}
	}

	if lang, ok := params["lang"].(string); ok {
		query.Set("lang", lang)
	}

	for key, values := range extra {
		for _, value := range values {
			query.Set(key, value)
		}
	}

	s.logger.Debug("weather request", "path", path, "q", location)

	return services.GetJSON(ctx, s.client, s.baseURL+path, query)
}

// locationParam accepts "q" directly or assembles it from "lat"/"lng".
func locationParam(params map[string]any) (string, error) {
	if q, ok := params["q"]; ok && q != nil && q != "" {
		return stringify(q), nil
	}

	lat, latOK := params["lat"]
	lng, lngOK := params["lng"]

	if latOK && lngOK {
		return stringify(lat) + "," + stringify(lng), nil
	}

	return "", fmt.Errorf("%w: q (or lat and lng)", services.ErrMissingParameter)
}

func stringify(value any) string {
	if number, ok := value.(float64); ok && number == float64(int64(number)) {
		return fmt.Sprintf("%d", int64(number))
	}

	return fmt.Sprintf("%v", value)
}
