// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/tirandagan/llmflow/pkg/config"
	"github.com/tirandagan/llmflow/pkg/provider"
	"github.com/tirandagan/llmflow/pkg/services"
	"github.com/tirandagan/llmflow/pkg/services/googleplaces"
	"github.com/tirandagan/llmflow/pkg/services/weatherapi"
)

// NewServiceRegistry registers the external service adapters that have
// credentials configured.
func NewServiceRegistry(cfg *config.Config, logger *slog.Logger) *services.Registry {
	registry := services.NewRegistry()

	if cfg.GooglePlacesKey != "" {
		err := registry.Register(googleplaces.New(cfg.GooglePlacesKey, "", 0))
		if err != nil {
			panic(fmt.Errorf("failed to register google_places: %w", err))
		}
	}

	if cfg.WeatherAPIKey != "" {
		err := registry.Register(weatherapi.New(cfg.WeatherAPIKey, "", 0))
		if err != nil {
			panic(fmt.Errorf("failed to register weatherapi: %w", err))
		}
	}

	logger.Info("Registered external services", "services", registry.Names())

	return registry
}

// NewTextProvider creates the configured text generation provider.
func NewTextProvider(cfg *config.Config) provider.Provider {
	switch cfg.LLMProvider {
	case "openrouter":
		return provider.NewOpenRouter(cfg.OpenRouterAPIKey, "", cfg.LLMRequestTimeout)
	default:
		panic("Unsupported LLM provider: " + cfg.LLMProvider)
	}
}
