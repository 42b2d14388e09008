package provider

import (
	"log/slog"

	"github.com/savelov/reshalka/internal/config"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	onlySqV1BaseURL   = "https://api.onlysq.ru/v1"
	openAIBaseURL     = "https://api.openai.com/v1"
)

// Resolve picks the provider client from configuration. Precedence is fixed:
// OpenRouter, then OnlySq, then a generic OpenAI-compatible endpoint. Callers
// resolve once at startup and reuse the client for the process lifetime.
func Resolve(cfg config.Config, log *slog.Logger) (*Client, error) {
	settings, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("provider resolved", "provider", settings.Name, "model", settings.Model, "style", string(settings.Style))
	return NewClient(settings, cfg.RequestTimeout, log), nil
}

func resolveSettings(cfg config.Config) (Settings, error) {
	if cfg.OpenRouterAPIKey != "" {
		headers := map[string]string{}
		if cfg.OpenRouterSiteURL != "" {
			headers["HTTP-Referer"] = cfg.OpenRouterSiteURL
		}
		if cfg.OpenRouterAppTitle != "" {
			headers["X-OpenRouter-Title"] = cfg.OpenRouterAppTitle
		}
		return Settings{
			Name:         "openrouter",
			BaseURL:      openRouterBaseURL,
			APIKey:       cfg.OpenRouterAPIKey,
			Model:        cfg.OpenRouterModel,
			Style:        StyleOpenAI,
			ExtraHeaders: headers,
		}, nil
	}

	if cfg.OnlySqAPIKey != "" {
		if cfg.OnlySqAPIStyle == "v2" {
			return Settings{
				Name:    "onlysq-v2",
				BaseURL: cfg.OnlySqV2URL,
				APIKey:  cfg.OnlySqAPIKey,
				Model:   cfg.OpenAIModel,
				Style:   StyleOnlySqV2,
			}, nil
		}
		return Settings{
			Name:    "onlysq",
			BaseURL: onlySqV1BaseURL,
			APIKey:  cfg.OnlySqAPIKey,
			Model:   cfg.OpenAIModel,
			Style:   StyleOpenAI,
		}, nil
	}

	if cfg.OpenAIAPIKey != "" {
		baseURL := cfg.OpenAIBaseURL
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		return Settings{
			Name:    "openai",
			BaseURL: baseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Style:   StyleOpenAI,
		}, nil
	}

	return Settings{}, ErrNotConfigured
}
