package provider

import (
	"errors"
	"testing"

	"github.com/savelov/reshalka/internal/config"
)

func TestResolveSettingsPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		wantName  string
		wantStyle Style
		wantErr   error
	}{
		{
			name:    "Unconfigured",
			cfg:     config.Config{},
			wantErr: ErrNotConfigured,
		},
		{
			name: "OpenRouterWinsOverEverything",
			cfg: config.Config{
				OpenRouterAPIKey: "or-key",
				OnlySqAPIKey:     "sq-key",
				OpenAIAPIKey:     "oa-key",
				OnlySqAPIStyle:   "v2",
			},
			wantName:  "openrouter",
			wantStyle: StyleOpenAI,
		},
		{
			name: "OnlySqV1OverGeneric",
			cfg: config.Config{
				OnlySqAPIKey:   "sq-key",
				OpenAIAPIKey:   "oa-key",
				OnlySqAPIStyle: "v1",
			},
			wantName:  "onlysq",
			wantStyle: StyleOpenAI,
		},
		{
			name: "OnlySqV2Style",
			cfg: config.Config{
				OnlySqAPIKey:   "sq-key",
				OnlySqAPIStyle: "v2",
				OnlySqV2URL:    "https://api.onlysq.ru/ai/v2",
			},
			wantName:  "onlysq-v2",
			wantStyle: StyleOnlySqV2,
		},
		{
			name: "GenericOpenAI",
			cfg: config.Config{
				OpenAIAPIKey: "oa-key",
				OpenAIModel:  "gpt-4o-mini",
			},
			wantName:  "openai",
			wantStyle: StyleOpenAI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := resolveSettings(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("resolveSettings() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveSettings() failed: %v", err)
			}
			if settings.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", settings.Name, tt.wantName)
			}
			if settings.Style != tt.wantStyle {
				t.Errorf("Style = %q, want %q", settings.Style, tt.wantStyle)
			}
		})
	}
}

func TestResolveSettingsOpenRouterHeaders(t *testing.T) {
	cfg := config.Config{
		OpenRouterAPIKey:   "or-key",
		OpenRouterSiteURL:  "https://reshalka.example",
		OpenRouterAppTitle: "Решалка",
	}
	settings, err := resolveSettings(cfg)
	if err != nil {
		t.Fatalf("resolveSettings() failed: %v", err)
	}
	if got := settings.ExtraHeaders["HTTP-Referer"]; got != "https://reshalka.example" {
		t.Errorf("HTTP-Referer = %q", got)
	}
	if got := settings.ExtraHeaders["X-OpenRouter-Title"]; got != "Решалка" {
		t.Errorf("X-OpenRouter-Title = %q", got)
	}
}

func TestResolveSettingsGenericBaseURL(t *testing.T) {
	settings, err := resolveSettings(config.Config{OpenAIAPIKey: "k", OpenAIBaseURL: "https://llm.internal/v1"})
	if err != nil {
		t.Fatalf("resolveSettings() failed: %v", err)
	}
	if settings.BaseURL != "https://llm.internal/v1" {
		t.Errorf("BaseURL = %q", settings.BaseURL)
	}

	settings, err = resolveSettings(config.Config{OpenAIAPIKey: "k"})
	if err != nil {
		t.Fatalf("resolveSettings() failed: %v", err)
	}
	if settings.BaseURL != openAIBaseURL {
		t.Errorf("default BaseURL = %q, want %q", settings.BaseURL, openAIBaseURL)
	}
}
