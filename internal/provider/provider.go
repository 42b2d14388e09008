// Package provider talks to the configured OpenAI-compatible chat-completion
// backend. Exactly one provider is active per process; selection happens once
// at startup and there is no cross-provider fallback at request time.
package provider

import (
	"errors"
	"fmt"

	"github.com/savelov/reshalka/internal/models"
)

// Style tags the wire shape a provider speaks.
type Style string

const (
	// StyleOpenAI covers OpenRouter, OnlySq v1 and any generic
	// OpenAI-compatible endpoint: POST {base}/chat/completions with
	// {model, messages}.
	StyleOpenAI Style = "openai"
	// StyleOnlySqV2 posts {model, request:{messages}} to a fixed URL and
	// answers with its own envelope.
	StyleOnlySqV2 Style = "onlysq-v2"
)

// Settings is the resolved provider configuration, read-only for the process
// lifetime.
type Settings struct {
	Name         string
	BaseURL      string
	APIKey       string
	Model        string
	Style        Style
	ExtraHeaders map[string]string
}

// Request is a single generation request. At least one of Text/ImageBase64 is
// set; both are forwarded when both are present.
type Request struct {
	Text        string
	ImageBase64 string
	Detail      models.DetailLevel
}

var (
	// ErrNotConfigured means no provider family had credentials set.
	ErrNotConfigured = errors.New("no AI provider configured")
	// ErrTimeout means the provider did not answer within the bounded timeout.
	ErrTimeout = errors.New("provider request timed out")
)

// APIError is a non-2xx answer from the provider. Body is truncated.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error: status=%d body=%s", e.Status, e.Body)
}
