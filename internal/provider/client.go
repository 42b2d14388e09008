package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/savelov/reshalka/internal/models"
)

type Client struct {
	settings   Settings
	httpClient *http.Client
	unwrap     responseUnwrapper
	log        *slog.Logger
}

func NewClient(settings Settings, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		settings: settings,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		unwrap: unwrapperFor(settings.Style),
		log:    log,
	}
}

// Name returns the resolved provider name, for logging and diagnostics.
func (c *Client) Name() string {
	return c.settings.Name
}

// Generate runs a single chat-completion call and returns the answer text.
// One attempt only: upstream failures are often non-transient (quota, bad
// key) and a retry would change latency and cost behind the user's back.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range c.settings.ExtraHeaders {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("post %s: %w", c.settings.Name, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("provider call failed", "provider", c.settings.Name, "status", resp.StatusCode, "body", truncateBody(rawBody))
		return "", &APIError{Status: resp.StatusCode, Body: truncateBody(rawBody)}
	}

	answer, err := c.unwrap(rawBody)
	if err != nil {
		return "", fmt.Errorf("decode %s response: %w (body=%s)", c.settings.Name, err, truncateBody(rawBody))
	}
	return answer, nil
}

func (c *Client) endpoint() string {
	if c.settings.Style == StyleOnlySqV2 {
		// v2 is a single fixed URL, not a base with standard paths.
		return c.settings.BaseURL
	}
	return strings.TrimRight(c.settings.BaseURL, "/") + "/chat/completions"
}

func (c *Client) buildPayload(req Request) map[string]any {
	messages := buildMessages(req)
	if c.settings.Style == StyleOnlySqV2 {
		return map[string]any{
			"model":   c.settings.Model,
			"request": map[string]any{"messages": messages},
		}
	}
	return map[string]any{
		"model":    c.settings.Model,
		"messages": messages,
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func buildMessages(req Request) []chatMessage {
	var content []contentPart
	if text := strings.TrimSpace(req.Text); text != "" {
		content = append(content, contentPart{
			Type: "text",
			Text: "Вот условие задачи:\n\n" + text,
		})
	}
	if req.ImageBase64 != "" {
		// Mini App may send base64 with or without the data: URI prefix.
		image := req.ImageBase64
		if !strings.HasPrefix(image, "data:") {
			image = "data:image/jpeg;base64," + image
		}
		content = append(content, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: image},
		})
	}

	return []chatMessage{
		{Role: "system", Content: systemPrompt(req.Detail)},
		{Role: "user", Content: content},
	}
}

func systemPrompt(detail models.DetailLevel) string {
	prompt := "Ты опытный школьный учитель математики. Решай задачи так, как объяснял бы ученику у доски: " +
		"простым языком, пошагово, с пояснением каждого действия — почему именно так, а не иначе. " +
		"Если есть подводные камни или типичные ошибки, предупреди о них. " +
		"Отвечай на русском языке. " +
		"Все математические формулы обязательно оформляй в LaTeX: " +
		"для формул внутри текста используй \\( ... \\), для формул на отдельной строке — \\[ ... \\]. " +
		"Примеры: \\( y = \\frac{7}{x-4} \\), \\( x \\in \\mathbb{R} \\), \\( D = \\{ x \\mid x \\neq 4 \\} \\). "
	if detail == models.DetailDetailed {
		return prompt +
			"Расписывай максимально подробно: каждый шаг, каждый переход, каждое правило. " +
			"Объясняй так, чтобы даже тот, кто видит тему впервые, всё понял."
	}
	return prompt +
		"Отвечай по делу, но каждый шаг объясняй понятно. Не пропускай логику — ученик должен понять, а не просто списать."
}

// responseUnwrapper extracts the answer text from a provider response body.
type responseUnwrapper func(body []byte) (string, error)

func unwrapperFor(style Style) responseUnwrapper {
	if style == StyleOnlySqV2 {
		return unwrapOnlySqV2
	}
	return unwrapOpenAI
}

func unwrapOpenAI(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// unwrapOnlySqV2 handles the v2 envelope. Older deployments answered with a
// top-level answer field, current ones with a choices list, so both are
// accepted.
func unwrapOnlySqV2(body []byte) (string, error) {
	var resp struct {
		Answer  string `json:"answer"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.Answer != "" {
		return resp.Answer, nil
	}
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		return resp.Choices[0].Message.Content, nil
	}
	return "", errors.New("empty v2 completion")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
