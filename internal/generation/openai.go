package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paceline-ai/stride/internal/model"
)

// ErrMalformedOutput indicates the backend returned text that does not parse
// into the requested structure. The workflow treats it as retryable.
var ErrMalformedOutput = errors.New("generation: malformed output")

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig holds configuration for an OpenAI-compatible chat backend.
// BaseURL may point at any server speaking the chat-completions protocol
// (OpenAI, vLLM, Ollama's compatibility endpoint).
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator implements Generator over the chat-completions API with
// JSON-mode responses.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOpenAIGenerator creates a generator for the configured backend.
func NewOpenAIGenerator(cfg OpenAIConfig, logger *slog.Logger) *OpenAIGenerator {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIGenerator{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate renders the prompt into chat messages, calls the backend, and
// parses the JSON content into the task's output structure.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt Prompt) (Output, error) {
	system, user := renderMessages(prompt)

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    g.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Output{}, fmt.Errorf("generation: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Output{}, fmt.Errorf("generation: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return Output{}, fmt.Errorf("%w: %v", model.ErrGenerationTimeout, err)
		}
		return Output{}, fmt.Errorf("generation: call backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, fmt.Errorf("generation: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Output{}, fmt.Errorf("generation: backend returned status %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return Output{}, fmt.Errorf("%w: decode envelope: %v", ErrMalformedOutput, err)
	}
	if chat.Error != nil {
		return Output{}, fmt.Errorf("generation: backend error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return Output{}, fmt.Errorf("%w: no choices in response", ErrMalformedOutput)
	}

	choice := chat.Choices[0]
	if choice.Message.Refusal != "" || choice.FinishReason == "content_filter" {
		return Output{}, fmt.Errorf("%w: %s", model.ErrGenerationRefused,
			truncate(choice.Message.Refusal, 200))
	}

	g.logger.Debug("generation: backend responded",
		"task", string(prompt.Task),
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return ParseOutput(prompt, []byte(choice.Message.Content))
}

// isClientTimeout reports whether the error is the http.Client's own timeout
// rather than a context cancellation.
func isClientTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
