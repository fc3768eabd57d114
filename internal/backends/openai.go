package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/inkwell-ai/chunkrouter/internal/config"
)

// OpenAIAdapter calls any OpenAI-compatible chat completions endpoint. Groq
// and OpenRouter both speak this dialect; only the base URL differs.
type OpenAIAdapter struct {
	name   string
	cfg    config.BackendConfig
	client *http.Client
}

func NewOpenAIAdapter(name string, cfg config.BackendConfig, client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{name: name, cfg: cfg, client: client}
}

func (a *OpenAIAdapter) Name() string  { return a.name }
func (a *OpenAIAdapter) Model() string { return a.cfg.Model }

func (a *OpenAIAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := openAIRequestBody{
		Model:       a.cfg.Model,
		Messages:    BuildMessages(req),
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", a.name, err)
	}

	url := strings.TrimSuffix(a.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", a.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", a.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", a.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d: %s", a.name, resp.StatusCode, string(respBody))
	}

	var parsed openAIResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal %s response: %w", a.name, err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s", a.name)
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from %s", a.name)
	}
	return text, nil
}

type openAIRequestBody struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}
