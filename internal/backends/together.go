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

const defaultTogetherBaseURL = "https://api.together.xyz"

// TogetherAdapter calls the Together AI completions API with a single
// rendered prompt.
type TogetherAdapter struct {
	name   string
	cfg    config.BackendConfig
	client *http.Client
}

func NewTogetherAdapter(name string, cfg config.BackendConfig, client *http.Client) *TogetherAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTogetherBaseURL
	}
	return &TogetherAdapter{name: name, cfg: cfg, client: client}
}

func (a *TogetherAdapter) Name() string  { return a.name }
func (a *TogetherAdapter) Model() string { return a.cfg.Model }

func (a *TogetherAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := togetherRequestBody{
		Model:       a.cfg.Model,
		Prompt:      BuildPrompt(req),
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal together request: %w", err)
	}

	url := strings.TrimSuffix(a.cfg.BaseURL, "/") + "/v1/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create together request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("together request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read together response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("together returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed togetherResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal together response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response from together")
	}

	text := strings.TrimSpace(parsed.Choices[0].Text)
	if text == "" {
		return "", fmt.Errorf("empty response from together")
	}
	return text, nil
}

type togetherRequestBody struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type togetherResponseBody struct {
	ID      string `json:"id"`
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}
