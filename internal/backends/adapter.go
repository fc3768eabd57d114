// Package backends holds the provider adapters. Each adapter translates the
// engine's normalized generation request into one provider's call convention
// and normalizes the response or error back. Provider failures come back as
// error values whose text carries the provider's status code and body, which
// is what the usage classifier keys on.
package backends

import (
	"context"

	"github.com/inkwell-ai/chunkrouter/internal/types"
)

// GenerateRequest is the normalized prompt handed to an adapter.
type GenerateRequest struct {
	Chunk        string
	Task         types.TaskType
	SystemPrompt string
	UserPrompt   string

	// IndicHint asks the adapter to add script-handling guidance to default
	// prompts. Set from the chunk analysis.
	IndicHint bool
}

// Adapter is implemented once per provider. Generate blocks until the
// provider answers or ctx is done; it must never panic on provider failure.
type Adapter interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Message is one chat turn for message-based providers.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.1
)
