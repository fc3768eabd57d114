package types

// TaskType identifies the kind of LLM work a chunk needs.
type TaskType string

const (
	TaskSummarize TaskType = "summarize"
	TaskSynthesis TaskType = "synthesis"
	TaskQA        TaskType = "qa"
)

// RouteRequest is the canonical internal representation of one unit of text
// needing LLM processing. The document pipeline submits these; the routing
// engine decides which backend serves them.
type RouteRequest struct {
	RequestID    string   `json:"request_id"`
	Chunk        string   `json:"chunk"`
	Task         TaskType `json:"task"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	UserPrompt   string   `json:"user_prompt,omitempty"`

	// Emergency marks a request that has already consumed its one
	// force-clear of backend cooldowns.
	Emergency bool `json:"emergency,omitempty"`
}

// RouteResult is the structured outcome of one routing request. The engine
// never surfaces provider failures as Go errors; callers branch on Success.
type RouteResult struct {
	Success      bool     `json:"success"`
	Content      string   `json:"content,omitempty"`
	APIUsed      string   `json:"api_used,omitempty"`
	Model        string   `json:"model,omitempty"`
	Error        string   `json:"error,omitempty"`
	TriedAPIs    []string `json:"tried_apis"`
	AttemptsMade int      `json:"attempts_made"`
}
