package backends

import (
	"fmt"

	"github.com/inkwell-ai/chunkrouter/internal/types"
)

// BuildPrompt renders the request as a single prompt string for providers
// that take one text block (Gemini, Together).
func BuildPrompt(req GenerateRequest) string {
	if req.SystemPrompt != "" && req.UserPrompt != "" {
		return fmt.Sprintf("%s\n\n%s\n\nText to process:\n%s", req.SystemPrompt, req.UserPrompt, req.Chunk)
	}

	if req.Task == types.TaskSummarize {
		hint := ""
		if req.IndicHint {
			hint = "\nIMPORTANT: This text contains Hindi/Urdu/Bengali content. Preserve and understand the Indic script content properly."
		}
		return fmt.Sprintf(`You are a highly skilled summarization expert. Create a concise, informative summary of the following text.%s

Text to summarize:
%s

Provide a clear, well-structured summary that captures the main points and key information.`, hint, req.Chunk)
	}

	return fmt.Sprintf("Process this text for %s:\n\n%s", req.Task, req.Chunk)
}

// BuildMessages renders the request as system+user chat turns for providers
// with a messages API (Groq, OpenRouter).
func BuildMessages(req GenerateRequest) []Message {
	system := req.SystemPrompt
	if system == "" {
		system = "You are a highly skilled AI assistant specializing in text processing and summarization."
		if req.IndicHint {
			system += " You have expertise in handling Hindi, Urdu, Bengali and other Indic scripts."
		}
	}

	var user string
	switch {
	case req.UserPrompt != "":
		user = fmt.Sprintf("%s\n\nText to process:\n%s", req.UserPrompt, req.Chunk)
	case req.Task == types.TaskSummarize:
		user = fmt.Sprintf("Please create a concise, informative summary of the following text:\n\n%s", req.Chunk)
	default:
		user = fmt.Sprintf("Please process this text for %s:\n\n%s", req.Task, req.Chunk)
	}

	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}
