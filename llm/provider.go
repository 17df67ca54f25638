package llm

import "context"

// Provider abstracts a reasoning backend.
type Provider interface {
	// Name returns the provider name ("openai", "anthropic", "gemini").
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// ChatWithTools sends the conversation plus tool definitions and
	// returns the next assistant turn. A non-empty Reply.ToolCalls means
	// the model wants tools invoked before it can continue.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Reply, error)

	// StreamChat streams response text fragments to chunks. The channel
	// is closed by the provider when the stream ends. Returns usage
	// statistics when the provider reports them.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}
