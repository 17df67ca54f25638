package llm

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"
)

func TestParseProviderType(t *testing.T) {
	cases := []struct {
		input string
		want  ProviderType
	}{
		{"openai", ProviderOpenAI},
		{"GPT", ProviderOpenAI},
		{"anthropic", ProviderAnthropic},
		{"Claude", ProviderAnthropic},
		{"gemini", ProviderGemini},
		{"google", ProviderGemini},
		{"gemini-native", ProviderGeminiNative},
	}
	for _, tc := range cases {
		got, err := ParseProviderType(tc.input)
		if err != nil {
			t.Errorf("ParseProviderType(%q): unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}

	if _, err := ParseProviderType("cohere"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFromEnvMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := ProviderOpenAI.FromEnv()
	if err == nil {
		t.Fatal("expected error when API key is not set")
	}
}

func TestBuilderDefaults(t *testing.T) {
	p, err := ProviderGemini.APIKey("test-key")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if p.Name() != "gemini" {
		t.Errorf("Name() = %q, want gemini", p.Name())
	}
	if p.Model() != ModelGeminiFlash2 {
		t.Errorf("Model() = %q, want %q", p.Model(), ModelGeminiFlash2)
	}
}

func TestBuilderOverrides(t *testing.T) {
	p, err := ProviderOpenAI.Model("gpt-4o").MaxTokens(512).Temperature(0.1).APIKey("test-key")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if p.Model() != "gpt-4o" {
		t.Errorf("Model() = %q, want gpt-4o", p.Model())
	}
}

func TestMessageConstructors(t *testing.T) {
	msg := ToolResultMessage("call_1", `{"ok":true}`)
	if msg.Role != "tool" || msg.ToolCallID != "call_1" {
		t.Errorf("unexpected tool result message: %+v", msg)
	}

	asst := AssistantMessage("thinking", []ToolCall{{ID: "c1", Name: "list"}})
	if asst.Role != "assistant" || len(asst.ToolCalls) != 1 {
		t.Errorf("unexpected assistant message: %+v", asst)
	}
}

func TestConvertToOpenAIMessagesCarriesToolCalls(t *testing.T) {
	messages := []ChatMessage{
		UserMessage("add a task"),
		AssistantMessage("", []ToolCall{
			{ID: "c1", Name: "create", Arguments: json.RawMessage(`{"title":"x"}`)},
		}),
		ToolResultMessage("c1", `{"id":1}`),
	}

	converted := convertToOpenAIMessages(messages)
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}
	if len(converted[1].ToolCalls) != 1 {
		t.Fatalf("assistant tool calls not carried: %+v", converted[1])
	}
	if converted[1].ToolCalls[0].Function.Arguments != `{"title":"x"}` {
		t.Errorf("arguments mangled: %q", converted[1].ToolCalls[0].Function.Arguments)
	}
	if converted[2].ToolCallID != "c1" {
		t.Errorf("tool call id not carried: %+v", converted[2])
	}
}

func TestConvertToAnthropicMessagesExtractsSystem(t *testing.T) {
	messages := []ChatMessage{
		SystemMessage("you are helpful"),
		UserMessage("hello"),
	}

	converted, system := convertToAnthropicMessages(messages)
	if system != "you are helpful" {
		t.Errorf("system prompt not extracted: %q", system)
	}
	if len(converted) != 1 {
		t.Errorf("system message should not appear in message list, got %d messages", len(converted))
	}
}

func TestRequiredNames(t *testing.T) {
	if got := requiredNames([]string{"a", "b"}); len(got) != 2 {
		t.Errorf("[]string not passed through: %v", got)
	}
	if got := requiredNames([]interface{}{"a", "b"}); len(got) != 2 {
		t.Errorf("[]interface{} not normalized: %v", got)
	}
	if got := requiredNames(nil); got != nil {
		t.Errorf("expected nil for missing required, got %v", got)
	}
}

func TestConvertToGeminiSchemaArrayItems(t *testing.T) {
	params := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tags": map[string]interface{}{
				"type":        "array",
				"description": "labels",
			},
			"count": map[string]interface{}{
				"type": "integer",
			},
		},
		"required": []interface{}{"tags"},
	}

	schema := convertToGeminiSchema(params)
	if schema.Type != genai.TypeObject {
		t.Fatalf("expected object schema, got %v", schema.Type)
	}
	tags := schema.Properties["tags"]
	if tags == nil || tags.Type != genai.TypeArray {
		t.Fatalf("tags schema wrong: %+v", tags)
	}
	if tags.Items == nil || tags.Items.Type != genai.TypeString {
		t.Errorf("array items should default to string, got %+v", tags.Items)
	}
	if schema.Properties["count"].Type != genai.TypeNumber {
		t.Errorf("integer should map to number type")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "tags" {
		t.Errorf("required not carried: %v", schema.Required)
	}
}

func TestGeminiInitErrorPreserved(t *testing.T) {
	provider := NewGeminiProvider("", "gemini-2.0-flash", 100, 0.7)
	if provider.initErr == nil {
		// Some SDK versions accept an empty key at construction; nothing
		// further to assert in that case.
		t.Skip("client initialized despite empty key")
	}

	_, err := provider.ChatWithTools(t.Context(), []ChatMessage{UserMessage("hi")}, nil)
	if err == nil {
		t.Fatal("expected deferred initialization error")
	}
}
