package config

import (
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Stream.MaxInputLength != 5000 {
		t.Errorf("expected max input length 5000, got %d", s.Stream.MaxInputLength)
	}
	if s.Breakers.ToolBackend.FailureThreshold != 5 {
		t.Errorf("expected tool backend threshold 5, got %d", s.Breakers.ToolBackend.FailureThreshold)
	}
	if s.Breakers.ToolBackend.RecoveryTimeout != 30*time.Second {
		t.Errorf("expected tool backend recovery 30s, got %v", s.Breakers.ToolBackend.RecoveryTimeout)
	}
	if s.Breakers.ReasoningBackend.FailureThreshold != 3 {
		t.Errorf("expected reasoning backend threshold 3, got %d", s.Breakers.ReasoningBackend.FailureThreshold)
	}
	if s.Breakers.ReasoningBackend.RecoveryTimeout != 60*time.Second {
		t.Errorf("expected reasoning backend recovery 60s, got %v", s.Breakers.ReasoningBackend.RecoveryTimeout)
	}
	if s.Backend.Kind != "local" {
		t.Errorf("expected local backend, got %q", s.Backend.Kind)
	}
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("CIRCUIT_BREAKER_TOOL_BACKEND_FAILURE_THRESHOLD", "2")
	t.Setenv("MAX_INPUT_LENGTH", "100")
	t.Setenv("HEARTBEAT_INTERVAL", "5")

	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Breakers.ToolBackend.FailureThreshold != 2 {
		t.Errorf("expected threshold 2, got %d", s.Breakers.ToolBackend.FailureThreshold)
	}
	if s.Stream.MaxInputLength != 100 {
		t.Errorf("expected max input length 100, got %d", s.Stream.MaxInputLength)
	}
	if s.Stream.HeartbeatInterval != 5*time.Second {
		t.Errorf("expected heartbeat 5s, got %v", s.Stream.HeartbeatInterval)
	}
}

func TestNewInvalidInt(t *testing.T) {
	t.Setenv("TASKPILOT_PORT", "not-a-number")
	if _, err := New(); err == nil {
		t.Error("expected error for invalid TASKPILOT_PORT")
	}
}

func TestNewInvalidBackendKind(t *testing.T) {
	t.Setenv("TOOL_BACKEND", "carrier-pigeon")
	if _, err := New(); err == nil {
		t.Error("expected error for unknown TOOL_BACKEND")
	}
}

func TestNewInvalidBreakerValues(t *testing.T) {
	t.Setenv("CIRCUIT_BREAKER_REASONING_BACKEND_PROBE_QUOTA", "0")
	if _, err := New(); err == nil {
		t.Error("expected error for zero probe quota")
	}
}

func TestMCPArgsParsing(t *testing.T) {
	t.Setenv("MCP_SERVER_ARGS", "run, todo_server.py ,--stdio")
	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"run", "todo_server.py", "--stdio"}
	if len(s.Backend.MCPArgs) != len(want) {
		t.Fatalf("expected %d args, got %d", len(want), len(s.Backend.MCPArgs))
	}
	for i, arg := range want {
		if s.Backend.MCPArgs[i] != arg {
			t.Errorf("arg %d: expected %q, got %q", i, arg, s.Backend.MCPArgs[i])
		}
	}
}

func TestMustNewPanics(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "nope")
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid configuration")
		}
	}()
	MustNew()
}
