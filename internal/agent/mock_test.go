package agent

import (
	"context"
	"strings"
	"testing"
)

func TestMockRunner_DefaultResponse(t *testing.T) {
	runner := NewMockRunner()

	result, err := runner.RunAgent(context.Background(), "implement the thing", "sonnet", "/tmp/wt")
	if err != nil {
		t.Fatalf("RunAgent failed: %v", err)
	}
	if !strings.Contains(result.Output, "sonnet") {
		t.Errorf("expected response to mention the tier, got: %s", result.Output)
	}
	if len(runner.Calls()) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(runner.Calls()))
	}
}

func TestMockRunner_ForcedResponse(t *testing.T) {
	runner := NewMockRunner()
	runner.SetResponse(&Result{Output: "done", Signal: SignalAlreadyComplete})

	result, err := runner.RunAgent(context.Background(), "anything", "haiku", "/tmp/wt")
	if err != nil {
		t.Fatalf("RunAgent failed: %v", err)
	}
	if result.Signal != SignalAlreadyComplete {
		t.Errorf("expected SignalAlreadyComplete, got %v", result.Signal)
	}
}

func TestMockRunner_ForcedResponseForPrompt(t *testing.T) {
	runner := NewMockRunner()
	runner.SetResponseFor("special prompt", &Result{Output: "special", Signal: SignalPlanRejected})

	result, err := runner.RunAgent(context.Background(), "special prompt", "opus", "/tmp/wt")
	if err != nil {
		t.Fatalf("RunAgent failed: %v", err)
	}
	if result.Signal != SignalPlanRejected {
		t.Errorf("expected SignalPlanRejected, got %v", result.Signal)
	}

	other, err := runner.RunAgent(context.Background(), "other prompt", "opus", "/tmp/wt")
	if err != nil {
		t.Fatalf("RunAgent failed: %v", err)
	}
	if other.Signal != SignalNone {
		t.Errorf("expected unmatched prompt to fall through to default, got %v", other.Signal)
	}
}
