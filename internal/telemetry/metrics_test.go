package telemetry

import (
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsHelpers(t *testing.T) {
	project := "test-project"

	TrackTaskAdmitted(project)
	TrackTaskDeferred(project)
	TrackTaskCompleted(project, "complete")
	TrackTaskCompleted(project, "failed")
	SetTasksPending(project, 5)
	SetActiveWorkers(project, 2)
	TrackAgentInvocation(project, "execute", "sonnet")
	ObserveAgentLatency(project, "execute", 0.5)
	TrackTokenUsage(project, "sonnet", "prompt", 100)
	TrackEscalation(project, "opus")
	TrackOpusStart(project)
	TrackStuckWorker(project)
	TrackRecoveryIntervention(project)
	TrackMergeSucceeded(project)
	TrackMergeFailed(project, "rebase-conflict")
	TrackRateLimitHit(project, "sonnet")
	SetRateLimitUsage(project, "5h", 42.0)
	TrackEmergencyActivation(project)
	TrackOrchestratorLoop(project)
	TrackLockContention(project)
	TrackError(project, "internal")
}

func TestStartMetricsServer(t *testing.T) {
	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	basePort := l.Addr().(*net.TCPAddr).Port
	l.Close()

	go func() {
		_ = StartMetricsServer(basePort)
	}()

	time.Sleep(200 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/metrics", basePort))
	if err != nil {
		t.Fatalf("Failed to request metrics: %v", err)
	}
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartMetricsServer_Conflict(t *testing.T) {
	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer l.Close()
	occupiedPort := l.Addr().(*net.TCPAddr).Port

	go func() {
		_ = StartMetricsServer(occupiedPort)
	}()

	time.Sleep(200 * time.Millisecond)

	nextPort := occupiedPort + 1
	url := fmt.Sprintf("http://localhost:%d/metrics", nextPort)

	resp, err := http.Get(url)
	if err != nil {
		resp, err = http.Get(fmt.Sprintf("http://localhost:%d/metrics", nextPort+1))
	}

	if err != nil {
		t.Fatalf("Metrics server failed to start on fallback port: %v", err)
	}
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
