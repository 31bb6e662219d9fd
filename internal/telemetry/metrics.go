package telemetry

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics definitions, labeled by project so one process can serve several
// grind sessions' history without cross-contamination.
var (
	// Board / admission
	TasksAdmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_tasks_admitted_total",
		Help: "Total tasks admitted into a batch.",
	}, []string{"project"})
	TasksDeferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_tasks_deferred_total",
		Help: "Total tasks deferred to a later batch (similar in-progress task, concurrency cap, or predicted file conflict).",
	}, []string{"project"})
	TasksCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_tasks_completed_total",
		Help: "Total tasks that reached a terminal state.",
	}, []string{"project", "status"})
	TasksPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "undercity_tasks_pending",
		Help: "Number of tasks currently pending on the board.",
	}, []string{"project"})
	ActiveWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "undercity_active_workers",
		Help: "Number of currently running workers.",
	}, []string{"project"})

	// Worker / agent
	AgentInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_agent_invocations_total",
		Help: "Total agent calls, labeled by phase and model tier.",
	}, []string{"project", "phase", "tier"})
	AgentResponseTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "undercity_agent_response_time_seconds",
		Help:    "Latency of agent invocations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"project", "phase"})
	TokenUsageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_token_usage_total",
		Help: "Total tokens consumed, labeled by model and direction.",
	}, []string{"project", "model", "direction"})
	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_escalations_total",
		Help: "Total tier escalations.",
	}, []string{"project", "to_tier"})
	OpusStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_opus_starts_total",
		Help: "Total tasks that started or escalated to the opus tier.",
	}, []string{"project"})

	// Health / recovery
	StuckWorkersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_stuck_workers_total",
		Help: "Total workers detected stuck by the health monitor.",
	}, []string{"project"})
	RecoveryInterventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_recovery_interventions_total",
		Help: "Total stuck-worker recovery interventions attempted.",
	}, []string{"project"})

	// Merge pipeline
	MergesSucceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_merges_succeeded_total",
		Help: "Total fast-forward merges into mainline.",
	}, []string{"project"})
	MergesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_merges_failed_total",
		Help: "Total merge failures, labeled by error category.",
	}, []string{"project", "category"})

	// Rate limit / budget
	RateLimitHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_rate_limit_hits_total",
		Help: "Total observed rate-limit events.",
	}, []string{"project", "model"})
	RateLimitUsagePct = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "undercity_rate_limit_usage_pct",
		Help: "Current rate-limit usage percentage by window.",
	}, []string{"project", "window"})

	// Emergency mode
	EmergencyActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_emergency_activations_total",
		Help: "Total emergency-mode activations.",
	}, []string{"project"})

	OrchestratorLoopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_orchestrator_loops_total",
		Help: "Total admission-loop iterations.",
	}, []string{"project"})
	LockContentionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_lock_contention_total",
		Help: "Total admission attempts deferred by predicted file-path collision.",
	}, []string{"project"})
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "undercity_errors_total",
		Help: "Total internal errors, labeled by category.",
	}, []string{"project", "category"})
)

var (
	metricsOnce    sync.Once
	metricsMu      sync.Mutex
	metricsRunning bool
)

// StartMetricsServer exposes the Prometheus registry over HTTP, probing up to
// 10 ports from basePort if the first is already bound.
func StartMetricsServer(basePort int) error {
	metricsMu.Lock()
	if metricsRunning {
		metricsMu.Unlock()
		return nil
	}
	metricsRunning = true
	metricsMu.Unlock()

	metricsOnce.Do(func() {
		http.Handle("/metrics", promhttp.Handler())
	})

	var listener net.Listener
	var err error
	for i := 0; i < 10; i++ {
		port := basePort + i
		addr := ":" + strconv.Itoa(port)
		listener, err = net.Listen("tcp", addr)
		if err == nil {
			fmt.Fprintf(os.Stderr, "starting metrics server on %s\n", addr)
			return http.Serve(listener, nil)
		}
	}

	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()
	return fmt.Errorf("failed to find available port starting from %d: %w", basePort, err)
}

// Helper functions used by the Orchestrator and its components.

func TrackTaskAdmitted(project string) { TasksAdmittedTotal.WithLabelValues(project).Inc() }

func TrackTaskDeferred(project string) { TasksDeferredTotal.WithLabelValues(project).Inc() }

func TrackTaskCompleted(project, status string) {
	TasksCompletedTotal.WithLabelValues(project, status).Inc()
}

func SetTasksPending(project string, n int) { TasksPending.WithLabelValues(project).Set(float64(n)) }

func SetActiveWorkers(project string, n int) { ActiveWorkers.WithLabelValues(project).Set(float64(n)) }

func TrackAgentInvocation(project, phase, tier string) {
	AgentInvocationsTotal.WithLabelValues(project, phase, tier).Inc()
}

func ObserveAgentLatency(project, phase string, seconds float64) {
	AgentResponseTime.WithLabelValues(project, phase).Observe(seconds)
}

func TrackTokenUsage(project, model, direction string, count int) {
	TokenUsageTotal.WithLabelValues(project, model, direction).Add(float64(count))
}

func TrackEscalation(project, toTier string) {
	EscalationsTotal.WithLabelValues(project, toTier).Inc()
}

func TrackOpusStart(project string) { OpusStartsTotal.WithLabelValues(project).Inc() }

func TrackStuckWorker(project string) { StuckWorkersTotal.WithLabelValues(project).Inc() }

func TrackRecoveryIntervention(project string) {
	RecoveryInterventionsTotal.WithLabelValues(project).Inc()
}

func TrackMergeSucceeded(project string) { MergesSucceededTotal.WithLabelValues(project).Inc() }

func TrackMergeFailed(project, category string) {
	MergesFailedTotal.WithLabelValues(project, category).Inc()
}

func TrackRateLimitHit(project, model string) {
	RateLimitHitsTotal.WithLabelValues(project, model).Inc()
}

func SetRateLimitUsage(project, window string, pct float64) {
	RateLimitUsagePct.WithLabelValues(project, window).Set(pct)
}

func TrackEmergencyActivation(project string) {
	EmergencyActivationsTotal.WithLabelValues(project).Inc()
}

func TrackOrchestratorLoop(project string) { OrchestratorLoopsTotal.WithLabelValues(project).Inc() }

func TrackLockContention(project string) { LockContentionTotal.WithLabelValues(project).Inc() }

func TrackError(project, category string) { ErrorsTotal.WithLabelValues(project, category).Inc() }
