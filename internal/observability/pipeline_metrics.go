package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlprompt_pipeline_stage_duration_seconds",
			Help:    "Latency of each query pipeline stage.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage", "outcome"},
	)
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlprompt_pipeline_requests_total",
			Help: "Total number of pipeline runs by terminal outcome.",
		},
		[]string{"outcome", "kind"},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlprompt_llm_calls_total",
			Help: "Total number of LLM calls by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)
	pooledHandles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlprompt_target_pooled_handles",
			Help: "Current number of pooled database handles.",
		},
	)
	historyFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlprompt_history_flushes_total",
			Help: "Total number of query history archive flushes.",
		},
		[]string{"outcome"},
	)
	historyDroppedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlprompt_history_dropped_records_total",
			Help: "Total number of history records dropped because the buffer was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineStageDurationSeconds,
		pipelineRequestsTotal,
		llmCallsTotal,
		pooledHandles,
		historyFlushesTotal,
		historyDroppedRecordsTotal,
	)
}

func ObserveStage(stage string, failed bool, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage, outcomeLabel(failed)).Observe(elapsed.Seconds())
}

// ObservePipelineOutcome counts a finished run; kind is empty on success.
func ObservePipelineOutcome(kind string) {
	if kind == "" {
		pipelineRequestsTotal.WithLabelValues("ok", "none").Inc()
		return
	}
	pipelineRequestsTotal.WithLabelValues("error", kind).Inc()
}

func ObserveLLMCall(purpose string, failed bool) {
	llmCallsTotal.WithLabelValues(purpose, outcomeLabel(failed)).Inc()
}

func SetPooledHandles(count int) {
	if count < 0 {
		count = 0
	}
	pooledHandles.Set(float64(count))
}

func ObserveHistoryFlush(failed bool) {
	historyFlushesTotal.WithLabelValues(outcomeLabel(failed)).Inc()
}

func ObserveHistoryDropped(count int) {
	historyDroppedRecordsTotal.Add(float64(count))
}

func outcomeLabel(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
