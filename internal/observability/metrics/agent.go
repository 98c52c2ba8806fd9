package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 交互结果的标签取值。
const (
	OutcomeReply       = "reply"
	OutcomeEmpty       = "empty"
	OutcomeValidation  = "validation"
	OutcomeInitFailure = "init_failure"
	OutcomeTimeout     = "timeout"
	OutcomeUpstream    = "upstream"
)

var (
	agentExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockpay_agent_exchanges_total",
			Help: "Agent exchanges partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	agentLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockpay_agent_exchange_duration_seconds",
			Help:    "Time spent between agent acquisition and the final reply.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)
	agentChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockpay_agent_stream_chunks_total",
			Help: "Stream chunks consumed from the agent runtime, including skipped ones.",
		},
	)
)

// ObserveAgentExchange 记录一次智能体交互的结果与耗时。
func ObserveAgentExchange(outcome string, duration time.Duration) {
	agentExchanges.WithLabelValues(outcome).Inc()
	if outcome != OutcomeValidation {
		agentLatency.Observe(duration.Seconds())
	}
}

// ObserveAgentChunk 统计消费的流式片段数量。
func ObserveAgentChunk() {
	agentChunks.Inc()
}
