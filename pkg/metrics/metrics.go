// Package metrics exposes Prometheus counters for the voice agents.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-voiceagents/pkg/agent"
)

const namespace = "voiceagents"

// Collector owns a private registry so several can coexist in one process.
type Collector struct {
	demo     string
	registry *prometheus.Registry

	toolCalls      *prometheus.CounterVec
	handoffs       *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
	ttsCharacters  prometheus.Counter
	ordersSaved    prometheus.Counter
	checkInsSaved  prometheus.Counter
	activeSessions prometheus.Gauge
	toolDuration   *prometheus.HistogramVec
	pipelineErrors prometheus.Counter
}

// NewCollector creates a collector for one demo.
func NewCollector(demo string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	labels := prometheus.Labels{"demo": demo}

	return &Collector{
		demo:     demo,
		registry: reg,

		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tool_calls_total",
			Help:        "Tool invocations by tool and outcome.",
			ConstLabels: labels,
		}, []string{"tool", "outcome"}),

		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "tool_duration_seconds",
			Help:        "Tool handler duration.",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"tool"}),

		handoffs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "handoffs_total",
			Help:        "Persona handoffs.",
			ConstLabels: labels,
		}, []string{"from", "to"}),

		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "llm_tokens_total",
			Help:        "LLM tokens by kind (prompt, completion).",
			ConstLabels: labels,
		}, []string{"kind"}),

		ttsCharacters: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tts_characters_total",
			Help:        "Characters synthesized.",
			ConstLabels: labels,
		}),

		ordersSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "orders_saved_total",
			Help:        "Coffee orders written.",
			ConstLabels: labels,
		}),

		checkInsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "check_ins_saved_total",
			Help:        "Wellness check-ins appended.",
			ConstLabels: labels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_sessions",
			Help:        "Sessions currently running.",
			ConstLabels: labels,
		}),

		pipelineErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pipeline_errors_total",
			Help:        "Errors reported by voice pipelines.",
			ConstLabels: labels,
		}),
	}
}

// Observe updates counters from a session event.
func (c *Collector) Observe(e agent.Event) {
	switch e.Type {
	case agent.EventStarted:
		c.activeSessions.Inc()
	case agent.EventEnded:
		c.activeSessions.Dec()
	case agent.EventTool:
		outcome := "ok"
		if e.Failed {
			outcome = "error"
		}
		c.toolCalls.WithLabelValues(e.Tool, outcome).Inc()
		c.toolDuration.WithLabelValues(e.Tool).Observe(e.Elapsed.Seconds())
	case agent.EventHandoff:
		c.handoffs.WithLabelValues(e.From, e.To).Inc()
	case agent.EventUsage:
		c.llmTokens.WithLabelValues("prompt").Add(float64(e.LLMPromptTokens))
		c.llmTokens.WithLabelValues("completion").Add(float64(e.LLMCompletionTokens))
		c.ttsCharacters.Add(float64(e.TTSCharacters))
	case agent.EventError:
		c.pipelineErrors.Inc()
	}
}

// OrderSaved counts a written order.
func (c *Collector) OrderSaved() { c.ordersSaved.Inc() }

// CheckInSaved counts an appended check-in.
func (c *Collector) CheckInSaved() { c.checkInsSaved.Inc() }

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
