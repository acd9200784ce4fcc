// Package metrics exposes Prometheus instrumentation for the listening
// state machine, TTS queue, and LLM adapter, grounded on
// hubenschmidt-asr-llm-tts's internal/metrics/metrics.go promauto shape.
// Metrics are an ambient concern carried regardless of the specification's
// scope of functional non-goals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_state_transitions_total",
		Help: "Listening state machine transitions by destination state",
	}, []string{"state"})

	StateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_state_duration_seconds",
		Help:    "Time spent in each listening state before transitioning out",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"state"})

	TTSQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_tts_queue_depth",
		Help: "Number of utterances waiting in the TTS queue",
	})

	TTSDiscardsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_tts_discards_total",
		Help: "Total TTS playback cancellations triggered by barge-in",
	})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_llm_request_duration_seconds",
		Help:    "LLM request latency by provider",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"provider"})

	LLMFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_llm_fallbacks_total",
		Help: "Total automatic Cloud-to-Local LLM fallbacks",
	})

	LLMTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_llm_tokens_total",
		Help: "Total LLM tokens consumed by provider",
	}, []string{"provider"})

	CommandsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_commands_dispatched_total",
		Help: "Total matched commands dispatched by bus topic",
	}, []string{"topic"})

	CaptureRMS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_capture_rms",
		Help: "Most recently measured capture-unit RMS level",
	})
)
