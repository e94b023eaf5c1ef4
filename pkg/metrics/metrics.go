// Package metrics exposes Prometheus metrics for live note sessions.
//
// All Record methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for livenotes.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionState    prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Note metrics
	NotesTotal       *prometheus.CounterVec
	ToolCallsDropped *prometheus.CounterVec
	TranscriptBytes  prometheus.Counter
	SpeechUtterances *prometheus.CounterVec

	// Audio / channel metrics
	AudioFramesTotal *prometheus.CounterVec
	AudioLevel       prometheus.Gauge

	// Finalize / persistence metrics
	FinalizeTotal    *prometheus.CounterVec
	FinalizeDuration prometheus.Histogram
	HistoryWrites    *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "livenotes"
	}

	registry := prometheus.NewRegistry()

	sessionState := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_state",
		Help:      "Current session state (0=idle 1=starting 2=running 3=stopping 4=finalizing)",
	})

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions by end reason",
		},
		[]string{"reason"},
	)

	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Recording duration of finished sessions",
		Buckets:   []float64{5, 30, 60, 120, 300, 600, 1200},
	})

	notesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_total",
			Help:      "Notes produced by kind",
		},
		[]string{"kind"},
	)

	toolCallsDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_dropped_total",
			Help:      "Tool calls dropped because they were malformed or unknown",
		},
		[]string{"tool"},
	)

	transcriptBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcript_bytes_total",
		Help:      "Transcript text received",
	})

	speechUtterances := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_utterances_total",
			Help:      "Spoken responses by outcome",
		},
		[]string{"result"},
	)

	audioFramesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_total",
			Help:      "Captured audio frames by outcome",
		},
		[]string{"result"},
	)

	audioLevel := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audio_input_rms",
		Help:      "RMS level of the last captured frame",
	})

	finalizeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_total",
			Help:      "Finalize attempts by result",
		},
		[]string{"result"},
	)

	finalizeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "finalize_duration_seconds",
		Help:      "Time spent producing the session record",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	historyWrites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "History persistence writes by result",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		sessionState,
		sessionsTotal,
		sessionDuration,
		notesTotal,
		toolCallsDropped,
		transcriptBytes,
		speechUtterances,
		audioFramesTotal,
		audioLevel,
		finalizeTotal,
		finalizeDuration,
		historyWrites,
	)

	return &Metrics{
		registry:         registry,
		SessionState:     sessionState,
		SessionsTotal:    sessionsTotal,
		SessionDuration:  sessionDuration,
		NotesTotal:       notesTotal,
		ToolCallsDropped: toolCallsDropped,
		TranscriptBytes:  transcriptBytes,
		SpeechUtterances: speechUtterances,
		AudioFramesTotal: audioFramesTotal,
		AudioLevel:       audioLevel,
		FinalizeTotal:    finalizeTotal,
		FinalizeDuration: finalizeDuration,
		HistoryWrites:    historyWrites,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(state))
}

// RecordSessionEnd records a session ending for reason ("manual", "timeout", "error", "closed").
func (m *Metrics) RecordSessionEnd(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordNote(kind string) {
	if m == nil {
		return
	}
	m.NotesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordToolCallDropped(tool string) {
	if m == nil {
		return
	}
	m.ToolCallsDropped.WithLabelValues(tool).Inc()
}

func (m *Metrics) RecordTranscript(bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.TranscriptBytes.Add(float64(bytes))
}

func (m *Metrics) RecordSpeech(result string) {
	if m == nil {
		return
	}
	m.SpeechUtterances.WithLabelValues(result).Inc()
}

// RecordAudioFrame records a captured frame as "sent" or "dropped".
func (m *Metrics) RecordAudioFrame(result string) {
	if m == nil {
		return
	}
	m.AudioFramesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetAudioLevel(rms float64) {
	if m == nil {
		return
	}
	m.AudioLevel.Set(rms)
}

// RecordFinalize records a finalize result ("ok", "empty", "degraded").
func (m *Metrics) RecordFinalize(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FinalizeTotal.WithLabelValues(result).Inc()
	m.FinalizeDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordHistoryWrite(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.HistoryWrites.WithLabelValues(result).Inc()
}
