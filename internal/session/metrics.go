package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for a Machine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connectAttempts     prometheus.Counter
	connectFailures     prometheus.Counter
	connected           prometheus.Gauge
	reconnectPeriod     prometheus.Gauge
	messages            *prometheus.CounterVec
	stateEvents         *prometheus.CounterVec
	subscribeFailures   prometheus.Counter
	provisionalExpiries prometheus.Counter
	commands            *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors. Register the result with a
// prometheus.Registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nomiku_session_connect_attempts_total",
			Help: "Transport connection attempts",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nomiku_session_connect_failures_total",
			Help: "Failed connection attempts, including directory failures",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nomiku_session_connected",
			Help: "1 while the transport is connected",
		}),
		reconnectPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nomiku_session_reconnect_period_seconds",
			Help: "Current reconnect backoff period",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nomiku_session_messages_total",
			Help: "Inbound device messages by topic leaf",
		}, []string{"topic"}),
		stateEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nomiku_session_state_events_total",
			Help: "Emitted state events by origin",
		}, []string{"origin"}),
		subscribeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nomiku_session_subscribe_failures_total",
			Help: "Device subscriptions refused or failed",
		}),
		provisionalExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nomiku_session_provisional_expiries_total",
			Help: "Local changes reverted because the device never confirmed them",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nomiku_session_commands_total",
			Help: "State changes dispatched to the directory by result",
		}, []string{"result"}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.connectAttempts.Describe(ch)
	m.connectFailures.Describe(ch)
	m.connected.Describe(ch)
	m.reconnectPeriod.Describe(ch)
	m.messages.Describe(ch)
	m.stateEvents.Describe(ch)
	m.subscribeFailures.Describe(ch)
	m.provisionalExpiries.Describe(ch)
	m.commands.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.connectAttempts.Collect(ch)
	m.connectFailures.Collect(ch)
	m.connected.Collect(ch)
	m.reconnectPeriod.Collect(ch)
	m.messages.Collect(ch)
	m.stateEvents.Collect(ch)
	m.subscribeFailures.Collect(ch)
	m.provisionalExpiries.Collect(ch)
	m.commands.Collect(ch)
}

func (m *Metrics) connectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

func (m *Metrics) connectFailed(period time.Duration) {
	if m == nil {
		return
	}
	m.connectFailures.Inc()
	m.connected.Set(0)
	m.reconnectPeriod.Set(period.Seconds())
}

func (m *Metrics) setConnected(connected bool, period time.Duration) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
	m.reconnectPeriod.Set(period.Seconds())
}

func (m *Metrics) message(leaf string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(leaf).Inc()
}

func (m *Metrics) stateEvent(origin Origin) {
	if m == nil {
		return
	}
	m.stateEvents.WithLabelValues(string(origin)).Inc()
}

func (m *Metrics) subscribeFailed() {
	if m == nil {
		return
	}
	m.subscribeFailures.Inc()
}

func (m *Metrics) provisionalExpired() {
	if m == nil {
		return
	}
	m.provisionalExpiries.Inc()
}

func (m *Metrics) command(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(result).Inc()
}
