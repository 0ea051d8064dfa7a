package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes workflow-level counters.
type Metrics struct {
	registrationTransitions *prometheus.CounterVec
	rosterChanges           *prometheus.CounterVec
	compensations           *prometheus.CounterVec
	reconcileRemoved        *prometheus.CounterVec
	rateLimitDenied         *prometheus.CounterVec
}

func New(cfg Config, registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	registrationTransitions, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agencydesk_registration_transitions_total",
		Help:        "Registration state transitions by outcome.",
		ConstLabels: labels,
	}, []string{"transition", "outcome"}))
	if err != nil {
		return nil, err
	}
	rosterChanges, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agencydesk_roster_changes_total",
		Help:        "Roster mutations by operation and outcome.",
		ConstLabels: labels,
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}
	compensations, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agencydesk_compensations_total",
		Help:        "Compensating actions run after a partial failure.",
		ConstLabels: labels,
	}, []string{"step", "outcome"}))
	if err != nil {
		return nil, err
	}
	reconcileRemoved, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agencydesk_reconcile_removed_total",
		Help:        "Orphaned records removed by the reconciliation sweep.",
		ConstLabels: labels,
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agencydesk_rate_limit_denied_total",
		Help:        "Requests rejected by the rate limiter.",
		ConstLabels: labels,
	}, []string{"endpoint"}))
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		registrationTransitions: registrationTransitions,
		rosterChanges:           rosterChanges,
		compensations:           compensations,
		reconcileRemoved:        reconcileRemoved,
		rateLimitDenied:         rateLimitDenied,
	}

	return m, nil
}

// register returns the already registered collector when one with the same
// descriptor exists, so repeated construction shares series.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// Outcome collapses an operation error into a low-cardinality label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func (m *Metrics) RecordRegistrationTransition(transition string, err error) {
	if m == nil {
		return
	}
	m.registrationTransitions.WithLabelValues(strings.TrimSpace(transition), Outcome(err)).Inc()
}

func (m *Metrics) RecordRosterChange(operation string, err error) {
	if m == nil {
		return
	}
	m.rosterChanges.WithLabelValues(strings.TrimSpace(operation), Outcome(err)).Inc()
}

func (m *Metrics) RecordCompensation(step string, err error) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(strings.TrimSpace(step), Outcome(err)).Inc()
}

func (m *Metrics) RecordReconcileRemoved(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileRemoved.WithLabelValues(strings.TrimSpace(kind)).Add(float64(n))
}

func (m *Metrics) RecordRateLimitDenied(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(strings.TrimSpace(endpoint)).Inc()
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "agencydesk"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{"service": serviceName, "env": environment}
}
