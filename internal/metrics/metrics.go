package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the authentication flow.
type Metrics struct {
	OtpIssued          *prometheus.CounterVec
	OtpVerifications   *prometheus.CounterVec
	CaptchaGenerated   prometheus.Counter
	Escalations        *prometheus.CounterVec
	Logins             *prometheus.CounterVec
	AuditEventsDropped prometheus.Counter
	UpstreamDuration   *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg builds unregistered
// collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OtpIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_otp_issued_total",
			Help: "One-time codes issued, by result",
		}, []string{"result"}),
		OtpVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_otp_verifications_total",
			Help: "OTP verification attempts, by outcome",
		}, []string{"outcome"}),
		CaptchaGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "portal_captcha_generated_total",
			Help: "Human challenges rendered",
		}),
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_escalations_total",
			Help: "Sessions reaching the attempt ceiling, by lockout mode",
		}, []string{"mode"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_logins_total",
			Help: "Login steps, by result",
		}, []string{"result"}),
		AuditEventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "portal_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_upstream_duration_seconds",
			Help:    "Latency of calls to external collaborators",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"collaborator"}),
	}
}

// ObserveUpstream records the time since start for collaborator.
func (m *Metrics) ObserveUpstream(collaborator string, start time.Time) {
	m.UpstreamDuration.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncOtpIssued(result string) {
	m.OtpIssued.WithLabelValues(result).Inc()
}

func (m *Metrics) IncVerification(outcome string) {
	m.OtpVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCaptcha() {
	m.CaptchaGenerated.Inc()
}

func (m *Metrics) IncEscalation(mode string) {
	m.Escalations.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncLogin(result string) {
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAuditDropped() {
	m.AuditEventsDropped.Inc()
}
