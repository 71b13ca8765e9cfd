// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	ChallengesIssued   prometheus.Counter
	ChallengesConsumed prometheus.Counter
	AuthRejected       *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
	SessionsMinted     prometheus.Counter
	AdminSubmissions   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ChallengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_challenges_issued_total",
			Help: "Challenges handed out to clients.",
		}),
		ChallengesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_challenges_consumed_total",
			Help: "Challenges consumed by a verification attempt.",
		}),
		AuthRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rejected_total",
			Help: "Failed authentication attempts by reason.",
		}, []string{"reason"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
		SessionsMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_minted_total",
			Help: "Session tokens issued after successful verification.",
		}),
		AdminSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_admin_submissions_total",
			Help: "Admin ledger submissions by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChallengesIssued,
		m.ChallengesConsumed,
		m.AuthRejected,
		m.RateLimited,
		m.SessionsMinted,
		m.AdminSubmissions,
	)
	return m
}

// Handler serves the scrape endpoint for this registry only.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
