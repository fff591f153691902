package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics contains Prometheus metrics for the authentication surface.
// All recorder methods are nil-safe so callers can run without metrics wired.
type AuthMetrics struct {
	RegistrationsTotal prometheus.Counter
	LoginsTotal        *prometheus.CounterVec
	LoginDuration      prometheus.Histogram
	TokenRefreshTotal  *prometheus.CounterVec
	LogoutsTotal       *prometheus.CounterVec
	TokenRejections    *prometheus.CounterVec
}

// NewAuthMetrics creates and registers auth metrics with the given registerer.
func NewAuthMetrics(registerer prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		RegistrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planiversary_auth_registrations_total",
			Help: "Total number of successful account registrations",
		}),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planiversary_auth_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"result"}, // result: success/invalid_credentials/not_active/error
		),
		LoginDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "planiversary_auth_login_duration_seconds",
			Help: "Time to complete a login attempt, bcrypt verification included",
			// bcrypt dominates; sub-millisecond buckets are useless here
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		TokenRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planiversary_auth_token_refresh_total",
				Help: "Total number of refresh token exchanges",
			},
			[]string{"result"}, // result: success/invalid/error
		),
		LogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planiversary_auth_logouts_total",
				Help: "Total number of logouts",
			},
			[]string{"scope"}, // scope: single/all
		),
		TokenRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planiversary_auth_token_rejections_total",
				Help: "Total number of access tokens rejected by the auth middleware",
			},
			[]string{"reason"}, // reason: expired/invalid/revoked/wrong_type
		),
	}

	registerer.MustRegister(
		m.RegistrationsTotal,
		m.LoginsTotal,
		m.LoginDuration,
		m.TokenRefreshTotal,
		m.LogoutsTotal,
		m.TokenRejections,
	)

	return m
}

// RecordRegistration increments the registration counter.
func (m *AuthMetrics) RecordRegistration() {
	if m == nil {
		return
	}
	m.RegistrationsTotal.Inc()
}

// RecordLogin records a login attempt with its result and duration.
func (m *AuthMetrics) RecordLogin(result string, seconds float64) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
	m.LoginDuration.Observe(seconds)
}

// RecordTokenRefresh records a refresh token exchange.
func (m *AuthMetrics) RecordTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshTotal.WithLabelValues(result).Inc()
}

// RecordLogout records a logout with its scope ("single" or "all").
func (m *AuthMetrics) RecordLogout(scope string) {
	if m == nil {
		return
	}
	m.LogoutsTotal.WithLabelValues(scope).Inc()
}

// RecordTokenRejection records an access token rejected by the middleware.
func (m *AuthMetrics) RecordTokenRejection(reason string) {
	if m == nil {
		return
	}
	m.TokenRejections.WithLabelValues(reason).Inc()
}
