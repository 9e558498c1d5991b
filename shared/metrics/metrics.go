package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	oauthLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "oauth_logins_total",
			Help:      "OAuth login attempts by provider, resolution path and outcome.",
		},
		[]string{"provider", "path", "outcome"},
	)

	passwordResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "password_reset_total",
			Help:      "Password reset operations by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	registerOnce sync.Once
)

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(oauthLogins, passwordResets)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOAuthLogin counts one login attempt.
func ObserveOAuthLogin(provider, path, outcome string) {
	oauthLogins.WithLabelValues(provider, path, outcome).Inc()
}

// ObservePasswordReset counts one forgot/reset operation.
func ObservePasswordReset(stage, outcome string) {
	passwordResets.WithLabelValues(stage, outcome).Inc()
}
