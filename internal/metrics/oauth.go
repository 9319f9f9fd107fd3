package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OAuth flow Prometheus metrics. Defined in a standalone package to avoid
// import cycles between the HTTP handlers and the store client.

var (
	LoginStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_login_started_total",
		Help: "Intentos de login iniciados, por plataforma",
	}, []string{"platform"})

	LoginCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_login_completed_total",
		Help: "Logins completados con sesión establecida, por plataforma",
	}, []string{"platform"})

	LoginFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_login_failed_total",
		Help: "Logins fallidos, por plataforma y razón",
	}, []string{"platform", "reason"})

	StoreRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_store_requests_total",
		Help: "Requests al profile store, por operación y resultado",
	}, []string{"op", "outcome"})
)

// Register registers the flow metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{LoginStarted, LoginCompleted, LoginFailed, StoreRequests} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
