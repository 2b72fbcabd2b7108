package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Spin outcome labels.
const (
	OutcomeIssued      = "issued"
	OutcomeCooldown    = "cooldown"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	IdentifyTotal   prometheus.Counter
	SpinsTotal      *prometheus.CounterVec
	CouponsIssued   prometheus.Counter
	CouponsRedeemed prometheus.Counter
	CouponsExpired  prometheus.Counter
	AdminLogins     *prometheus.CounterVec
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IdentifyTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortuna_identify_total",
			Help: "Total number of identify calls handled",
		}),
		SpinsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fortuna_spins_total",
			Help: "Total number of spin attempts by outcome",
		}, []string{"outcome"}),
		CouponsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortuna_coupons_issued_total",
			Help: "Total number of coupons minted",
		}),
		CouponsRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortuna_coupons_redeemed_total",
			Help: "Total number of coupons marked used",
		}),
		CouponsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortuna_coupons_expired_total",
			Help: "Total number of coupons flipped to expired by the lazy sweep",
		}),
		AdminLogins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fortuna_admin_logins_total",
			Help: "Total number of admin login attempts by result",
		}, []string{"result"}),
	}
}
