package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters for the betting session. Registered once in Register.
var (
	BetsPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flarebets_bets_placed_total",
		Help: "Bets successfully placed",
	})
	PayoutsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flarebets_payouts_claimed_total",
		Help: "Payouts successfully claimed",
	})
	RacesSettled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flarebets_races_settled_total",
		Help: "Race results written by the oracle",
	})
	EventRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flarebets_event_refreshes_total",
		Help: "Event feed refreshes completed",
	})
	EventRefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flarebets_event_refresh_failures_total",
		Help: "Event feed refreshes that failed",
	})
	OperationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flarebets_operation_errors_total",
		Help: "Failed operations by name",
	}, []string{"operation"})
)

var registerOnce sync.Once

// Register installs the counters into the default registry. Safe to call
// from any goroutine; registration happens once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BetsPlaced,
			PayoutsClaimed,
			RacesSettled,
			EventRefreshes,
			EventRefreshFailures,
			OperationErrors,
		)
	})
}
