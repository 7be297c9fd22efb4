package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoker_batches_total",
			Help: "Total number of invocation batches by result.",
		},
		[]string{"result"},
	)
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoker_actions_total",
			Help: "Total number of dispatched actions by kind.",
		},
		[]string{"action"},
	)
	ordersOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_orders_open",
		Help: "Trigger orders currently open.",
	})
	ordersExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trigger_orders_executed_total",
			Help: "Total number of executed trigger orders.",
		},
		[]string{"market"},
	)
	keeperFeePaid = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "keeper_fee_paid",
		Help:    "Keeper fees paid per execution in settlement units.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 25},
	})
	collateralRoutes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collateral_route_total",
			Help: "Collateral conversions by direction and path.",
		},
		[]string{"direction", "path"},
	)
)

// Init registers metrics with the registry once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			batchesTotal,
			actionsTotal,
			ordersOpen,
			ordersExecuted,
			keeperFeePaid,
			collateralRoutes,
		)
	})
}

// Handler exposes the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncBatch counts a finished batch; result is "ok" or "reverted".
func IncBatch(result string) {
	Init()
	batchesTotal.WithLabelValues(result).Inc()
}

func IncAction(action string) {
	Init()
	actionsTotal.WithLabelValues(action).Inc()
}

// AddOpenOrders moves the open order gauge by delta.
func AddOpenOrders(delta int) {
	Init()
	if delta == 0 {
		return
	}
	ordersOpen.Add(float64(delta))
}

func IncOrderExecuted(market string) {
	Init()
	ordersExecuted.WithLabelValues(market).Inc()
}

func ObserveKeeperFee(fee float64) {
	Init()
	keeperFeePaid.Observe(fee)
}

// IncCollateralRoute counts one conversion; direction is "wrap" or "unwrap".
func IncCollateralRoute(direction, path string) {
	Init()
	collateralRoutes.WithLabelValues(direction, path).Inc()
}
