package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer records stack, edge and trigger metrics. A nil *Observer is valid
// and records nothing.
type Observer struct {
	transitions   *prometheus.CounterVec
	operations    *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	edgeResponses *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
}

// NewObserver registers the collectors on reg. A nil reg uses the default
// registerer.
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Observer{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitestack_lifecycle_transitions_total",
			Help: "Stack lifecycle state transitions by target state",
		}, []string{"state"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitestack_resource_operations_total",
			Help: "Resource create and delete calls by kind and result",
		}, []string{"kind", "op", "result"}),
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitestack_resource_operation_duration_seconds",
			Help:    "Duration of resource create and delete calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind", "op"}),
		edgeResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitestack_edge_responses_total",
			Help: "Edge responses by status and whether an error fallback was applied",
		}, []string{"status", "fallback"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitestack_trigger_deliveries_total",
			Help: "Upload trigger deliveries by result",
		}, []string{"result"}),
	}
}

func (o *Observer) ObserveTransition(state string) {
	if o == nil {
		return
	}
	o.transitions.WithLabelValues(state).Inc()
}

// ObserveOperation records one create or delete of a resource kind.
func (o *Observer) ObserveOperation(kind, op string, err error, d time.Duration) {
	if o == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	o.operations.WithLabelValues(kind, op, result).Inc()
	o.opDuration.WithLabelValues(kind, op).Observe(d.Seconds())
}

func (o *Observer) ObserveEdgeResponse(status int, fallback bool) {
	if o == nil {
		return
	}
	o.edgeResponses.WithLabelValues(strconv.Itoa(status), strconv.FormatBool(fallback)).Inc()
}

// ObserveDelivery records a trigger delivery outcome: delivered, retried or
// dropped.
func (o *Observer) ObserveDelivery(result string) {
	if o == nil {
		return
	}
	o.deliveries.WithLabelValues(result).Inc()
}
