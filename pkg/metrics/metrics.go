package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dentalhub", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dentalhub", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dentalhub", Name: "document_operations_total", Help: "Document repository operations by operation and outcome."},
		[]string{"op", "outcome"},
	)
	ListCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dentalhub", Name: "document_list_cache_lookups_total", Help: "Document list cache lookups by result (hit|miss|error)."},
		[]string{"result"},
	)
	ListInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dentalhub", Name: "document_list_invalidations_total", Help: "Document list route invalidations by triggering operation."},
		[]string{"op"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentOperations)
	reg.MustRegister(ListCacheLookups)
	reg.MustRegister(ListInvalidations)
}
