package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	PoliciesUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "policies_uploaded_total", Help: "Number of policy uploads by mode (mock|delegated)."},
		[]string{"mode"},
	)
	PoliciesIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "policies_indexed_total", Help: "Number of simulated Processing -> Indexed transitions."},
	)
	QuestionsAsked = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "questions_asked_total", Help: "Number of questions answered by mode and outcome (answered|unknown)."},
		[]string{"mode", "outcome"},
	)
	AuditEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "audit_evictions_total", Help: "Number of audit entries dropped by the retention bound."},
	)
	BackendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "backend_failures_total", Help: "Number of failed delegated backend calls by operation."},
		[]string{"op"},
	)
	StoreCorruptReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "clearpolicy", Name: "store_corrupt_reads_total", Help: "Number of unreadable store values treated as empty, by key."},
		[]string{"key"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(PoliciesUploaded)
	reg.MustRegister(PoliciesIndexed)
	reg.MustRegister(QuestionsAsked)
	reg.MustRegister(AuditEvictions)
	reg.MustRegister(BackendFailures)
	reg.MustRegister(StoreCorruptReads)
}
