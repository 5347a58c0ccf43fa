// Package metrics defines the Prometheus collectors shared across the five
// core services, grounded on the teacher's infrastructure/metrics.Metrics:
// one struct of pre-registered collectors built once per process and handed
// to every service that needs to record a counter or gauge.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every collector the core services touch.
type Registry struct {
	FunctionsRegistered prometheus.Counter
	FilesRegistered     prometheus.Counter
	TasksCreated        prometheus.Counter
	TasksStaged         prometheus.Counter
	TasksFinished       *prometheus.CounterVec
	StagedQueueDepth    prometheus.Gauge
	ReaperReclaims      prometheus.Counter
	WorkerHeartbeatAge  *prometheus.GaugeVec
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
}

// New builds a Registry and registers every collector against registerer.
func New(registerer prometheus.Registerer) *Registry {
	r := &Registry{
		FunctionsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teaclave_functions_registered_total",
			Help: "Total number of functions registered.",
		}),
		FilesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teaclave_files_registered_total",
			Help: "Total number of input/output/fusion file records registered.",
		}),
		TasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teaclave_tasks_created_total",
			Help: "Total number of tasks created.",
		}),
		TasksStaged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teaclave_tasks_staged_total",
			Help: "Total number of tasks that reached the Staged state.",
		}),
		TasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teaclave_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal state, by status.",
		}, []string{"status"}),
		StagedQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teaclave_staged_queue_depth",
			Help: "Current depth of the staged-task dispatch queue.",
		}),
		ReaperReclaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teaclave_reaper_reclaims_total",
			Help: "Total number of assignments reclaimed by the scheduler reaper.",
		}),
		WorkerHeartbeatAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "teaclave_worker_heartbeat_age_seconds",
			Help: "Seconds since the last heartbeat for each actively assigned worker.",
		}, []string{"worker_id"}),
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teaclave_rpc_requests_total",
			Help: "Total RPC requests handled, by method and outcome.",
		}, []string{"method", "status"}),
		RPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teaclave_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
	}

	registerer.MustRegister(
		r.FunctionsRegistered,
		r.FilesRegistered,
		r.TasksCreated,
		r.TasksStaged,
		r.TasksFinished,
		r.StagedQueueDepth,
		r.ReaperReclaims,
		r.WorkerHeartbeatAge,
		r.RPCRequestsTotal,
		r.RPCRequestDuration,
	)
	return r
}

// NewUnregistered builds a Registry without touching a global registerer,
// for use in tests that construct many Service instances.
func NewUnregistered() *Registry {
	return New(prometheus.NewRegistry())
}
