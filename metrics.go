package gudalt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deviceMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gudalt_device_memory_bytes",
		Help: "Device memory currently handed out by all memory pools",
	})
	deviceAllocations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gudalt_device_allocations",
		Help: "Number of live device allocations",
	})
	mallocFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gudalt_malloc_failures_total",
		Help: "Allocations refused because the memory limit was reached",
	})
	streamTasks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gudalt_stream_tasks_total",
		Help: "Tasks executed by stream workers",
	})
	streamFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gudalt_stream_faults_total",
		Help: "Stream tasks that returned an error or panicked",
	})
)
