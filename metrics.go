package datadic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsDictOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datadic_dictionary_ops",
		Help: "Data dictionary operation counters",
	}, []string{"op"})

	metricsFindHit  = metricsDictOps.WithLabelValues("find_hit")
	metricsFindMiss = metricsDictOps.WithLabelValues("find_miss")
	metricsPut      = metricsDictOps.WithLabelValues("put")
	metricsWrite    = metricsDictOps.WithLabelValues("write")
	metricsRemove   = metricsDictOps.WithLabelValues("remove")
	metricsRename   = metricsDictOps.WithLabelValues("rename")
	metricsLoad     = metricsDictOps.WithLabelValues("load")

	metricsDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datadic_decode_errors",
		Help: "Number of keys or dictionary records that failed to decode",
	})
)

type DictStats struct {
	Tables     int
	Indexes    int
	NextNumber uint32

	MaxKeyLen        int
	MaxUnpackInfoLen int
}

// Stats summarizes the loaded dictionary.
func (dm *DictManager) Stats() DictStats {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	result := DictStats{
		Tables:     len(dm.tables),
		NextNumber: dm.seq.Peek(),
	}
	for _, tbl := range dm.tables {
		for _, kd := range tbl.keyDefs {
			result.Indexes++
			result.MaxKeyLen = max(result.MaxKeyLen, kd.MaxStorageFmtLength())
			result.MaxUnpackInfoLen = max(result.MaxUnpackInfoLen, kd.MaxUnpackInfoLength())
		}
	}
	return result
}
