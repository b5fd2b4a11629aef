package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exports natural-id statistics as Prometheus metrics labelled by entity
type Prometheus struct {
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CachePuts     *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewPrometheus registers the metrics with reg; nil uses the default registerer
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Prometheus{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "natid4go_cache_hits_total",
			Help: "Natural-id resolutions answered by the resolution cache",
		}, []string{"entity"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "natid4go_cache_misses_total",
			Help: "Natural-id resolutions not found in the resolution cache",
		}, []string{"entity"}),
		CachePuts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "natid4go_cache_puts_total",
			Help: "Entries written to the resolution cache",
		}, []string{"entity"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "natid4go_query_duration_seconds",
			Help:    "Duration of natural-id resolution queries against the store",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"entity"}),
	}
}

func (p *Prometheus) NaturalIDCacheHit(entity string) {
	p.CacheHits.WithLabelValues(entity).Inc()
}

func (p *Prometheus) NaturalIDCacheMiss(entity string) {
	p.CacheMisses.WithLabelValues(entity).Inc()
}

func (p *Prometheus) NaturalIDCachePut(entity string) {
	p.CachePuts.WithLabelValues(entity).Inc()
}

func (p *Prometheus) NaturalIDQueryExecuted(entity string, duration time.Duration) {
	p.QueryDuration.WithLabelValues(entity).Observe(duration.Seconds())
}
