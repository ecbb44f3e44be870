package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueSize       = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "mm_queue_size", Help: "users waiting per pool"}, []string{"pool"})
	MatchesTotal    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mm_matches_total", Help: "total matches formed"}, []string{"pool"})
	ClaimConflicts  = prometheus.NewCounter(prometheus.CounterOpts{Name: "mm_claim_conflicts_total", Help: "pairs lost to a concurrent claim or leave"})
	LimitRejections = prometheus.NewCounter(prometheus.CounterOpts{Name: "mm_limit_rejections_total", Help: "joins rejected by the daily match limit"})
	QueueExpired    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mm_queue_expired_total", Help: "waiters removed by cleanup"}, []string{"reason"})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(QueueSize, MatchesTotal, ClaimConflicts, LimitRejections, QueueExpired)
	})
}
