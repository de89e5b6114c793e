package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collector holds the vault counters. Each vault gets its own collector so
// that several vaults (tests, embedded use) never clash on a shared registry.
type Collector struct {
	Unlocks         *prometheus.CounterVec
	Denied          *prometheus.CounterVec
	AutoLocks       prometheus.Counter
	BytesWritten    prometheus.Counter
	BytesRead       prometheus.Counter
	InvalidRequests prometheus.Counter
	Interrupted     prometheus.Counter
	Unlocked        prometheus.Gauge
}

func New() *Collector {
	return &Collector{
		Unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_unlock_total", Help: "Unlock attempts by result",
		}, []string{"result"}),
		Denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_denied_total", Help: "Operations rejected because the vault was locked",
		}, []string{"op"}),
		AutoLocks:       prometheus.NewCounter(prometheus.CounterOpts{Name: "vault_autolock_total", Help: "Sessions closed by the auto-lock timer"}),
		BytesWritten:    prometheus.NewCounter(prometheus.CounterOpts{Name: "vault_bytes_written_total", Help: "Secret bytes accepted by writes"}),
		BytesRead:       prometheus.NewCounter(prometheus.CounterOpts{Name: "vault_bytes_read_total", Help: "Secret bytes delivered by reads"}),
		InvalidRequests: prometheus.NewCounter(prometheus.CounterOpts{Name: "vault_invalid_requests_total", Help: "Malformed requests and unknown control codes"}),
		Interrupted:     prometheus.NewCounter(prometheus.CounterOpts{Name: "vault_interrupted_total", Help: "Operations abandoned while waiting for the vault lock"}),
		Unlocked:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "vault_unlocked", Help: "1 while a session is open"}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.Unlocks, c.Denied, c.AutoLocks, c.BytesWritten, c.BytesRead,
		c.InvalidRequests, c.Interrupted, c.Unlocked,
	}
}

// NewRegistry registers the collector together with the Go and process
// collectors on a private registry.
func NewRegistry(logger zerolog.Logger, c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	toRegister := append(c.collectors(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, col := range toRegister {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	logger.Info().Msg("prometheus metrics initialized")
	return reg, nil
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
