package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de las operaciones contra el document store. Viven en un paquete
// propio para que store/mongo e identity las usen sin ciclos de import.

var (
	StoreOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docstore_op_duration_ms",
		Help:    "Latencia de operaciones del repositorio en milisegundos",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
	}, []string{"collection", "op"})

	StoreOpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_op_errors_total",
		Help: "Operaciones del repositorio que terminaron en error",
	}, []string{"collection", "op", "kind"})

	RoleCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_role_cache_lookups_total",
		Help: "Lookups de roles por nombre contra el cache (hit/miss)",
	}, []string{"result"})
)

// ObserveStoreOp registra la duración de una operación y, si falló, el error por tipo.
func ObserveStoreOp(collection, op string, took time.Duration, errKind string) {
	StoreOpDuration.WithLabelValues(collection, op).Observe(float64(took.Microseconds()) / 1000)
	if errKind != "" {
		StoreOpErrors.WithLabelValues(collection, op, errKind).Inc()
	}
}

// RegisterStore registra las métricas del store en reg (o el default si es nil).
func RegisterStore(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{StoreOpDuration, StoreOpErrors, RoleCacheLookups} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
