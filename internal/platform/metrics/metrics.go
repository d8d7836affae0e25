// Package metrics holds the Prometheus registration helper shared by the
// packages that export collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the service exports.
const Namespace = "genrelay"

// Register registers c with reg and returns the collector to use. When an
// identical collector is already registered, for example because a second
// component was built against the default registry, the existing one is
// returned instead. Any other registration error panics.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
