package httpsig

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts signing and validation outcomes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	signaturesCreated prometheus.Counter
	validations       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. When reg is
// nil, prometheus.DefaultRegisterer is used. Collectors that are already
// registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "httpsig",
		Name:      "signatures_created_total",
		Help:      "Number of request signatures produced.",
	})

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpsig",
		Name:      "validations_total",
		Help:      "Number of request signature validations by result.",
	}, []string{"result"})

	m := &Metrics{}

	c, err := register(reg, created)
	if err != nil {
		return nil, err
	}
	m.signaturesCreated = c.(prometheus.Counter)

	c, err = register(reg, validations)
	if err != nil {
		return nil, err
	}
	m.validations = c.(*prometheus.CounterVec)

	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}

		return nil, err
	}

	return c, nil
}

func (m *Metrics) signed() {
	if m == nil {
		return
	}

	m.signaturesCreated.Inc()
}

func (m *Metrics) validated(err error) {
	if m == nil {
		return
	}

	result := "valid"
	if err != nil {
		result = "invalid"
	}

	m.validations.WithLabelValues(result).Inc()
}
