package metrics

import "time"

// Reload outcomes used as the result label.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
)

// Operator is the metric set the operator loop updates.
type Operator struct {
	Reloads         *Counter
	ChildExits      *Counter
	CompileDuration *Histogram
	PortsReserved   *Gauge
	CertDaysLeft    *Gauge
}

// NewOperator registers the operator metrics on r.
func NewOperator(r *Registry) *Operator {
	return &Operator{
		Reloads: r.NewCounter(
			"reflector_reloads_total",
			"Reload attempts by outcome",
			"result",
		),
		ChildExits: r.NewCounter(
			"reflector_child_exits_total",
			"Unexpected exits of supervised processes",
			"child",
		),
		CompileDuration: r.NewHistogram(
			"reflector_compile_duration_seconds",
			"Time spent compiling a topology",
			nil,
		),
		PortsReserved: r.NewGauge(
			"reflector_ports_reserved",
			"Bridge ports held by the live configuration",
		),
		CertDaysLeft: r.NewGauge(
			"reflector_certificate_days_remaining",
			"Days of validity left on each camouflage certificate",
			"domain",
		),
	}
}

// ObserveCompile records the duration since start.
func (o *Operator) ObserveCompile(start time.Time) {
	if o == nil {
		return
	}
	o.CompileDuration.Observe(time.Since(start).Seconds())
}

// Reload counts one reload attempt.
func (o *Operator) Reload(result string) {
	if o == nil {
		return
	}
	o.Reloads.With(result).Inc()
}

// ChildExited counts one unexpected exit.
func (o *Operator) ChildExited(child string) {
	if o == nil {
		return
	}
	o.ChildExits.With(child).Inc()
}

// SetPorts publishes the number of reserved bridge ports.
func (o *Operator) SetPorts(n int) {
	if o == nil {
		return
	}
	o.PortsReserved.With().Set(float64(n))
}

// SetCertificates replaces the per-domain validity gauge.
func (o *Operator) SetCertificates(days map[string]float64) {
	if o == nil {
		return
	}
	o.CertDaysLeft.Reset()
	for domain, d := range days {
		o.CertDaysLeft.With(domain).Set(d)
	}
}
