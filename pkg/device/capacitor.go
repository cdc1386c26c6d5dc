package device

import "github.com/edp1096/toy-mcusim/pkg/util"

// Capacitor uses the backward Euler companion: a conductance C/dt in
// parallel with a current source holding the previous voltage.
type Capacitor struct {
	BaseDevice
	Voltage0 float64 // Voltage at the last committed tick
	Initial  float64 // Voltage after Reset
}

func NewCapacitor(name string, value float64) *Capacitor {
	return &Capacitor{BaseDevice: BaseDevice{Name: name, Value: value}}
}

func (c *Capacitor) GetType() string { return "C" }
func (c *Capacitor) LeadCount() int  { return 2 }

func (c *Capacitor) LeadIn() Lead  { return LeadOf(c, 0) }
func (c *Capacitor) LeadOut() Lead { return LeadOf(c, 1) }

func (c *Capacitor) Reset() {
	c.BaseDevice.Reset()
	c.Voltage0 = c.Initial
}

func (c *Capacitor) Stamp(s Stamper, status *CircuitStatus) {
	n1, n2 := c.Nodes[0], c.Nodes[1]
	geq := c.Value * util.GetBDFcoeffs(status.TimeStep)[0]
	ceq := geq * c.Voltage0

	s.StampConductance(n1, n2, geq)
	s.StampCurrentSource(n2, n1, ceq)
}

func (c *Capacitor) Step(s Stamper, status *CircuitStatus) {
	vd := c.Volts[0] - c.Volts[1]
	c.Current = c.Value * (vd - c.Voltage0) / status.TimeStep
	c.Voltage0 = vd
}
