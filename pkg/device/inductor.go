package device

import "github.com/edp1096/toy-mcusim/pkg/util"

// Inductor uses the backward Euler companion: a conductance dt/L in
// parallel with a current source holding the previous branch current.
type Inductor struct {
	BaseDevice
	Current0 float64 // Branch current at the last committed tick
}

func NewInductor(name string, value float64) *Inductor {
	return &Inductor{BaseDevice: BaseDevice{Name: name, Value: value}}
}

func (l *Inductor) GetType() string { return "L" }
func (l *Inductor) LeadCount() int  { return 2 }

func (l *Inductor) LeadIn() Lead  { return LeadOf(l, 0) }
func (l *Inductor) LeadOut() Lead { return LeadOf(l, 1) }

func (l *Inductor) Reset() {
	l.BaseDevice.Reset()
	l.Current0 = 0
}

func (l *Inductor) conductance(dt float64) float64 {
	return 1.0 / (l.Value * util.GetBDFcoeffs(dt)[0])
}

func (l *Inductor) Stamp(s Stamper, status *CircuitStatus) {
	n1, n2 := l.Nodes[0], l.Nodes[1]
	s.StampConductance(n1, n2, l.conductance(status.TimeStep))
	s.StampCurrentSource(n1, n2, l.Current0)
}

func (l *Inductor) Step(s Stamper, status *CircuitStatus) {
	vd := l.Volts[0] - l.Volts[1]
	l.Current0 += l.conductance(status.TimeStep) * vd
	l.Current = l.Current0
}
