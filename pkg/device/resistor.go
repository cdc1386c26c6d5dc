package device

import "github.com/edp1096/toy-mcusim/internal/consts"

type Resistor struct {
	BaseDevice
	Tc1  float64
	Tc2  float64
	Tnom float64
}

func NewResistor(name string, value float64) *Resistor {
	return &Resistor{
		BaseDevice: BaseDevice{Name: name, Value: value},
		Tnom:       consts.ROOMTEMP,
	}
}

func (r *Resistor) GetType() string { return "R" }
func (r *Resistor) LeadCount() int  { return 2 }

func (r *Resistor) LeadIn() Lead  { return LeadOf(r, 0) }
func (r *Resistor) LeadOut() Lead { return LeadOf(r, 1) }

func (r *Resistor) Stamp(s Stamper, status *CircuitStatus) {
	s.StampResistor(r.Nodes[0], r.Nodes[1], r.temperatureAdjustedValue(status.Temp))
}

// V = IR -> I = V/R
func (r *Resistor) Step(s Stamper, status *CircuitStatus) {
	r.Current = (r.Volts[0] - r.Volts[1]) / r.temperatureAdjustedValue(status.Temp)
}

func (r *Resistor) SetValue(value float64) { r.Value = value }

func (r *Resistor) temperatureAdjustedValue(temp float64) float64 {
	if temp == 0 {
		return r.Value
	}
	dt := temp - r.Tnom
	factor := 1.0 + r.Tc1*dt + r.Tc2*dt*dt
	return r.Value * factor
}
