package device

import "math"

// CurrentSource draws current out of lead 0 and pushes it into lead 1, the
// SPICE n+ n- convention.
type CurrentSource struct {
	BaseDevice
	ctype SourceType
	// DC, common params
	dcValue float64
	// SIN params
	amplitude float64
	freq      float64
	phase     float64
	// PULSE params
	i1     float64
	i2     float64
	delay  float64
	rise   float64
	fall   float64
	pWidth float64
	period float64
}

func NewDCCurrentSource(name string, value float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{Name: name, Value: value},
		ctype:      DC,
		dcValue:    value,
	}
}

func NewSinCurrentSource(name string, offset, amplitude, freq, phase float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{Name: name, Value: offset},
		ctype:      SIN,
		dcValue:    offset,
		amplitude:  amplitude,
		freq:       freq,
		phase:      phase,
	}
}

func NewPulseCurrentSource(name string, i1, i2, delay, rise, fall, pWidth, period float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{Name: name, Value: i1},
		ctype:      PULSE,
		i1:         i1,
		i2:         i2,
		delay:      delay,
		rise:       rise,
		fall:       fall,
		pWidth:     pWidth,
		period:     period,
	}
}

func (i *CurrentSource) GetType() string { return "I" }
func (i *CurrentSource) LeadCount() int  { return 2 }

func (i *CurrentSource) LeadIn() Lead  { return LeadOf(i, 0) }
func (i *CurrentSource) LeadOut() Lead { return LeadOf(i, 1) }

func (i *CurrentSource) CurrentAt(t float64) float64 {
	switch i.ctype {
	case DC:
		return i.dcValue
	case SIN:
		phaseRad := i.phase * math.Pi / 180.0
		return i.dcValue + i.amplitude*math.Sin(2.0*math.Pi*i.freq*t+phaseRad)
	case PULSE:
		return i.getPulseCurrent(t)
	default:
		return 0
	}
}

func (i *CurrentSource) Stamp(s Stamper, status *CircuitStatus) {
	i.Current = i.CurrentAt(status.Time)
	s.StampCurrentSource(i.Nodes[0], i.Nodes[1], i.Current)
}

func (i *CurrentSource) getPulseCurrent(t float64) float64 {
	if t < i.delay {
		return i.i1
	}

	t = t - i.delay
	if i.period > 0 {
		t = math.Mod(t, i.period)
	}

	if t < i.rise {
		return i.i1 + (i.i2-i.i1)*t/i.rise
	}
	if t < i.rise+i.pWidth {
		return i.i2
	}
	fallStart := i.rise + i.pWidth
	if t < fallStart+i.fall {
		return i.i2 - (i.i2-i.i1)*(t-fallStart)/i.fall
	}
	return i.i1
}

func (i *CurrentSource) SetValue(value float64) {
	i.Value = value
	i.dcValue = value
}
