package device

import "math"

// VoltageSource drives V(pos) - V(neg). Lead 0 is negative, lead 1 positive.
type VoltageSource struct {
	BaseDevice
	vtype SourceType
	// DC, common params
	dcValue float64
	// SIN params
	amplitude float64
	freq      float64
	phase     float64
	// PULSE params
	v1     float64
	v2     float64
	delay  float64
	rise   float64
	fall   float64
	pWidth float64
	period float64
	// SQUARE params
	duty float64
	// PWL params
	times  []float64
	values []float64
}

func NewDCVoltageSource(name string, value float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{Name: name, Value: value},
		vtype:      DC,
		dcValue:    value,
	}
}

func NewSinVoltageSource(name string, offset, amplitude, freq, phase float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{Name: name, Value: offset},
		vtype:      SIN,
		dcValue:    offset,
		amplitude:  amplitude,
		freq:       freq,
		phase:      phase,
	}
}

func NewPulseVoltageSource(name string, v1, v2, delay, rise, fall, pWidth, period float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{Name: name, Value: v1},
		vtype:      PULSE,
		v1:         v1,
		v2:         v2,
		delay:      delay,
		rise:       rise,
		fall:       fall,
		pWidth:     pWidth,
		period:     period,
	}
}

// NewSquareVoltageSource toggles between offset-amplitude and
// offset+amplitude, high for duty of each period.
func NewSquareVoltageSource(name string, offset, amplitude, freq, duty float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{Name: name, Value: offset},
		vtype:      SQUARE,
		dcValue:    offset,
		amplitude:  amplitude,
		freq:       freq,
		duty:       math.Min(math.Max(duty, 0), 1),
	}
}

func NewPWLVoltageSource(name string, times []float64, values []float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{Name: name, Value: values[0]}, // First value as initial value
		vtype:      PWL,
		times:      times,
		values:     values,
	}
}

func (v *VoltageSource) GetType() string         { return "V" }
func (v *VoltageSource) LeadCount() int          { return 2 }
func (v *VoltageSource) VoltageSourceCount() int { return 1 }

func (v *VoltageSource) LeadNeg() Lead { return LeadOf(v, 0) }
func (v *VoltageSource) LeadPos() Lead { return LeadOf(v, 1) }

func (v *VoltageSource) GetVoltage(t float64) float64 {
	switch v.vtype {
	case DC:
		return v.dcValue
	case SIN:
		phaseRad := v.phase * math.Pi / 180.0
		return v.dcValue + v.amplitude*math.Sin(2.0*math.Pi*v.freq*t+phaseRad)
	case SQUARE:
		return v.getSquareVoltage(t)
	case PULSE:
		return v.getPulseVoltage(t)
	case PWL:
		return v.getPWLVoltage(t)
	default:
		return 0
	}
}

func (v *VoltageSource) Stamp(s Stamper, status *CircuitStatus) {
	s.StampVoltageSource(v.Nodes[0], v.Nodes[1], v.VoltSource)
	s.UpdateVoltageSource(v.VoltSource, v.GetVoltage(status.Time))
}

// Branch current flows out of the positive lead.
func (v *VoltageSource) GetVoltageDelta() float64 { return v.Volts[1] - v.Volts[0] }

func (v *VoltageSource) getSquareVoltage(t float64) float64 {
	if v.freq <= 0 {
		return v.dcValue + v.amplitude
	}
	p := v.freq * t
	if p-math.Floor(p) < v.duty {
		return v.dcValue + v.amplitude
	}
	return v.dcValue - v.amplitude
}

func (v *VoltageSource) getPulseVoltage(t float64) float64 {
	if t < v.delay {
		return v.v1
	}

	t = t - v.delay
	if v.period > 0 {
		t = math.Mod(t, v.period)
	}

	if t < v.rise {
		return v.v1 + (v.v2-v.v1)*t/v.rise
	}

	if t < v.rise+v.pWidth {
		return v.v2
	}

	fallStart := v.rise + v.pWidth
	if t < fallStart+v.fall {
		return v.v2 - (v.v2-v.v1)*(t-fallStart)/v.fall
	}

	return v.v1
}

func (v *VoltageSource) getPWLVoltage(t float64) float64 {
	if t <= v.times[0] {
		return v.values[0]
	}

	lastIdx := len(v.times) - 1
	if t >= v.times[lastIdx] {
		return v.values[lastIdx]
	}

	for i := 1; i < len(v.times); i++ {
		if t <= v.times[i] {
			t1, t2 := v.times[i-1], v.times[i]
			v1, v2 := v.values[i-1], v.values[i]
			slope := (v2 - v1) / (t2 - t1)
			return v1 + slope*(t-t1)
		}
	}

	return v.values[lastIdx]
}

func (v *VoltageSource) SetValue(value float64) {
	v.Value = value
	v.dcValue = value
}
