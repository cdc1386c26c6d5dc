package chip

import "fmt"

// PinMode values match the Arduino INPUT, OUTPUT and INPUT_PULLUP constants.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullup
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "INPUT"
	case Output:
		return "OUTPUT"
	case InputPullup:
		return "INPUT_PULLUP"
	}
	return fmt.Sprintf("PinMode(%d)", int(m))
}

// SignalType selects how a pin is driven and demodulated.
type SignalType int

const (
	Digital SignalType = iota
	Analog
	DigitalPWM
)

func (s SignalType) String() string {
	switch s {
	case Digital:
		return "digital"
	case Analog:
		return "analog"
	case DigitalPWM:
		return "pwm"
	}
	return fmt.Sprintf("SignalType(%d)", int(s))
}

// Role marks the supply and reset pins, which firmware cannot address.
type Role int

const (
	IO Role = iota
	VCC
	GND
	RESET
)

// Pin is one chip terminal as the firmware sees it. The duty cycle is the
// canonical value: a digital level is 0 or 1, a PWM output its duty, an
// input the last demodulated reading.
type Pin struct {
	Name       string
	Mode       PinMode
	Type       SignalType
	DutyCycle  float64
	Current    float64
	VoltSource int
	MaxVoltage float64
	Role       Role
	PWM        bool    // has a hardware PWM channel
	Frequency  float64 // carrier and demodulation window (Hz)

	defaultType SignalType
	origin      float64 // carrier phase anchor (s)
	drive       float64 // output voltage for the next solve
	acc         float64 // demodulation integral
	span        float64 // time covered by acc
}

// Control reports whether the pin is VCC, GND or RESET.
func (p *Pin) Control() bool { return p.Role != IO }

func (p *Pin) SetDutyCycle(d float64) { p.DutyCycle = ClampDuty(d) }

// Voltage is the level the duty cycle represents.
func (p *Pin) Voltage() float64 { return p.DutyCycle * p.MaxVoltage }

// OutputAt is the voltage an output pin drives at time t.
func (p *Pin) OutputAt(t float64) float64 {
	if p.Type == DigitalPWM {
		if CarrierHigh(p.Frequency, p.origin, p.DutyCycle, t) {
			return p.MaxVoltage
		}
		return 0
	}
	return p.Voltage()
}

// window is the demodulation period.
func (p *Pin) window() float64 {
	if p.Frequency <= 0 {
		return 0
	}
	return 1 / p.Frequency
}

// sample integrates lead voltage v over one tick of length dt. When a full
// window is covered the average becomes the duty cycle, quantised to
// resolution.
func (p *Pin) sample(v, dt float64, resolution int) {
	if p.MaxVoltage <= 0 || dt <= 0 {
		return
	}
	switch p.Type {
	case Analog:
		p.acc += ClampDuty(v/p.MaxVoltage) * dt
	default:
		if v > p.MaxVoltage/2 {
			p.acc += dt
		}
	}
	p.span += dt

	w := p.window()
	if p.span >= w-dt*1e-6 {
		p.DutyCycle = QuantizeDuty(p.acc/p.span, resolution)
		p.acc, p.span = 0, 0
	}
}

func (p *Pin) clearWindow() { p.acc, p.span = 0, 0 }

func (p *Pin) reset() {
	p.Mode = Input
	p.Type = p.defaultType
	p.DutyCycle = 0
	p.Current = 0
	p.origin = 0
	p.drive = 0
	p.clearWindow()
}

func (p *Pin) String() string {
	return fmt.Sprintf("%s %s %s duty=%.4f", p.Name, p.Mode, p.Type, p.DutyCycle)
}
