package chip

import (
	"fmt"

	"github.com/edp1096/toy-mcusim/internal/consts"
	"github.com/edp1096/toy-mcusim/pkg/firmware"
)

// ATmega328P firmware pin numbers of the control pins.
const (
	PinVCC   = 20
	PinGND   = 21
	PinRESET = 22
)

// ATmega328PLayout is the Arduino Uno view of the chip: D0..D13, A0..A5,
// then VCC, GND and RESET. PWM runs on 3, 5, 6, 9, 10 and 11, with the
// timer0 pins 5 and 6 at the fast carrier.
func ATmega328PLayout() Layout {
	l := Layout{Model: "ATmega328P"}
	for i := range 14 {
		spec := PinSpec{Name: fmt.Sprintf("D%d", i), Type: Digital}
		switch i {
		case 5, 6:
			spec.PWM = true
			spec.Frequency = consts.PWMFrequencyFast
		case 3, 9, 10, 11:
			spec.PWM = true
		}
		l.Pins = append(l.Pins, spec)
	}
	for i := range 6 {
		l.Pins = append(l.Pins, PinSpec{Name: fmt.Sprintf("A%d", i), Type: Analog})
	}
	l.Pins = append(l.Pins,
		PinSpec{Name: "VCC", Role: VCC},
		PinSpec{Name: "GND", Role: GND},
		PinSpec{Name: "RESET", Role: RESET},
	)
	return l
}

func NewATmega328P(name string, engine firmware.Engine, opts ...Option) (*Chip, error) {
	return New(name, ATmega328PLayout(), engine, opts...)
}
