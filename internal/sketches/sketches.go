// Package sketches holds the firmware programs the CLI and the netlist
// builder can load by name.
package sketches

import (
	"sort"

	"github.com/edp1096/toy-mcusim/pkg/firmware"
)

const LED = 13

// Blink toggles pin every ms milliseconds.
func Blink(pin, ms int) firmware.Program {
	return firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.PinMode(pin, firmware.Output)
		},
		Loop: func(fw *firmware.Firmware) {
			fw.DigitalWrite(pin, firmware.High)
			fw.Delay(ms)
			fw.DigitalWrite(pin, firmware.Low)
			fw.Delay(ms)
		},
	}
}

// Fade ramps the PWM duty of pin up and down by step every ms milliseconds.
func Fade(pin, step, ms int) firmware.Program {
	var level, dir int
	return firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			level, dir = 0, step
			fw.PinMode(pin, firmware.Output)
		},
		Loop: func(fw *firmware.Firmware) {
			fw.AnalogWrite(pin, level)
			level += dir
			if level <= 0 || level >= 255 {
				level = min(max(level, 0), 255)
				dir = -dir
			}
			fw.Delay(ms)
		},
	}
}

// Echo sends every received byte back.
func Echo(baud int) firmware.Program {
	return firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.Serial.Begin(baud)
		},
		Loop: func(fw *firmware.Firmware) {
			if fw.Serial.Available() > 0 {
				fw.Serial.Write(byte(fw.Serial.Read()))
				return
			}
			fw.Yield()
		},
	}
}

// Mirror copies the analog reading of channel in to the PWM output out and
// reports it over serial every ms milliseconds.
func Mirror(in, out, baud, ms int) firmware.Program {
	return firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.Serial.Begin(baud)
			fw.PinMode(out, firmware.Output)
		},
		Loop: func(fw *firmware.Firmware) {
			v := fw.AnalogRead(in)
			fw.AnalogWrite(out, v/4)
			fw.Serial.Print("adc=")
			fw.Serial.Println(v)
			fw.Delay(ms)
		},
	}
}

var builtin = map[string]func() firmware.Program{
	"blink":  func() firmware.Program { return Blink(LED, 1000) },
	"fade":   func() firmware.Program { return Fade(9, 5, 30) },
	"echo":   func() firmware.Program { return Echo(9600) },
	"mirror": func() firmware.Program { return Mirror(0, 9, 115200, 100) },
	"idle":   func() firmware.Program { return firmware.Program{Loop: func(fw *firmware.Firmware) { fw.Yield() }} },
}

// Lookup returns a fresh copy of the named program.
func Lookup(name string) (firmware.Program, bool) {
	mk, ok := builtin[name]
	if !ok {
		return firmware.Program{}, false
	}
	return mk(), true
}

func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
