package chip

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/edp1096/toy-mcusim/pkg/firmware"
)

// hostFunctions maps the Arduino core prototypes onto the chip.
func (c *Chip) hostFunctions() map[string]firmware.HostFunc {
	return map[string]firmware.HostFunc{
		"void pinMode(int pin, int mode)": func(call *firmware.Call) {
			c.PinMode(int(call.Int(0)), int(call.Int(1)))
		},
		"int digitalRead(int pin)": func(call *firmware.Call) {
			call.Push(int64(c.DigitalRead(int(call.Int(0)))))
		},
		"void digitalWrite(int pin, int value)": func(call *firmware.Call) {
			c.DigitalWrite(int(call.Int(0)), int(call.Int(1)))
		},
		"int analogRead(int pin)": func(call *firmware.Call) {
			call.Push(int64(c.AnalogRead(int(call.Int(0)))))
		},
		"void analogWrite(int pin, int value)": func(call *firmware.Call) {
			c.AnalogWrite(int(call.Int(0)), int(call.Int(1)))
		},
		"void delay(unsigned long ms)": func(call *firmware.Call) {
			c.Sleep(time.Duration(call.Int(0)) * time.Millisecond)
			call.Yield()
		},
		"void delayMicroseconds(unsigned int us)": func(call *firmware.Call) {
			c.Sleep(time.Duration(call.Int(0)) * time.Microsecond)
			call.Yield()
		},
		"unsigned long millis()": func(call *firmware.Call) {
			call.Push(c.Uptime().Milliseconds())
		},
		"unsigned long micros()": func(call *firmware.Call) {
			call.Push(c.Uptime().Microseconds())
		},

		"void Serial.begin(long baud)": func(call *firmware.Call) {
			c.uart.Begin(int(call.Int(0)))
		},
		"void Serial.end()": func(call *firmware.Call) {
			for !c.uart.Drained() {
				call.Yield()
			}
			if err := c.uart.End(context.Background()); err != nil {
				c.logger.Warn("serial end", "error", err)
			}
		},
		"int Serial.available()": func(call *firmware.Call) {
			call.Push(int64(c.uart.Available()))
		},
		"int Serial.peek()": func(call *firmware.Call) {
			call.Push(int64(c.uart.Peek()))
		},
		"int Serial.read()": func(call *firmware.Call) {
			call.Push(int64(c.uart.Read()))
		},
		"void Serial.flush()": func(call *firmware.Call) {
			for !c.uart.Drained() {
				call.Yield()
			}
		},
		"size_t Serial.write(int b)": func(call *firmware.Call) {
			call.Push(int64(c.transmit(call, []byte{byte(call.Int(0))})))
		},
		"size_t Serial.print(...)": func(call *firmware.Call) {
			call.Push(int64(c.transmit(call, []byte(printable(call)))))
		},
		"size_t Serial.println(...)": func(call *firmware.Call) {
			call.Push(int64(c.transmit(call, []byte(printable(call)+"\r\n"))))
		},
	}
}

func (c *Chip) registerHost() error {
	for sig, fn := range c.hostFunctions() {
		if err := c.engine.Register(sig, fn); err != nil {
			return err
		}
	}
	return nil
}

// transmit queues data on the UART, stalling the firmware while the
// transmit ring is full.
func (c *Chip) transmit(call *firmware.Call, data []byte) int {
	for _, b := range data {
		for !c.uart.TryWrite(b) {
			call.Yield()
		}
	}
	return len(data)
}

// printable renders Serial.print arguments: a string as is, an integer in
// the base given by the second argument (DEC by default).
func printable(call *firmware.Call) string {
	if call.NumArgs() == 0 {
		return ""
	}
	if call.IsStr(0) {
		return call.Str(0)
	}
	base := 10
	if call.NumArgs() > 1 {
		switch b := int(call.Int(1)); b {
		case 2, 8, 10, 16:
			base = b
		}
	}
	return strings.ToUpper(strconv.FormatInt(call.Int(0), base))
}

// Sleep suspends the firmware for d of simulated time.
func (c *Chip) Sleep(d time.Duration) {
	if d > 0 {
		c.sleep = d
	}
}

func (c *Chip) PinMode(pin, mode int) {
	p, err := c.ioPin(pin)
	if err != nil {
		c.invalid("pinMode", err)
		return
	}
	m := PinMode(mode)
	if m != Input && m != Output && m != InputPullup {
		c.logger.Debug("ignored pin mode", "pin", pin, "mode", mode)
		return
	}
	if p.Mode != m {
		p.clearWindow()
		// a new output starts at the level of the pull-up latch
		if m == Output {
			if p.Mode == InputPullup {
				p.SetDutyCycle(1)
			} else {
				p.SetDutyCycle(0)
			}
		}
	}
	p.Mode = m
	switch {
	case m != Output:
		p.Type = p.defaultType
		p.Current = 0
	case p.Type == Analog:
		p.Type = Digital
	}
}

func (c *Chip) DigitalWrite(pin, value int) {
	p, err := c.ioPin(pin)
	if err != nil {
		c.invalid("digitalWrite", err)
		return
	}
	// writing an input switches its pull-up
	if p.Mode != Output {
		if value != 0 {
			c.PinMode(pin, int(InputPullup))
		} else {
			c.PinMode(pin, int(Input))
		}
		return
	}
	p.Type = Digital
	if value != 0 {
		p.SetDutyCycle(1)
	} else {
		p.SetDutyCycle(0)
	}
}

// DigitalRead is HIGH when the pin's duty cycle is at least one half.
func (c *Chip) DigitalRead(pin int) int {
	p, err := c.ioPin(pin)
	if err != nil {
		c.invalid("digitalRead", err)
		return 0
	}
	if p.DutyCycle >= 0.5 {
		return 1
	}
	return 0
}

// AnalogRead returns the duty cycle scaled to the ADC resolution. Channel
// numbers below A0 address the analog pins, as on Arduino.
func (c *Chip) AnalogRead(pin int) int {
	if pin >= 0 && pin < len(c.analog) {
		pin = c.analog[pin]
	}
	p, err := c.ioPin(pin)
	if err != nil {
		c.invalid("analogRead", err)
		return 0
	}
	return int(math.Round(p.DutyCycle * float64(c.cfg.ADCResolution)))
}

// AnalogWrite sets a PWM duty of value/255 and makes the pin an output.
// Pins without a PWM channel switch fully on from half scale, as on
// Arduino.
func (c *Chip) AnalogWrite(pin, value int) {
	p, err := c.ioPin(pin)
	if err != nil {
		c.invalid("analogWrite", err)
		return
	}
	value = min(max(value, 0), c.cfg.PWMResolution)
	p.Mode = Output

	if !p.PWM {
		p.Type = Digital
		if value >= (c.cfg.PWMResolution+1)/2 {
			p.SetDutyCycle(1)
		} else {
			p.SetDutyCycle(0)
		}
		return
	}

	if p.Type != DigitalPWM {
		p.Type = DigitalPWM
		p.origin = c.now
	}
	p.SetDutyCycle(float64(value) / float64(c.cfg.PWMResolution))
}
