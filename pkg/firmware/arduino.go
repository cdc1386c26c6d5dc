package firmware

import (
	"fmt"
	"time"
)

// Arduino core constants.
const (
	Low  = 0
	High = 1

	Input       = 0
	Output      = 1
	InputPullup = 2

	A0 = 14
	A1 = 15
	A2 = 16
	A3 = 17
	A4 = 18
	A5 = 19

	DEC = 10
	HEX = 16
	OCT = 8
	BIN = 2
)

func (f *Firmware) PinMode(pin, mode int) {
	f.Invoke("pinMode", IntValue(int64(pin)), IntValue(int64(mode)))
}

func (f *Firmware) DigitalWrite(pin, value int) {
	f.Invoke("digitalWrite", IntValue(int64(pin)), IntValue(int64(value)))
}

func (f *Firmware) DigitalRead(pin int) int {
	return int(f.Invoke("digitalRead", IntValue(int64(pin))).Int)
}

func (f *Firmware) AnalogRead(pin int) int {
	return int(f.Invoke("analogRead", IntValue(int64(pin))).Int)
}

func (f *Firmware) AnalogWrite(pin, value int) {
	f.Invoke("analogWrite", IntValue(int64(pin)), IntValue(int64(value)))
}

func (f *Firmware) Delay(ms int) {
	f.Invoke("delay", IntValue(int64(ms)))
}

func (f *Firmware) DelayMicroseconds(us int) {
	f.Invoke("delayMicroseconds", IntValue(int64(us)))
}

func (f *Firmware) Millis() int64 { return f.Invoke("millis").Int }
func (f *Firmware) Micros() int64 { return f.Invoke("micros").Int }

// Elapsed is micros() as a Duration.
func (f *Firmware) Elapsed() time.Duration {
	return time.Duration(f.Micros()) * time.Microsecond
}

// SerialPort mirrors the Arduino Serial object.
type SerialPort struct {
	fw *Firmware
}

func (s *SerialPort) Begin(baud int) {
	s.fw.Invoke("Serial.begin", IntValue(int64(baud)))
}

func (s *SerialPort) End()           { s.fw.Invoke("Serial.end") }
func (s *SerialPort) Flush()         { s.fw.Invoke("Serial.flush") }
func (s *SerialPort) Available() int { return int(s.fw.Invoke("Serial.available").Int) }
func (s *SerialPort) Peek() int      { return int(s.fw.Invoke("Serial.peek").Int) }
func (s *SerialPort) Read() int      { return int(s.fw.Invoke("Serial.read").Int) }

func (s *SerialPort) Write(b byte) int {
	return int(s.fw.Invoke("Serial.write", IntValue(int64(b))).Int)
}

// Print writes v; integers take an optional base (DEC by default).
func (s *SerialPort) Print(v any, base ...int) int {
	return int(s.fw.Invoke("Serial.print", printArgs(v, base)...).Int)
}

// Println is Print followed by "\r\n". With no argument only the line end
// is written.
func (s *SerialPort) Println(v ...any) int {
	if len(v) == 0 {
		return int(s.fw.Invoke("Serial.println", StrValue("")).Int)
	}
	var base []int
	for _, b := range v[1:] {
		if n, ok := b.(int); ok {
			base = append(base, n)
		}
	}
	return int(s.fw.Invoke("Serial.println", printArgs(v[0], base)...).Int)
}

func printArgs(v any, base []int) []Value {
	var arg Value
	switch x := v.(type) {
	case string:
		arg = StrValue(x)
	case byte:
		arg = IntValue(int64(x))
	case int:
		arg = IntValue(int64(x))
	case int32:
		arg = IntValue(int64(x))
	case int64:
		arg = IntValue(x)
	case uint:
		arg = IntValue(int64(x))
	case uint16:
		arg = IntValue(int64(x))
	case uint32:
		arg = IntValue(int64(x))
	case bool:
		if x {
			arg = IntValue(1)
		} else {
			arg = IntValue(0)
		}
	default:
		arg = StrValue(fmt.Sprint(x))
	}
	if len(base) > 0 && !arg.IsStr {
		return []Value{arg, IntValue(int64(base[0]))}
	}
	return []Value{arg}
}
