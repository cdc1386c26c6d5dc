package chip_test

import (
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-mcusim/pkg/chip"
	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/device"
	"github.com/edp1096/toy-mcusim/pkg/firmware"
)

type bench struct {
	ckt *circuit.Circuit
	mcu *chip.Chip
	gnd *device.Ground
}

func newBench(t *testing.T, program firmware.Program, tick time.Duration) *bench {
	t.Helper()
	ckt := circuit.New("bench", circuit.WithTickInterval(tick))
	mcu, err := chip.NewATmega328P("U1", firmware.NewSketch(program))
	require.NoError(t, err)

	b := &bench{
		ckt: ckt,
		mcu: circuit.Create(ckt, mcu),
		gnd: circuit.Create(ckt, device.NewGround("GND")),
	}
	require.NoError(t, ckt.Connect(mcu.Lead(chip.PinGND), b.gnd.Lead()))
	t.Cleanup(func() {
		mcu.Close()
		ckt.Destroy()
	})
	return b
}

func (b *bench) run(t *testing.T, ticks int) {
	t.Helper()
	for range ticks {
		require.NoError(t, b.ckt.DoTick())
	}
}

// idle parks the sketch for the rest of every tick.
func idle(fw *firmware.Firmware) { fw.Yield() }

func TestPWM_RoundTrip(t *testing.T) {
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.PinMode(2, firmware.Input)
			fw.AnalogWrite(3, 127)
		},
		Loop: idle,
	}, time.Microsecond)

	for _, pin := range []int{2, 3, firmware.A0} {
		require.NoError(t, b.mcu.SetPWMFrequency(pin, 500))
	}
	require.NoError(t, b.ckt.Connect(b.mcu.Lead(3), b.mcu.Lead(2)))
	require.NoError(t, b.ckt.Connect(b.mcu.Lead(3), b.mcu.Lead(firmware.A0)))

	b.run(t, 6001)

	want := 127.0 / 255
	assert.Equal(t, chip.DigitalPWM, b.mcu.Pin(3).Type)
	assert.Equal(t, chip.Output, b.mcu.Pin(3).Mode)
	assert.InDelta(t, want, b.mcu.Pin(2).DutyCycle, 1.0/1023)
	assert.InDelta(t, want, b.mcu.Pin(firmware.A0).DutyCycle, 1.0/1023)
	assert.Equal(t, 0, b.mcu.DigitalRead(2))
	assert.InDelta(t, 127*1023.0/255, b.mcu.AnalogRead(0), 1)
}

func TestDCInput_AnalogAveragesDigitalThresholds(t *testing.T) {
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) { fw.PinMode(2, firmware.Input) },
		Loop:  idle,
	}, time.Microsecond)

	src := circuit.Create(b.ckt, device.NewDCVoltageSource("VIN", 2))
	require.NoError(t, b.ckt.Connect(src.LeadNeg(), b.gnd.Lead()))
	require.NoError(t, b.ckt.Connect(src.LeadPos(), b.mcu.Lead(2)))
	require.NoError(t, b.ckt.Connect(src.LeadPos(), b.mcu.Lead(firmware.A0)))
	for _, pin := range []int{2, firmware.A0} {
		require.NoError(t, b.mcu.SetPWMFrequency(pin, 500))
	}

	b.run(t, 6001)

	// 2V of 5V: the analog pin reports the mean level, the digital pin
	// sees it below half supply the whole window
	assert.InDelta(t, 0.4, b.mcu.Pin(firmware.A0).DutyCycle, 1.0/1023)
	assert.InDelta(t, 0.4*1023, b.mcu.AnalogRead(0), 1)
	assert.Equal(t, 0.0, b.mcu.Pin(2).DutyCycle)
	assert.Equal(t, 0, b.mcu.DigitalRead(2))

	src.SetValue(3)
	b.run(t, 4000)
	assert.InDelta(t, 0.6, b.mcu.Pin(firmware.A0).DutyCycle, 1.0/1023)
	assert.Equal(t, 1.0, b.mcu.Pin(2).DutyCycle)
	assert.Equal(t, 1, b.mcu.DigitalRead(2))
}

func TestPWM_EightBitWritesReadBackInTenBits(t *testing.T) {
	const (
		freq   = 500.0
		dt     = 1e-6
		window = 2000
	)
	for v := range 256 {
		duty := float64(v) / 255
		high := 0
		for k := range window {
			if chip.CarrierHigh(freq, 0, duty, float64(k)*dt) {
				high++
			}
		}
		read := math.Round(chip.QuantizeDuty(float64(high)/window, 1023) * 1023)
		assert.InDelta(t, float64(v)*1023/255, read, 1023.0/255, "analogWrite(%d)", v)
	}
}

func TestReanchorPhase_KeepsPhase(t *testing.T) {
	const t0, origin = 0.0123, 0.001
	before := chip.Phase(490, origin, t0)
	moved := chip.ReanchorPhase(490, 980, t0, origin)
	assert.InDelta(t, before, chip.Phase(980, moved, t0), 1e-9)
	assert.Equal(t, origin, chip.ReanchorPhase(490, 0, t0, origin))
}

func TestQuantizeDuty(t *testing.T) {
	assert.Equal(t, 0.0, chip.QuantizeDuty(-1, 1023))
	assert.Equal(t, 1.0, chip.QuantizeDuty(2, 1023))
	assert.Equal(t, 0.0, chip.QuantizeDuty(math.NaN(), 1023))
	assert.InDelta(t, 512.0/1023, chip.QuantizeDuty(0.5, 1023), 1e-15)
	assert.False(t, chip.CarrierHigh(490, 0, 0, 0.001))
	assert.True(t, chip.CarrierHigh(490, 0, 1, 0.001))
}

func TestInvalidPinAccess(t *testing.T) {
	b := newBench(t, firmware.Program{Loop: idle}, time.Microsecond)
	b.run(t, 1)

	snapshot := func() []string {
		var out []string
		for _, p := range b.mcu.Pins() {
			out = append(out, p.String())
		}
		return out
	}
	before := snapshot()

	for _, pin := range []int{-1, 23, 99, chip.PinVCC, chip.PinGND, chip.PinRESET} {
		b.mcu.PinMode(pin, int(chip.Output))
		b.mcu.DigitalWrite(pin, 1)
		b.mcu.AnalogWrite(pin, 200)
		assert.Equal(t, 0, b.mcu.DigitalRead(pin))
		assert.Equal(t, 0, b.mcu.AnalogRead(pin+100))
		assert.Error(t, b.mcu.SetPWMFrequency(pin, 100))
	}
	b.mcu.PinMode(4, 7)

	assert.Equal(t, before, snapshot())
	b.run(t, 1)
}

func TestDigitalOutputDrivesLoad(t *testing.T) {
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.PinMode(13, firmware.Output)
			fw.DigitalWrite(13, firmware.High)
		},
		Loop: idle,
	}, time.Microsecond)
	r := circuit.Create(b.ckt, device.NewResistor("R1", 1000))
	require.NoError(t, b.ckt.Connect(b.mcu.Lead(13), r.LeadIn()))
	require.NoError(t, b.ckt.Connect(r.LeadOut(), b.gnd.Lead()))

	b.run(t, 3)

	assert.InDelta(t, 5.0, r.GetLeadVoltage(0), 1e-6)
	assert.InDelta(t, 5e-3, r.GetCurrent(), 1e-8)
	assert.InDelta(t, 5e-3, b.mcu.Pin(13).Current, 1e-8)
	assert.InDelta(t, 5e-3, b.mcu.GetCurrent(), 1e-8)
	assert.Equal(t, 1, b.mcu.DigitalRead(13))
}

func TestInputPullup(t *testing.T) {
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.PinMode(2, firmware.InputPullup)
			fw.PinMode(4, firmware.InputPullup)
		},
		Loop: idle,
	}, 10*time.Microsecond)
	require.NoError(t, b.ckt.Connect(b.mcu.Lead(4), b.gnd.Lead()))

	b.run(t, 500)

	assert.InDelta(t, 5.0, b.mcu.GetLeadVoltage(2), 1e-3)
	assert.Equal(t, 1, b.mcu.DigitalRead(2))
	assert.Equal(t, 0, b.mcu.DigitalRead(4))
}

func TestDelaySleepsTheChip(t *testing.T) {
	toggles := 0
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) { fw.PinMode(13, firmware.Output) },
		Loop: func(fw *firmware.Firmware) {
			toggles++
			fw.DigitalWrite(13, toggles%2)
			fw.Delay(1)
		},
	}, 100*time.Microsecond)

	assert.Equal(t, chip.PinsAllocated, b.mcu.State())
	b.run(t, 1)
	assert.Equal(t, chip.Running, b.mcu.State())
	assert.Equal(t, 1, toggles)

	b.run(t, 1)
	assert.Equal(t, chip.Sleeping, b.mcu.State())

	// 1 ms at 100 us per tick, then the loop runs again
	b.run(t, 10)
	assert.Equal(t, chip.Running, b.mcu.State())
	assert.Equal(t, 2, toggles)
	assert.Equal(t, 0, b.mcu.DigitalRead(13))
}

func TestMillisAndMicros(t *testing.T) {
	var mu sync.Mutex
	var millis, micros int64
	b := newBench(t, firmware.Program{
		Loop: func(fw *firmware.Firmware) {
			mu.Lock()
			millis, micros = fw.Millis(), fw.Micros()
			mu.Unlock()
			fw.Yield()
		},
	}, 100*time.Microsecond)

	b.run(t, 51)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(5), millis)
	assert.Equal(t, int64(5000), micros)
	assert.Equal(t, 5*time.Millisecond, b.mcu.Uptime())
}

func TestResetPinHoldsChip(t *testing.T) {
	ran := false
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) { ran = true },
		Loop:  idle,
	}, time.Microsecond)
	require.NoError(t, b.ckt.Connect(b.mcu.Lead(chip.PinRESET), b.gnd.Lead()))

	b.run(t, 20)

	assert.False(t, ran)
	assert.Equal(t, chip.PinsAllocated, b.mcu.State())
}

func TestReset(t *testing.T) {
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.PinMode(13, firmware.Output)
			fw.DigitalWrite(13, firmware.High)
			fw.AnalogWrite(9, 64)
			fw.Delay(100)
		},
		Loop: idle,
	}, 10*time.Microsecond)
	b.run(t, 3)
	require.Equal(t, chip.Sleeping, b.mcu.State())

	b.mcu.Reset()

	assert.Equal(t, chip.PinsAllocated, b.mcu.State())
	for _, p := range b.mcu.Pins() {
		assert.Equal(t, chip.Input, p.Mode, p.Name)
		assert.Zero(t, p.DutyCycle, p.Name)
		assert.Zero(t, p.Current, p.Name)
	}
	assert.Equal(t, chip.Digital, b.mcu.Pin(9).Type)
	assert.Equal(t, chip.Analog, b.mcu.Pin(firmware.A3).Type)
	assert.Zero(t, b.mcu.Uptime())

	// setup runs again on the next tick
	b.run(t, 1)
	assert.Equal(t, chip.Running, b.mcu.State())
	assert.Equal(t, chip.Output, b.mcu.Pin(13).Mode)
}

func TestAnalogWriteWithoutPWMChannel(t *testing.T) {
	b := newBench(t, firmware.Program{Loop: idle}, time.Microsecond)
	b.run(t, 1)

	b.mcu.AnalogWrite(7, 200)
	assert.Equal(t, chip.Digital, b.mcu.Pin(7).Type)
	assert.Equal(t, 1, b.mcu.DigitalRead(7))

	b.mcu.AnalogWrite(7, 20)
	assert.Equal(t, 0, b.mcu.DigitalRead(7))

	b.mcu.AnalogWrite(10, 999)
	assert.Equal(t, 1.0, b.mcu.Pin(10).DutyCycle)
	assert.Equal(t, chip.DigitalPWM, b.mcu.Pin(10).Type)
}

func TestDigitalWriteOnInputTogglesPullup(t *testing.T) {
	b := newBench(t, firmware.Program{Loop: idle}, time.Microsecond)
	b.run(t, 1)

	b.mcu.DigitalWrite(8, 1)
	assert.Equal(t, chip.InputPullup, b.mcu.Pin(8).Mode)
	b.mcu.PinMode(8, int(chip.Output))
	assert.Equal(t, 1, b.mcu.DigitalRead(8))

	b.mcu.PinMode(12, int(chip.Output))
	assert.Equal(t, 0, b.mcu.DigitalRead(12))
}

type collector struct {
	mu  sync.Mutex
	buf []byte
}

func (c *collector) put(b byte) {
	c.mu.Lock()
	c.buf = append(c.buf, b)
	c.mu.Unlock()
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

// runUntil ticks until cond holds, failing after limit ticks.
func (b *bench) runUntil(t *testing.T, limit int, cond func() bool) {
	t.Helper()
	for range limit {
		if cond() {
			return
		}
		require.NoError(t, b.ckt.DoTick())
		runtime.Gosched()
	}
	require.True(t, cond(), "condition not met after %d ticks", limit)
}

func TestSerial_Print(t *testing.T) {
	out := &collector{}
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.Serial.Begin(9600)
			fw.Serial.Print("hi ")
			fw.Serial.Println(255, firmware.HEX)
			fw.Serial.Println(-42)
			fw.Serial.Flush()
		},
		Loop: idle,
	}, 10*time.Microsecond)
	b.mcu.Serial().SetOnArduinoSend(out.put)

	want := "hi FF\r\n-42\r\n"
	b.runUntil(t, 200000, func() bool { return out.String() == want })
	assert.True(t, b.mcu.Serial().Drained())
}

func TestSerial_Echo(t *testing.T) {
	out := &collector{}
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) { fw.Serial.Begin(115200) },
		Loop: func(fw *firmware.Firmware) {
			if fw.Serial.Available() > 0 {
				fw.Serial.Write(byte(fw.Serial.Read()))
			}
			fw.Yield()
		},
	}, 10*time.Microsecond)
	b.mcu.Serial().SetOnArduinoSend(out.put)

	b.run(t, 1)
	for _, c := range []byte("ping") {
		require.True(t, b.mcu.Serial().TryWriteToArduino(c))
	}

	b.runUntil(t, 200000, func() bool { return out.String() == "ping" })
	assert.Equal(t, 0, b.mcu.Serial().Available())
}

func TestSerial_FullRingStallsFirmware(t *testing.T) {
	out := &collector{}
	msg := make([]byte, 200)
	for i := range msg {
		msg[i] = 'a' + byte(i%26)
	}
	b := newBench(t, firmware.Program{
		Setup: func(fw *firmware.Firmware) {
			fw.Serial.Begin(115200)
			fw.Serial.Print(string(msg))
		},
		Loop: idle,
	}, 10*time.Microsecond)
	b.mcu.Serial().SetOnArduinoSend(out.put)

	b.runUntil(t, 500000, func() bool { return out.String() == string(msg) })
}

func TestLayout(t *testing.T) {
	l := chip.ATmega328PLayout()
	require.Len(t, l.Pins, 23)
	assert.Equal(t, "D13", l.Pins[13].Name)
	assert.Equal(t, "A0", l.Pins[firmware.A0].Name)
	assert.Equal(t, "VCC", l.Pins[chip.PinVCC].Name)
	assert.Equal(t, chip.GND, l.Pins[chip.PinGND].Role)

	var pwm []int
	for i, p := range l.Pins {
		if p.PWM {
			pwm = append(pwm, i)
		}
	}
	assert.Equal(t, []int{3, 5, 6, 9, 10, 11}, pwm)
	assert.Equal(t, 980.0, l.Pins[5].Frequency)

	mcu, err := chip.NewATmega328P("U1", firmware.NewSketch(firmware.Program{}))
	require.NoError(t, err)
	defer mcu.Close()
	lead, ok := mcu.LeadByName("RESET")
	require.True(t, ok)
	assert.Equal(t, chip.PinRESET, lead.Index)
	assert.Equal(t, chip.Uninitialized, mcu.State())
	assert.Equal(t, 20, mcu.VoltageSourceCount())
	assert.True(t, mcu.LeadIsGround(chip.PinGND))
}
