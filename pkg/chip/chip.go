// Package chip bridges microcontroller firmware and the analog circuit.
// Every pin is a lead of one device; output pins drive their node through a
// voltage source, input pins demodulate their node voltage into a duty
// cycle the firmware can read.
package chip

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/config"
	"github.com/edp1096/toy-mcusim/pkg/device"
	"github.com/edp1096/toy-mcusim/pkg/firmware"
	"github.com/edp1096/toy-mcusim/pkg/serial"
)

var ErrInvalidPin = errors.New("invalid pin access")

type State int

const (
	Uninitialized State = iota
	PinsAllocated
	Running
	Sleeping
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case PinsAllocated:
		return "pins-allocated"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PinSpec describes one pin of a chip layout.
type PinSpec struct {
	Name      string
	Role      Role
	Type      SignalType
	PWM       bool
	Frequency float64 // 0 uses the configured carrier
}

// Layout is the ordered pin list of a chip model. Firmware pin numbers are
// indices into it.
type Layout struct {
	Model string
	Pins  []PinSpec
}

type Chip struct {
	device.BaseDevice

	model  string
	pins   []*Pin
	byName map[string]int
	analog []int // pin index of each analog channel
	vcc    int
	gnd    int
	reset  int
	engine firmware.Engine
	uart   *serial.UART
	cfg    config.Chip
	logger *slog.Logger

	state    State
	halted   bool
	inReset  bool
	sleep    time.Duration
	elapsed  time.Duration
	boot     time.Duration
	now      float64
}

var _ device.Device = (*Chip)(nil)

type Option func(*Chip)

func WithConfig(cfg config.Chip) Option {
	return func(c *Chip) { c.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Chip) { c.logger = l }
}

// WithUART replaces the default serial peripheral.
func WithUART(u *serial.UART) Option {
	return func(c *Chip) { c.uart = u }
}

// New builds a chip from layout and registers its host functions with
// engine. The engine starts once the circuit allocates the chip's leads.
func New(name string, layout Layout, engine firmware.Engine, opts ...Option) (*Chip, error) {
	c := &Chip{
		BaseDevice: device.BaseDevice{Name: name},
		model:      layout.Model,
		byName:     make(map[string]int),
		vcc:        -1,
		gnd:        -1,
		reset:      -1,
		engine:     engine,
		cfg:        config.Default().Chip,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("chip", name, "model", layout.Model)
	if c.uart == nil {
		c.uart = serial.NewUART(serial.WithLogger(c.logger))
	}

	for i, pd := range layout.Pins {
		freq := pd.Frequency
		if freq <= 0 {
			freq = c.cfg.PWMFrequency
		}
		p := &Pin{
			Name:        pd.Name,
			Type:        pd.Type,
			Role:        pd.Role,
			PWM:         pd.PWM,
			Frequency:   freq,
			MaxVoltage:  c.cfg.SupplyVoltage,
			VoltSource:  -1,
			defaultType: pd.Type,
		}
		c.pins = append(c.pins, p)
		c.byName[pd.Name] = i
		if pd.Type == Analog && pd.Role == IO {
			c.analog = append(c.analog, i)
		}
		switch pd.Role {
		case VCC:
			c.vcc = i
		case GND:
			c.gnd = i
		case RESET:
			c.reset = i
		}
	}

	if err := c.registerHost(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chip) GetType() string         { return "U" }
func (c *Chip) Model() string           { return c.model }
func (c *Chip) LeadCount() int          { return len(c.pins) }
func (c *Chip) State() State            { return c.state }
func (c *Chip) Serial() *serial.UART    { return c.uart }
func (c *Chip) Engine() firmware.Engine { return c.engine }

// VoltageSourceCount is one slot per addressable pin, whatever its mode,
// so ids stay fixed when firmware changes a pin mode.
func (c *Chip) VoltageSourceCount() int {
	n := 0
	for _, p := range c.pins {
		if !p.Control() {
			n++
		}
	}
	return n
}

func (c *Chip) SetVoltageSource(ordinal, vs int) {
	for _, p := range c.pins {
		if p.Control() {
			continue
		}
		if ordinal == 0 {
			p.VoltSource = vs
			return
		}
		ordinal--
	}
}

func (c *Chip) SetCurrent(vs int, current float64) {
	for _, p := range c.pins {
		if !p.Control() && p.VoltSource == vs {
			if p.Mode == Output {
				p.Current = current
			} else {
				p.Current = 0
			}
			return
		}
	}
}

// GetCurrent is the total current sourced by output pins.
func (c *Chip) GetCurrent() float64 {
	total := 0.0
	for _, p := range c.pins {
		total += p.Current
	}
	return total
}

// GetVoltageDelta is the supply voltage seen across VCC and GND.
func (c *Chip) GetVoltageDelta() float64 {
	if c.vcc < 0 {
		return 0
	}
	return c.GetLeadVoltage(c.vcc) - c.GetLeadVoltage(c.gnd)
}

func (c *Chip) LeadIsGround(i int) bool {
	return i >= 0 && i < len(c.pins) && c.pins[i].Role == GND
}

// AllocLeads sizes the lead storage and starts the firmware.
func (c *Chip) AllocLeads(n int) {
	c.BaseDevice.AllocLeads(n)
	if c.state != Uninitialized {
		return
	}
	if err := c.engine.Run(); err != nil {
		c.logger.Error("firmware failed to start", "error", err)
		c.halted = true
	}
	c.state = PinsAllocated
}

// Pin returns the pin with firmware index i, or nil.
func (c *Chip) Pin(i int) *Pin {
	if i < 0 || i >= len(c.pins) {
		return nil
	}
	return c.pins[i]
}

func (c *Chip) Pins() []*Pin { return c.pins }

// Lead returns the circuit lead of pin i.
func (c *Chip) Lead(i int) device.Lead { return device.LeadOf(c, i) }

// LeadByName resolves a pin name such as "D13" or "GND".
func (c *Chip) LeadByName(name string) (device.Lead, bool) {
	i, ok := c.byName[name]
	if !ok {
		return device.Lead{}, false
	}
	return c.Lead(i), true
}

// SetPWMFrequency changes the carrier of pin, keeping the phase of a running
// PWM output continuous.
func (c *Chip) SetPWMFrequency(pin int, hz float64) error {
	p, err := c.ioPin(pin)
	if err != nil {
		return err
	}
	if hz <= 0 {
		return errors.Errorf("pwm frequency %g Hz must be positive", hz)
	}
	if p.Type == DigitalPWM {
		p.origin = ReanchorPhase(p.Frequency, hz, c.now, p.origin)
	}
	p.Frequency = hz
	p.clearWindow()
	return nil
}

func (c *Chip) ioPin(i int) (*Pin, error) {
	p := c.Pin(i)
	if p == nil || p.Control() {
		return nil, errors.Wrapf(ErrInvalidPin, "pin %d on %s", i, c.Name)
	}
	return p, nil
}

// invalid logs a rejected pin access; firmware never sees an error.
func (c *Chip) invalid(op string, err error) {
	c.logger.Debug("ignored pin access", "op", op, "error", err)
}

func (c *Chip) pullup(s device.Stamper, node int) {
	g := 1 / c.cfg.PullupResistance
	s.StampConductance(node, 0, g)
	s.StampCurrentSource(0, node, g*c.cfg.SupplyVoltage)
}

func (c *Chip) Stamp(s device.Stamper, status *device.CircuitStatus) {
	for i, p := range c.pins {
		node := c.Nodes[i]
		switch p.Role {
		case VCC, GND:
			continue
		case RESET:
			c.pullup(s, node)
			continue
		}

		switch p.Mode {
		case Output:
			s.StampVoltageSource(0, node, p.VoltSource)
			s.UpdateVoltageSource(p.VoltSource, p.drive)
		case InputPullup:
			s.DisableVoltageSource(p.VoltSource)
			c.pullup(s, node)
		default:
			s.DisableVoltageSource(p.VoltSource)
		}
	}
}

// Step samples the inputs, runs the firmware for one tick and prepares the
// drive values of the next solve.
func (c *Chip) Step(s device.Stamper, status *device.CircuitStatus) {
	c.now = status.Time
	c.elapsed = time.Duration(status.Tick) * status.TickInterval

	for i, p := range c.pins {
		if p.Control() || p.Mode == Output {
			continue
		}
		p.sample(c.Volts[i], status.TimeStep, c.cfg.ADCResolution)
	}

	if c.resetHeld() {
		if !c.inReset {
			c.logger.Info("reset asserted", "time", status.Time)
			c.Reset()
			c.inReset = true
		}
	} else {
		c.inReset = false
		c.run(status.TickInterval)
	}

	c.uart.Update(time.Duration(status.Tick+1) * status.TickInterval)

	next := status.Time + status.TimeStep
	for _, p := range c.pins {
		if p.Control() || p.Mode != Output {
			continue
		}
		p.drive = p.OutputAt(next)
		s.UpdateVoltageSource(p.VoltSource, p.drive)
	}
}

func (c *Chip) resetHeld() bool {
	if c.reset < 0 {
		return false
	}
	return c.Volts[c.reset] < c.cfg.SupplyVoltage/2
}

func (c *Chip) run(interval time.Duration) {
	if c.sleep > 0 {
		c.sleep -= interval
		c.state = Sleeping
		return
	}
	c.state = Running
	if c.halted {
		return
	}
	if err := c.engine.Advance(interval); err != nil {
		c.logger.Error("firmware stopped", "error", err, "time", c.now)
		c.halted = true
	}
}

// Reset returns every pin to input, clears the serial port and restarts
// the firmware at main.
func (c *Chip) Reset() {
	c.BaseDevice.Reset()
	for _, p := range c.pins {
		p.reset()
	}
	c.sleep = 0
	c.boot = c.elapsed
	c.uart.Reset()
	if c.state != Uninitialized {
		c.state = PinsAllocated
	}
	c.halted = false
	if err := c.engine.Reset("main"); err != nil {
		c.logger.Error("firmware reset failed", "error", err)
		c.halted = true
	}
}

// Uptime is the simulated time since the last reset.
func (c *Chip) Uptime() time.Duration { return c.elapsed - c.boot }

// Close stops the serial transmitter and the firmware engine.
func (c *Chip) Close() error {
	c.uart.Stop()
	if closer, ok := c.engine.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
