// Package scope records probe readings once per tick and exports them as
// CSV or as a waveform plot.
package scope

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/chip"
	"github.com/edp1096/toy-mcusim/pkg/circuit"
)

// Probe is anything with a voltage across it and a current through it.
// Every circuit element satisfies it.
type Probe interface {
	GetVoltageDelta() float64
	GetCurrent() float64
}

// Frame is one row of the recording.
type Frame struct {
	Time   float64
	Values []float64
}

type channel struct {
	name string
	unit string
	read func() float64
}

type Recorder struct {
	channels []channel
	frames   []Frame
	axis     string
	every    int
	skipped  int
	limit    int
}

type Option func(*Recorder)

// WithDecimation keeps one sample out of every n.
func WithDecimation(n int) Option {
	return func(r *Recorder) { r.every = max(n, 1) }
}

// WithLimit keeps only the newest n frames.
func WithLimit(n int) Option {
	return func(r *Recorder) { r.limit = n }
}

// WithAxis names the sample axis in exports. It defaults to time.
func WithAxis(name string) Option {
	return func(r *Recorder) { r.axis = name }
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{axis: "time", every: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Watch records V(name) and I(name) of p.
func (r *Recorder) Watch(name string, p Probe) {
	r.WatchVoltage(name, p)
	r.WatchCurrent(name, p)
}

func (r *Recorder) WatchVoltage(name string, p Probe) {
	r.WatchFunc(fmt.Sprintf("V(%s)", name), "V", p.GetVoltageDelta)
}

func (r *Recorder) WatchCurrent(name string, p Probe) {
	r.WatchFunc(fmt.Sprintf("I(%s)", name), "A", p.GetCurrent)
}

// WatchFunc adds a channel read by fn. Channels added after the first
// sample read as zero in earlier frames.
func (r *Recorder) WatchFunc(name, unit string, fn func() float64) {
	r.channels = append(r.channels, channel{name: name, unit: unit, read: fn})
}

// Sample reads every channel at time t.
func (r *Recorder) Sample(t float64) {
	r.skipped++
	if r.skipped < r.every {
		return
	}
	r.skipped = 0

	values := make([]float64, len(r.channels))
	for i, ch := range r.channels {
		values[i] = ch.read()
	}
	r.frames = append(r.frames, Frame{Time: t, Values: values})
	if r.limit > 0 && len(r.frames) > r.limit {
		r.frames = r.frames[len(r.frames)-r.limit:]
	}
}

// OnTick samples after a committed tick; it fits StartSimulation's callback.
// The circuit has already advanced, so the solved instant is one step back.
func (r *Recorder) OnTick(c *circuit.Circuit) {
	r.Sample(c.GetTime() - c.GetTimeStep())
}

func (r *Recorder) Names() []string {
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.name
	}
	return names
}

func (r *Recorder) Axis() string    { return r.axis }
func (r *Recorder) Frames() []Frame { return r.frames }
func (r *Recorder) Len() int        { return len(r.frames) }

// Series returns the time axis and the values of channel name.
func (r *Recorder) Series(name string) ([]float64, []float64, bool) {
	col := -1
	for i, ch := range r.channels {
		if ch.name == name {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, nil, false
	}
	ts := make([]float64, len(r.frames))
	vs := make([]float64, len(r.frames))
	for i, f := range r.frames {
		ts[i] = f.Time
		if col < len(f.Values) {
			vs[i] = f.Values[col]
		}
	}
	return ts, vs, true
}

func (r *Recorder) Reset() {
	r.frames = nil
	r.skipped = 0
}

// WriteCSV writes a header row (the axis then channel names) and one row
// per frame.
func (r *Recorder) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{r.axis}, r.Names()...)); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	row := make([]string, len(r.channels)+1)
	for _, f := range r.frames {
		row[0] = strconv.FormatFloat(f.Time, 'g', -1, 64)
		for i := range r.channels {
			v := 0.0
			if i < len(f.Values) {
				v = f.Values[i]
			}
			row[i+1] = strconv.FormatFloat(v, 'g', 10, 64)
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

// pinProbe reads one chip pin as a probe: the lead voltage against ground
// and the current the pin sources.
type pinProbe struct {
	mcu *chip.Chip
	pin int
}

// Pin adapts pin of mcu to a Probe.
func Pin(mcu *chip.Chip, pin int) Probe { return pinProbe{mcu: mcu, pin: pin} }

func (p pinProbe) GetVoltageDelta() float64 { return p.mcu.GetLeadVoltage(p.pin) }

func (p pinProbe) GetCurrent() float64 {
	if pin := p.mcu.Pin(p.pin); pin != nil {
		return pin.Current
	}
	return 0
}
