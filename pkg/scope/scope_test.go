package scope_test

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/device"
	"github.com/edp1096/toy-mcusim/pkg/scope"
)

type fakeProbe struct{ v, i float64 }

func (p *fakeProbe) GetVoltageDelta() float64 { return p.v }
func (p *fakeProbe) GetCurrent() float64      { return p.i }

func ramp(r *scope.Recorder, n int) *fakeProbe {
	p := &fakeProbe{}
	r.Watch("ramp", p)
	r.WatchFunc("duty", "", func() float64 { return 0.25 })
	for k := range n {
		p.v = float64(k) * 0.5
		p.i = float64(k) * 0.25
		r.Sample(float64(k) * 0.5)
	}
	return p
}

func TestRecorder_WriteCSV(t *testing.T) {
	r := scope.NewRecorder()
	ramp(r, 4)

	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf))

	g := goldie.New(t)
	g.Assert(t, "ramp.csv", buf.Bytes())
}

func TestRecorder_WithAxis(t *testing.T) {
	r := scope.NewRecorder(scope.WithAxis("SWEEP1"))
	ramp(r, 2)
	assert.Equal(t, "SWEEP1", r.Axis())

	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf))
	header, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	assert.Equal(t, "SWEEP1,V(ramp),I(ramp),duty", string(header))

	assert.Equal(t, "time", scope.NewRecorder().Axis())
}

func TestRecorder_Series(t *testing.T) {
	r := scope.NewRecorder()
	ramp(r, 3)

	assert.Equal(t, []string{"V(ramp)", "I(ramp)", "duty"}, r.Names())
	ts, vs, ok := r.Series("I(ramp)")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0.5, 1}, ts)
	assert.Equal(t, []float64{0, 0.25, 0.5}, vs)

	_, _, ok = r.Series("V(missing)")
	assert.False(t, ok)
}

func TestRecorder_DecimationAndLimit(t *testing.T) {
	r := scope.NewRecorder(scope.WithDecimation(2), scope.WithLimit(3))
	ramp(r, 10)

	require.Equal(t, 3, r.Len())
	ts, _, _ := r.Series("V(ramp)")
	// every second sample (k = 1, 3, 5, 7, 9), newest three kept
	assert.Equal(t, []float64{2.5, 3.5, 4.5}, ts)

	r.Reset()
	assert.Zero(t, r.Len())
}

func TestRecorder_OnTick(t *testing.T) {
	c := circuit.New("divider")
	defer c.Destroy()
	v1 := circuit.Create(c, device.NewDCVoltageSource("V1", 10))
	r1 := circuit.Create(c, device.NewResistor("R1", 100))
	r2 := circuit.Create(c, device.NewResistor("R2", 100))
	gnd := circuit.Create(c, device.NewGround("GND"))
	require.NoError(t, c.Connect(v1.LeadPos(), r1.LeadIn()))
	require.NoError(t, c.Connect(r1.LeadOut(), r2.LeadIn()))
	require.NoError(t, c.Connect(r2.LeadOut(), gnd.Lead()))
	require.NoError(t, c.Connect(v1.LeadNeg(), gnd.Lead()))

	r := scope.NewRecorder()
	r.Watch("R2", r2)
	for range 3 {
		require.NoError(t, c.DoTick())
		r.OnTick(c)
	}

	frames := r.Frames()
	require.Len(t, frames, 3)
	assert.InDelta(t, 0, frames[0].Time, 1e-15)
	assert.InDelta(t, 2*c.GetTimeStep(), frames[2].Time, 1e-15)
	for _, f := range frames {
		assert.InDelta(t, 5.0, f.Values[0], 1e-6)
		assert.InDelta(t, 0.05, f.Values[1], 1e-8)
	}
}

func TestRecorder_Plot(t *testing.T) {
	r := scope.NewRecorder()
	_, err := r.Plot("empty")
	assert.Error(t, err)

	ramp(r, 5)
	var buf bytes.Buffer
	require.NoError(t, r.WritePlot(&buf, "svg", "ramp"))
	assert.Contains(t, buf.String(), "<svg")

	assert.Equal(t, "png", scope.FormatOf("out/wave.PNG"))
	assert.Equal(t, "", scope.FormatOf("wave"))
}
