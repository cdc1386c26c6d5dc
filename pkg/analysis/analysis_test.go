package analysis_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-mcusim/pkg/analysis"
	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/device"
)

type divider struct {
	ckt    *circuit.Circuit
	v1, v2 *device.VoltageSource
}

// newDivider is V1 -> R1 -> mid -> R2 -> V2 -> ground, both resistors 100 ohm.
func newDivider(t *testing.T, v1, v2 float64) *divider {
	t.Helper()
	c := circuit.New("divider")
	t.Cleanup(c.Destroy)

	d := &divider{
		ckt: c,
		v1:  circuit.Create(c, device.NewDCVoltageSource("V1", v1)),
		v2:  circuit.Create(c, device.NewDCVoltageSource("V2", v2)),
	}
	r1 := circuit.Create(c, device.NewResistor("R1", 100))
	r2 := circuit.Create(c, device.NewResistor("R2", 100))
	gnd := circuit.Create(c, device.NewGround("GND"))

	require.NoError(t, c.Connect(d.v1.LeadPos(), r1.LeadIn()))
	require.NoError(t, c.Connect(r1.LeadOut(), r2.LeadIn()))
	require.NoError(t, c.Connect(r2.LeadOut(), d.v2.LeadPos()))
	require.NoError(t, c.Connect(d.v1.LeadNeg(), gnd.Lead()))
	require.NoError(t, c.Connect(d.v2.LeadNeg(), gnd.Lead()))
	c.Label("mid", r1.LeadOut())
	return d
}

func newRC(t *testing.T) *circuit.Circuit {
	t.Helper()
	c := circuit.New("rc", circuit.WithTickInterval(time.Microsecond))
	t.Cleanup(c.Destroy)

	v := circuit.Create(c, device.NewDCVoltageSource("V1", 1))
	r := circuit.Create(c, device.NewResistor("R1", 1000))
	c1 := circuit.Create(c, device.NewCapacitor("C1", 1e-6))
	gnd := circuit.Create(c, device.NewGround("GND"))
	require.NoError(t, c.Connect(v.LeadPos(), r.LeadIn()))
	require.NoError(t, c.Connect(r.LeadOut(), c1.LeadIn()))
	require.NoError(t, c.Connect(c1.LeadOut(), gnd.Lead()))
	require.NoError(t, c.Connect(v.LeadNeg(), gnd.Lead()))
	c.Label("out", r.LeadOut())
	return c
}

func TestOperatingPoint_Divider(t *testing.T) {
	d := newDivider(t, 10, 0)
	op := analysis.NewOP()
	require.NoError(t, op.Setup(d.ckt))
	require.NoError(t, op.Execute())

	res := op.GetResults()
	require.Len(t, res["V(mid)"], 1)
	assert.InDelta(t, 5.0, res["V(mid)"][0], 1e-6)
	assert.InDelta(t, 0.05, res["I(R1)"][0], 1e-9)

	settled, ticks := op.Settled()
	assert.True(t, settled)
	assert.Equal(t, 2, ticks)
}

func TestOperatingPoint_SettlesCapacitor(t *testing.T) {
	c := newRC(t)
	op := analysis.NewOP()
	op.SetSettleLimit(20000)
	require.NoError(t, op.Setup(c))
	require.NoError(t, op.Execute())

	settled, _ := op.Settled()
	assert.True(t, settled)
	assert.InDelta(t, 1.0, op.GetResults()["V(out)"][0], 2e-3)
}

func TestOperatingPoint_NotSettled(t *testing.T) {
	c := newRC(t)
	op := analysis.NewOP()
	op.SetSettleLimit(10)
	require.NoError(t, op.Setup(c))
	require.NoError(t, op.Execute())

	settled, ticks := op.Settled()
	assert.False(t, settled)
	assert.Equal(t, 10, ticks)
}

func TestTransient_RC(t *testing.T) {
	c := newRC(t)
	tr := analysis.NewTransient(0, 1e-3, 100e-6)
	ticks := 0
	tr.Observe(func(*circuit.Circuit) { ticks++ })
	require.NoError(t, tr.Setup(c))
	require.NoError(t, tr.Execute())

	res := tr.GetResults()
	require.Len(t, res["TIME"], 11)
	require.Len(t, res["V(out)"], 11)
	assert.Equal(t, 1001, ticks)
	assert.InDelta(t, 0, res["TIME"][0], 1e-12)
	assert.InDelta(t, 1e-3, res["TIME"][10], 1e-9)
	assert.InDelta(t, 0.632, res["V(out)"][10], 2e-3)

	for i := 1; i < len(res["V(out)"]); i++ {
		assert.Greater(t, res["V(out)"][i], res["V(out)"][i-1])
	}
}

func TestTransient_StartTime(t *testing.T) {
	c := newRC(t)
	tr := analysis.NewTransient(500e-6, 1e-3, 100e-6)
	require.NoError(t, tr.Setup(c))
	require.NoError(t, tr.Execute())

	times := tr.GetResults()["TIME"]
	require.Len(t, times, 6)
	assert.InDelta(t, 500e-6, times[0], 1e-9)
}

func TestTransient_InvalidWindow(t *testing.T) {
	c := newRC(t)
	assert.Error(t, analysis.NewTransient(0, 0, 1e-6).Setup(c))
	assert.Error(t, analysis.NewTransient(2e-3, 1e-3, 1e-6).Setup(c))
}

func TestDCSweep_Single(t *testing.T) {
	d := newDivider(t, 10, 0)
	dc, err := analysis.NewDCSweep([]string{"V1"}, []float64{0}, []float64{10}, []float64{2.5})
	require.NoError(t, err)
	require.NoError(t, dc.Setup(d.ckt))
	require.NoError(t, dc.Execute())

	res := dc.GetResults()
	assert.Equal(t, []float64{0, 2.5, 5, 7.5, 10}, res["SWEEP1"])
	require.Len(t, res["V(mid)"], 5)
	for i, v := range res["SWEEP1"] {
		assert.InDelta(t, v/2, res["V(mid)"][i], 1e-6)
	}
	assert.Equal(t, 10.0, d.v1.GetValue())
}

func TestDCSweep_Nested(t *testing.T) {
	d := newDivider(t, 0, 0)
	dc, err := analysis.NewDCSweep([]string{"V1", "V2"}, []float64{0, 0}, []float64{2, 1}, []float64{1, 1})
	require.NoError(t, err)
	require.NoError(t, dc.Setup(d.ckt))
	require.NoError(t, dc.Execute())

	res := dc.GetResults()
	assert.Equal(t, []float64{0, 0, 1, 1, 2, 2}, res["SWEEP1"])
	assert.Equal(t, []float64{0, 1, 0, 1, 0, 1}, res["SWEEP2"])
	for i := range res["SWEEP1"] {
		assert.InDelta(t, (res["SWEEP1"][i]+res["SWEEP2"][i])/2, res["V(mid)"][i], 1e-6)
	}
}

func TestDCSweep_Errors(t *testing.T) {
	_, err := analysis.NewDCSweep([]string{"V1"}, []float64{0, 1}, []float64{1}, []float64{1})
	assert.Error(t, err)
	_, err = analysis.NewDCSweep([]string{"V1"}, []float64{0}, []float64{1}, []float64{0})
	assert.Error(t, err)
	_, err = analysis.NewDCSweep([]string{"V1"}, []float64{0}, []float64{1}, []float64{-1})
	assert.Error(t, err)

	d := newDivider(t, 10, 0)
	dc, err := analysis.NewDCSweep([]string{"V9"}, []float64{0}, []float64{1}, []float64{0.1})
	require.NoError(t, err)
	assert.Error(t, dc.Setup(d.ckt))
}
