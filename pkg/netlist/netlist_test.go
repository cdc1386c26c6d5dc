package netlist_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-mcusim/pkg/analysis"
	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/config"
	"github.com/edp1096/toy-mcusim/pkg/device"
	"github.com/edp1096/toy-mcusim/pkg/firmware"
	"github.com/edp1096/toy-mcusim/pkg/netlist"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1", 1},
		{"1k", 1e3},
		{"4.7K", 4.7e3},
		{"2meg", 2e6},
		{"2MEG", 2e6},
		{"10u", 10e-6},
		{"100n", 100e-9},
		{"1.5m", 1.5e-3},
		{"22p", 22e-12},
		{"-3.3", -3.3},
		{"1e-3", 1e-3},
		{"5V", 5},
		{"10us", 10e-6},
		{"1kHz", 1e3},
	}
	for _, tc := range cases {
		got, err := netlist.ParseValue(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, math.Abs(tc.want)*1e-12+1e-30, tc.in)
	}

	for _, bad := range []string{"", "abc", "1x", "k1"} {
		_, err := netlist.ParseValue(bad)
		assert.Error(t, err, bad)
	}
}

func TestParse_Elements(t *testing.T) {
	data, err := netlist.Parse(`* blink bench
V1 vcc 0 DC 5
R1 vcc led 1k ; pull
C1 led 0 1u ic=2.5
D1 led 0 D1N4148
Vs in 0 SIN(0 1 1k)
Vp in2 0 pulse(0 5 0 1n 1n 1m
+ 2m)
U1 ATmega328P sketch=blink d13=led GND=0
.model D1N4148 D(is=2.52n n=1.752)
.options tick=10u solver=sparse
.tran 10u 5m
.end
R9 never parsed 1
`)
	require.NoError(t, err)

	assert.Equal(t, "blink bench", data.Title)
	require.Len(t, data.Elements, 7)
	assert.Equal(t, netlist.AnalysisTRAN, data.Analysis)
	assert.InDelta(t, 10e-6, data.TranParam.TStep, 1e-18)
	assert.InDelta(t, 5e-3, data.TranParam.TStop, 1e-15)
	assert.Equal(t, map[string]string{"tick": "10u", "solver": "sparse"}, data.Options)

	v1 := data.Elements[0]
	assert.Equal(t, "dc", v1.Params["type"])
	assert.Equal(t, 5.0, v1.Value)

	assert.Equal(t, 1e3, data.Elements[1].Value)
	assert.Equal(t, "2.5", data.Elements[2].Params["ic"])
	assert.Equal(t, "D1N4148", data.Elements[3].Params["model"])
	assert.Equal(t, "0 1 1k", data.Elements[4].Params["sin"])
	assert.Equal(t, "0 5 0 1n 1n 1m 2m", data.Elements[5].Params["pulse"])

	u1 := data.Elements[6]
	assert.Equal(t, "U", u1.Type)
	assert.Equal(t, "atmega328p", u1.Params["model"])
	assert.Equal(t, "blink", u1.Params["sketch"])
	assert.Equal(t, []string{"D13", "GND"}, u1.Pins)
	assert.Equal(t, []string{"led", "0"}, u1.Nodes)

	model := data.Models["D1N4148"]
	assert.Equal(t, "D", model.Type)
	assert.InDelta(t, 2.52e-9, model.Params["is"], 1e-21)
	assert.Equal(t, 1.752, model.Params["n"])
	assert.Equal(t, 100.0, model.Params["bv"])
}

func TestParse_DCSweep(t *testing.T) {
	data, err := netlist.Parse("sweep\n.dc V1 0 5 0.5 V2 0 1 0.25\n")
	require.NoError(t, err)
	assert.Equal(t, netlist.AnalysisDC, data.Analysis)
	p := data.DCParam
	assert.Equal(t, "V1", p.Source1)
	assert.Equal(t, []float64{0, 5, 0.5}, []float64{p.Start1, p.Stop1, p.Increment1})
	assert.Equal(t, "V2", p.Source2)
	assert.Equal(t, []float64{0, 1, 0.25}, []float64{p.Start2, p.Stop2, p.Increment2})
}

func TestParse_ErrorsCarryLineNumbers(t *testing.T) {
	cases := map[string]string{
		"title\nR1 a 0 1k\nR2 a\n":         "line 3",
		"title\n\nQ1 c b e npn\n":          "line 3",
		"title\n.tran 1u\n":                "line 2",
		"title\n.dc V1 0 1\n":              "line 2",
		"title\n.model M1 NPN(bf=100)\n":   "line 2",
		"title\nU1 atmega328p D13\n":       "line 2",
		"title\n.options tick\n":           "line 2",
		"title\nR1 a 0 1k\nV1 a 0 bogus\n": "line 3",
		"title\n.four 1k V(out)\n":         "line 2",
		"title\nR1 a 0 1k\n\nC1 a 0 1q\n":  "line 4",
	}
	for input, want := range cases {
		_, err := netlist.Parse(input)
		require.Error(t, err, input)
		assert.Contains(t, err.Error(), want, input)
	}
}

func TestApplyOptions(t *testing.T) {
	cfg := config.Default().Simulation
	unknown, err := netlist.ApplyOptions(&cfg, map[string]string{
		"tick":           "10u",
		"solver":         "GONUM",
		"gmin":           "1p",
		"reltol":         "1e-4",
		"max_iterations": "50",
		"temp":           "27",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"temp"}, unknown)
	assert.Equal(t, 10*time.Microsecond, cfg.TickInterval)
	assert.Equal(t, "gonum", cfg.Solver)
	assert.InDelta(t, 1e-12, cfg.Gmin, 1e-24)
	assert.Equal(t, 1e-4, cfg.Tolerance)
	assert.Equal(t, 50, cfg.MaxIterations)

	_, err = netlist.ApplyOptions(&cfg, map[string]string{"tick": "0"})
	assert.Error(t, err)
}

func build(t *testing.T, src string, opts netlist.BuildOptions) *netlist.Design {
	t.Helper()
	data, err := netlist.Parse(src)
	require.NoError(t, err)
	ckt := circuit.New(data.Title)
	design, err := netlist.Build(data, ckt, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		design.Close()
		ckt.Destroy()
	})
	return design
}

func TestBuild_DividerOperatingPoint(t *testing.T) {
	design := build(t, `divider
V1 in gnd 10
R1 in mid 1k
R2 mid 0 1k
.op
`, netlist.BuildOptions{})

	require.NotNil(t, design.Ground)
	assert.IsType(t, &device.VoltageSource{}, design.Devices["V1"])

	op := analysis.NewOP()
	require.NoError(t, op.Setup(design.Circuit))
	require.NoError(t, op.Execute())
	res := op.GetResults()
	assert.InDelta(t, 10.0, res["V(in)"][0], 1e-6)
	assert.InDelta(t, 5.0, res["V(mid)"][0], 1e-6)
	assert.InDelta(t, 5e-3, res["I(R1)"][0], 1e-9)
}

func TestBuild_ChipDrivesNet(t *testing.T) {
	lookup := func(name string) (firmware.Program, bool) {
		if name != "on" {
			return firmware.Program{}, false
		}
		return firmware.Program{
			Setup: func(fw *firmware.Firmware) {
				fw.PinMode(13, firmware.Output)
				fw.DigitalWrite(13, firmware.High)
			},
			Loop: func(fw *firmware.Firmware) { fw.Yield() },
		}, true
	}
	design := build(t, `led bench
U1 atmega328p sketch=on D13=led GND=0
R1 led 0 1k
`, netlist.BuildOptions{Sketches: lookup})

	require.Contains(t, design.Chips, "U1")
	for range 3 {
		require.NoError(t, design.Circuit.DoTick())
	}
	assert.InDelta(t, 5.0, design.Circuit.GetSolution()["V(led)"], 1e-6)
	assert.InDelta(t, 5e-3, design.Devices["R1"].GetCurrent(), 1e-8)
}

func TestBuild_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown model":  "t\nD1 a 0 NOPE\n",
		"unknown sketch": "t\nU1 atmega328p sketch=nope D13=a\n",
		"unknown pin":    "t\nU1 atmega328p D99=a\n",
		"unknown chip":   "t\nU1 pic16f84 D13=a\n",
		"current pwl":    "t\nI1 a 0 PWL(0 0 1 1)\n",
		"duplicate":      "t\nR1 a 0 1\nR1 a 0 2\n",
		"bad sin":        "t\nV1 a 0 SIN(0 1)\n",
	}
	for name, src := range cases {
		data, err := netlist.Parse(src)
		require.NoError(t, err, name)
		ckt := circuit.New("t")
		_, err = netlist.Build(data, ckt, netlist.BuildOptions{
			Sketches: func(string) (firmware.Program, bool) { return firmware.Program{}, false },
		})
		assert.Error(t, err, name)
		ckt.Destroy()
	}
}
