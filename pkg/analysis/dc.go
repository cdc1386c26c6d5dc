package analysis

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/device"
)

// sweepable is a source whose DC value can be stepped.
type sweepable interface {
	device.Device
	GetValue() float64
	SetValue(value float64)
}

type DCSweep struct {
	BaseAnalysis
	sourceNames []string    // Names of voltage/current sources to sweep
	sweepVals   [][]float64 // Generated sweep values for each source
	sources     []sweepable
	origVals    []float64 // Original values of the sources
}

// NewDCSweep sweeps up to two sources; the second one is the inner loop.
func NewDCSweep(sources []string, starts, stops, increments []float64) (*DCSweep, error) {
	if len(sources) != len(starts) || len(sources) != len(stops) || len(sources) != len(increments) {
		return nil, errors.New("inconsistent sweep parameter lengths")
	}
	if len(sources) == 0 || len(sources) > 2 {
		return nil, errors.Errorf("unsupported number of sweep sources: %d", len(sources))
	}

	dc := &DCSweep{
		BaseAnalysis: *NewBaseAnalysis(),
		sourceNames:  sources,
		sweepVals:    make([][]float64, len(sources)),
	}

	for i := range sources {
		vals, err := sweepValues(starts[i], stops[i], increments[i])
		if err != nil {
			return nil, errors.Wrapf(err, "source %s", sources[i])
		}
		dc.sweepVals[i] = vals
	}

	return dc, nil
}

// sweepValues steps from start to stop inclusive without accumulating
// rounding error.
func sweepValues(start, stop, inc float64) ([]float64, error) {
	if inc == 0 || math.Signbit(stop-start) != math.Signbit(inc) && stop != start {
		return nil, errors.Errorf("increment %g does not reach %g from %g", inc, stop, start)
	}
	n := int(math.Floor((stop-start)/inc+1e-9)) + 1
	vals := make([]float64, n)
	for k := range vals {
		vals[k] = start + float64(k)*inc
	}
	return vals, nil
}

func (dc *DCSweep) Setup(ckt *circuit.Circuit) error {
	dc.Circuit = ckt
	dc.sources = dc.sources[:0]
	dc.origVals = dc.origVals[:0]

	for _, name := range dc.sourceNames {
		var found sweepable
		for _, dev := range ckt.GetDevices() {
			if dev.GetName() != name {
				continue
			}
			switch s := dev.(type) {
			case *device.VoltageSource:
				found = s
			case *device.CurrentSource:
				found = s
			}
		}
		if found == nil {
			return errors.Errorf("source %s not found", name)
		}
		dc.sources = append(dc.sources, found)
		dc.origVals = append(dc.origVals, found.GetValue())
	}

	return ckt.Resolve()
}

func (dc *DCSweep) Execute() error {
	if dc.Circuit == nil {
		return errors.New("circuit not set")
	}
	defer dc.restore()

	outer := dc.sweepVals[0]
	inner := []float64{math.NaN()}
	if len(dc.sources) == 2 {
		inner = dc.sweepVals[1]
	}

	for _, val1 := range outer {
		dc.sources[0].SetValue(val1)
		for _, val2 := range inner {
			at := fmt.Sprintf("%s=%g", dc.sourceNames[0], val1)
			if len(dc.sources) == 2 {
				dc.sources[1].SetValue(val2)
				at += fmt.Sprintf(", %s=%g", dc.sourceNames[1], val2)
			}

			dc.Circuit.Reset()
			if _, _, err := dc.settle(); err != nil {
				return errors.Wrapf(err, "dc sweep at %s", at)
			}

			solution := dc.Circuit.GetSolution()
			if len(dc.sources) == 2 {
				dc.results["SWEEP2"] = append(dc.results["SWEEP2"], val2)
			}
			dc.store("SWEEP1", val1, solution)
		}
	}

	return nil
}

func (dc *DCSweep) restore() {
	for i, s := range dc.sources {
		s.SetValue(dc.origVals[i])
	}
}
