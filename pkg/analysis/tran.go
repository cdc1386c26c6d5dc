package analysis

import (
	"math"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/circuit"
)

// Transient runs the tick loop from reset to stopTime. The circuit's tick
// interval is the integration step; timeStep only sets how often results
// are stored.
type Transient struct {
	BaseAnalysis
	startTime float64
	stopTime  float64
	timeStep  float64
	every     int
}

func NewTransient(tStart, tStop, tStep float64) *Transient {
	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		startTime:    tStart,
		stopTime:     tStop,
		timeStep:     tStep,
	}
}

func (tr *Transient) Setup(ckt *circuit.Circuit) error {
	if tr.stopTime <= 0 {
		return errors.Errorf("stop time %g must be positive", tr.stopTime)
	}
	if tr.startTime < 0 || tr.startTime > tr.stopTime {
		return errors.Errorf("start time %g outside [0, %g]", tr.startTime, tr.stopTime)
	}
	tr.Circuit = ckt

	dt := ckt.GetTimeStep()
	tr.every = 1
	if tr.timeStep > dt {
		tr.every = int(math.Round(tr.timeStep / dt))
	}
	return ckt.Resolve()
}

func (tr *Transient) Execute() error {
	if tr.Circuit == nil {
		return errors.New("circuit not set")
	}

	ckt := tr.Circuit
	ckt.Reset()
	eps := ckt.GetTimeStep() * 1e-6

	for n := 0; ; n++ {
		t := ckt.GetTime()
		if t > tr.stopTime+eps {
			break
		}
		if err := tr.tick(); err != nil {
			return errors.Wrapf(err, "transient at t=%g", t)
		}
		if t >= tr.startTime-eps && n%tr.every == 0 {
			tr.StoreTimeResult(t, ckt.GetSolution())
		}
	}

	return nil
}
