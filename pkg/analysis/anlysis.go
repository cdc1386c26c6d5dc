// Package analysis drives the tick loop to produce SPICE-style results:
// an operating point, a transient run and a DC sweep.
package analysis

import (
	"math"

	"github.com/edp1096/toy-mcusim/pkg/circuit"
)

const (
	OP int = iota
	TRAN
	DC
)

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute() error
	GetResults() map[string][]float64
}

type BaseAnalysis struct {
	Circuit     *circuit.Circuit
	results     map[string][]float64 // key: variable name, value: result by time
	observers   []func(*circuit.Circuit)
	convergence struct {
		maxTicks int // settling limit of an operating point
		abstol   float64
		reltol   float64
	}
}

func NewBaseAnalysis() *BaseAnalysis {
	ba := &BaseAnalysis{results: make(map[string][]float64)}

	ba.convergence.maxTicks = 1000
	ba.convergence.abstol = 1e-9
	ba.convergence.reltol = 1e-6

	return ba
}

// Observe registers fn to run after every committed tick.
func (a *BaseAnalysis) Observe(fn func(*circuit.Circuit)) {
	a.observers = append(a.observers, fn)
}

// SetSettleLimit bounds how many ticks an operating point may take.
func (a *BaseAnalysis) SetSettleLimit(ticks int) {
	a.convergence.maxTicks = max(ticks, 1)
}

func (a *BaseAnalysis) tick() error {
	if err := a.Circuit.DoTick(); err != nil {
		return err
	}
	for _, fn := range a.observers {
		fn(a.Circuit)
	}
	return nil
}

func (a *BaseAnalysis) CheckConvergence(oldSol, newSol []float64) bool {
	if len(oldSol) != len(newSol) {
		return false
	}

	for i := range oldSol {
		diff := math.Abs(newSol[i] - oldSol[i])
		if diff > a.convergence.abstol &&
			diff > a.convergence.reltol*math.Abs(newSol[i]) {
			return false
		}
	}
	return true
}

func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]float64) {
	// Ignore same time
	if len(a.results["TIME"]) > 0 {
		lastTime := a.results["TIME"][len(a.results["TIME"])-1]
		// 1.999999e-05 == 2.000000e-05
		if math.Abs(time-lastTime) < 1e-3*a.Circuit.GetTimeStep() {
			return
		}
	}

	a.store("TIME", time, solution)
}

func (a *BaseAnalysis) store(axis string, x float64, solution map[string]float64) {
	a.results[axis] = append(a.results[axis], x)
	for name, value := range solution {
		a.results[name] = append(a.results[name], value)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}
