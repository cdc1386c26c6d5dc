package analysis

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/circuit"
)

// OperatingPoint runs the circuit from reset until the node voltages stop
// moving between ticks, then reports the settled solution.
type OperatingPoint struct {
	BaseAnalysis
	ticks   int
	settled bool
}

func NewOP() *OperatingPoint {
	return &OperatingPoint{
		BaseAnalysis: *NewBaseAnalysis(),
	}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	op.Circuit = ckt
	return ckt.Resolve()
}

func (op *OperatingPoint) Execute() error {
	if op.Circuit == nil {
		return errors.New("circuit not set")
	}

	op.Circuit.Reset()
	ticks, settled, err := op.settle()
	op.ticks, op.settled = ticks, settled
	if err != nil {
		return errors.Wrap(err, "operating point")
	}
	if !settled {
		slog.Warn("operating point did not settle", "ticks", ticks)
	}

	for name, value := range op.Circuit.GetSolution() {
		op.results[name] = []float64{value}
	}
	return nil
}

// Settled reports whether the last Execute reached a steady state and how
// many ticks it took.
func (op *OperatingPoint) Settled() (bool, int) { return op.settled, op.ticks }

// settle ticks until two consecutive solutions agree within tolerance.
func (a *BaseAnalysis) settle() (int, bool, error) {
	var prev []float64
	for ticks := 1; ticks <= a.convergence.maxTicks; ticks++ {
		if err := a.tick(); err != nil {
			return ticks, false, err
		}
		cur := nodeVoltages(a.Circuit)
		if prev != nil && a.CheckConvergence(prev, cur) {
			return ticks, true, nil
		}
		prev = cur
	}
	return a.convergence.maxTicks, false, nil
}

func nodeVoltages(ckt *circuit.Circuit) []float64 {
	nodes := ckt.GetNodes()
	v := make([]float64, len(nodes))
	for i, n := range nodes {
		v[i] = n.Voltage
	}
	return v
}
