package circuit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/internal/consts"
	"github.com/edp1096/toy-mcusim/pkg/config"
	"github.com/edp1096/toy-mcusim/pkg/device"
	"github.com/edp1096/toy-mcusim/pkg/matrix"
)

type Circuit struct {
	name    string
	runID   string
	cfg     config.Simulation
	backend matrix.Backend
	logger  *slog.Logger
	onError ErrorHandler

	devices     []device.Device
	fresh       []device.Device // created since the last committed reset
	index       map[device.Device]int
	connections []connection
	labels      map[string]device.Lead
	labelOrder  []string

	nodes     []*Node
	numNodes  int // non-ground nodes
	numVolts  int // voltage-source unknowns
	vsOwners  []device.Device
	vsTargets []float64
	matrix    *matrix.CircuitMatrix
	nonLinear []device.NonLinearDevice
	dirty     bool
	started   bool
	stampErr  error

	time     float64
	timeStep float64
	tick     uint64
}

type Option func(*Circuit)

func WithConfig(cfg config.Simulation) Option {
	return func(c *Circuit) { c.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Circuit) { c.logger = l }
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Circuit) { c.onError = h }
}

func WithTickInterval(d time.Duration) Option {
	return func(c *Circuit) { c.cfg.TickInterval = d }
}

func New(name string, opts ...Option) *Circuit {
	c := &Circuit{
		name:   name,
		runID:  uuid.Must(uuid.NewV7()).String(),
		cfg:    config.Default().Simulation,
		index:  make(map[device.Device]int),
		labels: make(map[string]device.Lead),
		dirty:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("circuit", name, "run", c.runID)

	backend, err := matrix.ParseBackend(c.cfg.Solver)
	if err != nil {
		c.logger.Warn("falling back to dense solver", "error", err)
		backend = matrix.Dense
	}
	c.backend = backend
	c.timeStep = c.cfg.TickInterval.Seconds()
	return c
}

// Create registers d with c and sizes its lead storage.
func Create[D device.Device](c *Circuit, d D) D {
	d.AllocLeads(d.LeadCount() + d.InternalLeadCount())
	c.index[d] = len(c.devices)
	c.devices = append(c.devices, d)
	c.fresh = append(c.fresh, d)
	c.dirty = true
	return d
}

// Connect joins two external leads into the same node. Order is irrelevant.
func (c *Circuit) Connect(a, b device.Lead) error {
	for _, l := range []device.Lead{a, b} {
		if _, ok := c.index[l.Device]; !ok {
			return &SimulationError{Code: TopologyError, Tick: c.tick, Time: c.time, Err: errors.Wrapf(ErrForeignLead, "lead %s", l)}
		}
		if l.Index < 0 || l.Index >= l.Device.LeadCount() {
			return &SimulationError{Code: TopologyError, Tick: c.tick, Time: c.time, Err: errors.Wrapf(ErrForeignLead, "lead %s out of range", l)}
		}
	}
	c.connections = append(c.connections, connection{a, b})
	c.dirty = true
	return nil
}

// Label names the net containing lead; GetSolution reports it as V(name).
func (c *Circuit) Label(name string, lead device.Lead) {
	if _, ok := c.labels[name]; !ok {
		c.labelOrder = append(c.labelOrder, name)
	}
	c.labels[name] = lead
}

// Resolve rebuilds nodes, voltage-source ids and the matrix if the topology
// changed since the last build.
func (c *Circuit) Resolve() error {
	if !c.dirty {
		return nil
	}

	c.nodes = c.resolveNodes()
	c.numNodes = len(c.nodes) - 1

	c.vsOwners = c.vsOwners[:0]
	c.nonLinear = c.nonLinear[:0]
	for _, d := range c.devices {
		for k := range d.VoltageSourceCount() {
			d.SetVoltageSource(k, len(c.vsOwners))
			c.vsOwners = append(c.vsOwners, d)
		}
		if nl, ok := d.(device.NonLinearDevice); ok && d.NonLinear() {
			c.nonLinear = append(c.nonLinear, nl)
		}
	}
	c.numVolts = len(c.vsOwners)
	c.vsTargets = make([]float64, c.numVolts)

	if c.matrix != nil {
		c.matrix.Destroy()
	}
	m, err := matrix.NewMatrix(c.numNodes+c.numVolts, c.backend)
	if err != nil {
		return &SimulationError{Code: TopologyError, Tick: c.tick, Time: c.time, Err: err}
	}
	c.matrix = m
	c.dirty = false

	c.logger.Info("topology rebuilt",
		"devices", len(c.devices),
		"nodes", c.numNodes,
		"sources", c.numVolts,
		"nonlinear", len(c.nonLinear),
		"solver", c.backend)
	return nil
}

// Reset rewinds time and resets every device.
func (c *Circuit) Reset() {
	c.time = 0
	c.tick = 0
	for _, n := range c.nodes {
		n.Voltage = 0
	}
	for _, d := range c.devices {
		d.Reset()
	}
	c.fresh = c.fresh[:0]
	c.started = true
}

func (c *Circuit) status() *device.CircuitStatus {
	return &device.CircuitStatus{
		Time:         c.time,
		TimeStep:     c.timeStep,
		TickInterval: c.cfg.TickInterval,
		Tick:         c.tick,
		Temp:         consts.ROOMTEMP,
	}
}

// DoTick solves the circuit at the current time, lets every device observe
// the result and advances time by one tick. On error nothing is committed.
func (c *Circuit) DoTick() error {
	if err := c.Resolve(); err != nil {
		return c.fail(err)
	}
	if !c.started {
		c.Reset()
	}
	// devices created mid-run start from their own reset state
	for _, d := range c.fresh {
		d.Reset()
	}
	c.fresh = c.fresh[:0]

	status := c.status()
	previous := make([]float64, len(c.nodes))
	for i, n := range c.nodes {
		previous[i] = n.Voltage
	}

	for _, nl := range c.nonLinear {
		nl.SaveOperatingPoint()
	}
	solution, err := c.solve(status)
	if err != nil {
		c.distribute(previous)
		for _, nl := range c.nonLinear {
			nl.RestoreOperatingPoint()
		}
		return c.fail(err)
	}

	for i := 1; i <= c.numNodes; i++ {
		c.nodes[i].Voltage = solution[i]
	}
	c.distribute(solution)
	for vs, owner := range c.vsOwners {
		owner.SetCurrent(vs, solution[c.numNodes+vs+1])
	}

	for _, d := range c.devices {
		d.Step(c, status)
	}

	c.tick++
	c.time = float64(c.tick) * c.timeStep
	return nil
}

// solve assembles and solves, iterating Newton until the largest node
// voltage change drops below the tolerance when non-linear devices exist.
func (c *Circuit) solve(status *device.CircuitStatus) ([]float64, error) {
	var last []float64
	limited := false
	maxIter := max(c.cfg.MaxIterations, 1)

	for iter := range maxIter {
		status.Iteration = iter
		if err := c.assemble(status); err != nil {
			return nil, err
		}
		if err := c.matrix.Solve(); err != nil {
			return nil, &SimulationError{Code: SingularMatrixError, Tick: c.tick, Time: c.time, Err: err}
		}
		solution := c.matrix.Solution()

		if len(c.nonLinear) == 0 {
			return solution, nil
		}
		if last != nil && !limited && maxDelta(solution, last, c.numNodes) < c.cfg.Tolerance {
			return solution, nil
		}

		if last == nil {
			last = make([]float64, len(solution))
		}
		copy(last, solution)
		c.distribute(solution)
		limited = false
		for _, nl := range c.nonLinear {
			if nl.UpdateOperatingPoint() {
				limited = true
			}
		}
	}

	return nil, &SimulationError{
		Code: ConvergenceError,
		Tick: c.tick,
		Time: c.time,
		Err:  errors.Wrapf(ErrNoConvergence, "after %d iterations", maxIter),
	}
}

func (c *Circuit) assemble(status *device.CircuitStatus) error {
	c.matrix.Clear()
	c.stampErr = nil
	for _, d := range c.devices {
		d.Stamp(c, status)
	}
	if c.stampErr != nil {
		return &SimulationError{Code: TopologyError, Tick: c.tick, Time: c.time, Err: c.stampErr}
	}
	c.matrix.LoadGmin(c.cfg.Gmin, c.numNodes)
	return nil
}

// distribute copies node voltages (index 0 = ground) onto every lead.
func (c *Circuit) distribute(voltages []float64) {
	for _, d := range c.devices {
		n := d.LeadCount() + d.InternalLeadCount()
		for a := range n {
			node := d.GetLeadNode(a)
			v := 0.0
			if node > 0 && node < len(voltages) {
				v = voltages[node]
			}
			d.SetLeadVoltage(a, v)
		}
	}
}

func (c *Circuit) fail(err error) error {
	var se *SimulationError
	if !errors.As(err, &se) {
		se = &SimulationError{Code: TopologyError, Tick: c.tick, Time: c.time, Err: err}
	}
	c.logger.Warn("tick not committed", "code", se.Code, "tick", se.Tick, "error", se.Err)
	if c.onError != nil {
		c.onError(se)
	}
	return se
}

// StartSimulation ticks until ctx is cancelled. onTick runs after every
// committed tick; onError, if set, replaces the error sink for the run.
func (c *Circuit) StartSimulation(ctx context.Context, onTick func(*Circuit), onError ErrorHandler) error {
	if onError != nil {
		prev := c.onError
		c.onError = onError
		defer func() { c.onError = prev }()
	}

	c.logger.Info("simulation started", "tick", c.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("simulation stopped", "ticks", c.tick, "time", c.time)
			return ctx.Err()
		default:
		}

		if err := c.DoTick(); err != nil {
			continue
		}
		if onTick != nil {
			onTick(c)
		}
	}
}

func maxDelta(a, b []float64, n int) float64 {
	worst := 0.0
	for i := 1; i <= n; i++ {
		worst = math.Max(worst, math.Abs(a[i]-b[i]))
	}
	return worst
}

func (c *Circuit) Name() string                     { return c.name }
func (c *Circuit) RunID() string                    { return c.runID }
func (c *Circuit) GetTime() float64                 { return c.time }
func (c *Circuit) GetTimeStep() float64             { return c.timeStep }
func (c *Circuit) GetTickInterval() time.Duration   { return c.cfg.TickInterval }
func (c *Circuit) GetTick() uint64                  { return c.tick }
func (c *Circuit) GetDevices() []device.Device      { return c.devices }
func (c *Circuit) GetNodes() []*Node                { return c.nodes }
func (c *Circuit) GetNumNodes() int                 { return c.numNodes }
func (c *Circuit) GetMatrix() *matrix.CircuitMatrix { return c.matrix }

func (c *Circuit) GetNodeVoltage(nodeIdx int) float64 {
	if nodeIdx <= 0 || nodeIdx >= len(c.nodes) {
		return 0
	}
	return c.nodes[nodeIdx].Voltage
}

// NodeOf returns the node lead resolved to, or nil before the first build.
func (c *Circuit) NodeOf(lead device.Lead) *Node {
	if _, ok := c.index[lead.Device]; !ok || c.dirty {
		return nil
	}
	return c.nodes[lead.Device.GetLeadNode(lead.Index)]
}

// GetSolution names node voltages V(label) and device currents I(name).
func (c *Circuit) GetSolution() map[string]float64 {
	solution := make(map[string]float64)
	for _, name := range c.labelOrder {
		lead := c.labels[name]
		solution[fmt.Sprintf("V(%s)", name)] = lead.Device.GetLeadVoltage(lead.Index)
	}
	for _, d := range c.devices {
		if d.IsWire() || d.LeadCount() < 2 {
			continue
		}
		solution[fmt.Sprintf("I(%s)", d.GetName())] = d.GetCurrent()
	}
	return solution
}

func (c *Circuit) Destroy() {
	if c.matrix != nil {
		c.matrix.Destroy()
	}
}
