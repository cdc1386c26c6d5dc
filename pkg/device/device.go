package device

import (
	"fmt"
	"time"
)

// Device is the element contract the circuit engine drives. Leads
// 0..LeadCount-1 are external and may be connected; the internal leads
// that follow get private nodes.
type Device interface {
	GetName() string
	GetType() string

	LeadCount() int
	InternalLeadCount() int
	VoltageSourceCount() int
	AllocLeads(n int)
	GetLeadNode(i int) int
	SetLeadNode(i, node int)
	GetLeadVoltage(i int) float64
	SetLeadVoltage(i int, v float64)

	Stamp(s Stamper, status *CircuitStatus)
	Step(s Stamper, status *CircuitStatus)
	Reset()

	SetCurrent(vs int, current float64)
	GetCurrent() float64
	GetVoltageDelta() float64
	SetVoltageSource(ordinal, vs int)

	LeadsAreConnected(i, j int) bool
	LeadIsGround(i int) bool
	IsWire() bool
	NonLinear() bool
}

// NonLinearDevice is re-linearised between Newton iterations. The circuit
// sets the lead voltages of the latest iteration before calling it. It
// reports whether the step had to be limited; a limited iteration never
// counts as converged. The operating point is saved before a tick is
// solved and restored when the tick is not committed.
type NonLinearDevice interface {
	Device
	UpdateOperatingPoint() (limited bool)
	SaveOperatingPoint()
	RestoreOperatingPoint()
}

// Stamper is the write side of the circuit matrix offered to devices.
// Node 0 is ground; stamps on it are dropped.
type Stamper interface {
	StampMatrix(i, j int, value float64)
	StampRightSide(i int, value float64)
	StampResistor(n1, n2 int, r float64)
	StampConductance(n1, n2 int, g float64)
	// StampCurrentSource draws i out of n1 and injects it into n2.
	StampCurrentSource(n1, n2 int, i float64)
	// StampVoltageSource enforces V(n2) - V(n1) = target of vs.
	StampVoltageSource(n1, n2, vs int)
	UpdateVoltageSource(vs int, v float64)
	// DisableVoltageSource pins the branch current of vs to zero.
	DisableVoltageSource(vs int)
}

// Lead names one terminal of a device.
type Lead struct {
	Device Device
	Index  int
}

func (l Lead) String() string {
	if l.Device == nil {
		return fmt.Sprintf("<nil>.%d", l.Index)
	}
	return fmt.Sprintf("%s.%d", l.Device.GetName(), l.Index)
}

func LeadOf(d Device, i int) Lead { return Lead{Device: d, Index: i} }

type SourceType int

const (
	DC SourceType = iota
	SIN
	PULSE
	PWL
	SQUARE
)

type CircuitStatus struct {
	Time         float64 // Time being solved (s)
	TimeStep     float64 // Tick length (s)
	TickInterval time.Duration
	Tick         uint64
	Iteration    int
	Temp         float64
}

type ModelParam struct {
	Type   string
	Name   string
	Params map[string]float64
}

type BaseDevice struct {
	Name       string
	Nodes      []int
	Volts      []float64
	Value      float64
	Current    float64
	VoltSource int
}

func (d *BaseDevice) GetName() string { return d.Name }

func (d *BaseDevice) AllocLeads(n int) {
	d.Nodes = make([]int, n)
	d.Volts = make([]float64, n)
}

func (d *BaseDevice) InternalLeadCount() int  { return 0 }
func (d *BaseDevice) VoltageSourceCount() int { return 0 }

func (d *BaseDevice) GetLeadNode(i int) int {
	if i < 0 || i >= len(d.Nodes) {
		return 0
	}
	return d.Nodes[i]
}

func (d *BaseDevice) SetLeadNode(i, node int) {
	if i >= 0 && i < len(d.Nodes) {
		d.Nodes[i] = node
	}
}

func (d *BaseDevice) GetLeadVoltage(i int) float64 {
	if i < 0 || i >= len(d.Volts) {
		return 0
	}
	return d.Volts[i]
}

func (d *BaseDevice) SetLeadVoltage(i int, v float64) {
	if i >= 0 && i < len(d.Volts) {
		d.Volts[i] = v
	}
}

func (d *BaseDevice) Step(s Stamper, status *CircuitStatus) {}

func (d *BaseDevice) Reset() {
	clear(d.Volts)
	d.Current = 0
}

func (d *BaseDevice) SetCurrent(vs int, current float64) { d.Current = current }
func (d *BaseDevice) GetCurrent() float64                { return d.Current }
func (d *BaseDevice) SetVoltageSource(ordinal, vs int)   { d.VoltSource = vs }

// GetVoltageDelta is the voltage across the first two leads.
func (d *BaseDevice) GetVoltageDelta() float64 {
	if len(d.Volts) < 2 {
		return 0
	}
	return d.Volts[0] - d.Volts[1]
}

func (d *BaseDevice) LeadsAreConnected(i, j int) bool { return false }
func (d *BaseDevice) LeadIsGround(i int) bool         { return false }
func (d *BaseDevice) IsWire() bool                    { return false }
func (d *BaseDevice) NonLinear() bool                 { return false }

func (d *BaseDevice) GetValue() float64 { return d.Value }
