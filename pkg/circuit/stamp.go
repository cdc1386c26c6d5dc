package circuit

import (
	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/device"
)

var _ device.Stamper = (*Circuit)(nil)

// branchRow is the matrix row of voltage source vs.
func (c *Circuit) branchRow(vs int) int { return c.numNodes + vs + 1 }

func (c *Circuit) StampMatrix(i, j int, value float64) {
	c.matrix.AddElement(i, j, value)
}

func (c *Circuit) StampRightSide(i int, value float64) {
	c.matrix.AddRHS(i, value)
}

func (c *Circuit) StampResistor(n1, n2 int, r float64) {
	c.StampConductance(n1, n2, 1.0/r)
}

func (c *Circuit) StampConductance(n1, n2 int, g float64) {
	c.matrix.AddElement(n1, n1, g)
	c.matrix.AddElement(n2, n2, g)
	c.matrix.AddElement(n1, n2, -g)
	c.matrix.AddElement(n2, n1, -g)
}

func (c *Circuit) StampCurrentSource(n1, n2 int, i float64) {
	c.matrix.AddRHS(n1, -i)
	c.matrix.AddRHS(n2, i)
}

// StampVoltageSource adds the branch row V(n2) - V(n1) = target and the
// branch current to both KCL rows. The unknown is the current leaving n2.
func (c *Circuit) StampVoltageSource(n1, n2, vs int) {
	if vs < 0 || vs >= c.numVolts {
		c.stampErr = errors.Errorf("voltage source id %d out of range [0, %d)", vs, c.numVolts)
		return
	}
	if n1 == n2 {
		c.stampErr = errors.Wrapf(ErrShortedSource, "source %d owned by %s on node %d", vs, c.vsOwners[vs].GetName(), n1)
		return
	}

	row := c.branchRow(vs)
	c.matrix.AddElement(row, n1, -1)
	c.matrix.AddElement(row, n2, 1)
	c.matrix.AddElement(n1, row, 1)
	c.matrix.AddElement(n2, row, -1)
	c.matrix.SetRHS(row, c.vsTargets[vs])
}

func (c *Circuit) UpdateVoltageSource(vs int, v float64) {
	if vs < 0 || vs >= c.numVolts {
		return
	}
	c.vsTargets[vs] = v
	c.matrix.SetRHS(c.branchRow(vs), v)
}

func (c *Circuit) DisableVoltageSource(vs int) {
	if vs < 0 || vs >= c.numVolts {
		return
	}
	row := c.branchRow(vs)
	c.matrix.AddElement(row, row, 1)
	c.matrix.SetRHS(row, 0)
}
