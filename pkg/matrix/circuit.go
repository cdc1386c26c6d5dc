package matrix

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// CircuitMatrix is the augmented MNA system: node equations 1..n followed by
// one branch equation per voltage source. Index 0 is ground and is dropped.
type CircuitMatrix struct {
	Size     int
	backend  Backend
	solver   solver
	rhs      []float64
	solution []float64
}

func NewMatrix(size int, backend Backend) (*CircuitMatrix, error) {
	s, err := newSolver(size, backend)
	if err != nil {
		return nil, err
	}

	return &CircuitMatrix{
		Size:     size,
		backend:  backend,
		solver:   s,
		rhs:      make([]float64, size+1), // 1-based indexing
		solution: make([]float64, size+1),
	}, nil
}

func (m *CircuitMatrix) Backend() Backend { return m.backend }

func (m *CircuitMatrix) AddElement(i, j int, value float64) {
	if i == 0 || j == 0 {
		return
	}
	if i < 0 || j < 0 || i > m.Size || j > m.Size {
		slog.Warn("matrix index out of bounds", "i", i, "j", j, "size", m.Size)
		return
	}
	m.solver.add(i, j, value)
}

func (m *CircuitMatrix) AddRHS(i int, value float64) {
	if i == 0 {
		return
	}
	if i < 0 || i > m.Size {
		slog.Warn("rhs index out of bounds", "i", i, "size", m.Size)
		return
	}
	m.rhs[i] += value
}

func (m *CircuitMatrix) SetRHS(i int, value float64) {
	if i == 0 {
		return
	}
	if i < 0 || i > m.Size {
		slog.Warn("rhs index out of bounds", "i", i, "size", m.Size)
		return
	}
	m.rhs[i] = value
}

func (m *CircuitMatrix) Get(i, j int) float64 {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		return 0
	}
	return m.solver.get(i, j)
}

// LoadGmin adds gmin to the diagonal of the first nodes equations.
func (m *CircuitMatrix) LoadGmin(gmin float64, nodes int) {
	if gmin == 0 {
		return
	}
	for i := 1; i <= nodes && i <= m.Size; i++ {
		m.solver.add(i, i, gmin)
	}
}

func (m *CircuitMatrix) Clear() {
	m.solver.clear()
	clear(m.rhs)
}

func (m *CircuitMatrix) Solve() error {
	rhs := make([]float64, len(m.rhs))
	copy(rhs, m.rhs)

	solution, err := m.solver.solve(rhs)
	if err != nil {
		return err
	}
	copy(m.solution, solution)
	m.solution[0] = 0
	return nil
}

func (m *CircuitMatrix) RHS() []float64 {
	return m.rhs
}

func (m *CircuitMatrix) Solution() []float64 {
	return m.solution
}

// PrintSystem writes the equations in a readable form, one row per line.
func (m *CircuitMatrix) PrintSystem(w io.Writer) {
	fmt.Fprintf(w, "Circuit Equations (%dx%d, %s):\n", m.Size, m.Size, m.backend)
	for i := 1; i <= m.Size; i++ {
		var row strings.Builder
		for j := 1; j <= m.Size; j++ {
			if v := m.solver.get(i, j); v != 0 {
				fmt.Fprintf(&row, "  %+g*x%d", v, j)
			}
		}
		if row.Len() == 0 {
			row.WriteString("  0")
		}
		fmt.Fprintf(w, "%3d:%s = %g\n", i, row.String(), m.rhs[i])
	}
}

func (m *CircuitMatrix) Destroy() {
	if m.solver != nil {
		m.solver.destroy()
	}
}
