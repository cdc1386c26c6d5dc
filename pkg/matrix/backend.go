package matrix

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrSingular = errors.New("matrix is singular")

type Backend string

const (
	Dense  Backend = "dense"
	Gonum  Backend = "gonum"
	Sparse Backend = "sparse"
)

func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case "", Dense:
		return Dense, nil
	case Gonum:
		return Gonum, nil
	case Sparse:
		return Sparse, nil
	}
	return "", fmt.Errorf("unknown solver backend %q", name)
}

// solver stores a square system with 1-based indices. solve receives the
// right-hand side with index 0 unused and returns the solution the same way.
type solver interface {
	clear()
	add(i, j int, value float64)
	get(i, j int) float64
	solve(rhs []float64) ([]float64, error)
	destroy()
}

func newSolver(size int, backend Backend) (solver, error) {
	switch backend {
	case "", Dense:
		return newDenseSolver(size), nil
	case Gonum:
		return newGonumSolver(size), nil
	case Sparse:
		return newSparseSolver(size)
	}
	return nil, fmt.Errorf("unknown solver backend %q", backend)
}
