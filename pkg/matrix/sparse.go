package matrix

import (
	"github.com/edp1096/sparse"
	"github.com/pkg/errors"
)

type sparseSolver struct {
	n      int
	matrix *sparse.Matrix
}

func newSparseSolver(size int) (*sparseSolver, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, errors.Wrap(err, "creating sparse matrix")
	}
	return &sparseSolver{n: size, matrix: mat}, nil
}

func (s *sparseSolver) clear() { s.matrix.Clear() }

func (s *sparseSolver) add(i, j int, value float64) {
	s.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (s *sparseSolver) get(i, j int) float64 {
	return s.matrix.GetElement(int64(i), int64(j)).Real
}

func (s *sparseSolver) solve(rhs []float64) ([]float64, error) {
	if s.n == 0 {
		return make([]float64, 1), nil
	}
	if err := s.matrix.Factor(); err != nil {
		return nil, errors.Wrap(ErrSingular, err.Error())
	}
	solution, err := s.matrix.Solve(rhs)
	if err != nil {
		return nil, errors.Wrap(err, "sparse solve")
	}
	return solution, nil
}

func (s *sparseSolver) destroy() {
	if s.matrix != nil {
		s.matrix.Destroy()
	}
}
