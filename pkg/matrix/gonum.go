package matrix

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type gonumSolver struct {
	n int
	a *mat.Dense
}

func newGonumSolver(size int) *gonumSolver {
	s := &gonumSolver{n: size}
	if size > 0 {
		s.a = mat.NewDense(size, size, nil)
	}
	return s
}

func (s *gonumSolver) clear() {
	if s.a != nil {
		s.a.Zero()
	}
}

func (s *gonumSolver) add(i, j int, value float64) {
	s.a.Set(i-1, j-1, s.a.At(i-1, j-1)+value)
}

func (s *gonumSolver) get(i, j int) float64 { return s.a.At(i-1, j-1) }

func (s *gonumSolver) solve(rhs []float64) ([]float64, error) {
	solution := make([]float64, s.n+1)
	if s.n == 0 {
		return solution, nil
	}

	var lu mat.LU
	lu.Factorize(s.a)

	b := mat.NewVecDense(s.n, append([]float64(nil), rhs[1:s.n+1]...))
	x := mat.NewVecDense(s.n, nil)
	if err := lu.SolveVecTo(x, false, b); err != nil {
		// Condition errors above the tolerance are treated as singular too.
		return nil, errors.Wrap(ErrSingular, err.Error())
	}

	for i := range s.n {
		solution[i+1] = x.AtVec(i)
	}
	return solution, nil
}

func (s *gonumSolver) destroy() {}
