package matrix

import "math"

const machineEpsilon = 2.220446049250313e-16

type denseSolver struct {
	n    int
	a    [][]float64
	work [][]float64
}

func newDenseSolver(size int) *denseSolver {
	s := &denseSolver{n: size}
	s.a = make([][]float64, size)
	s.work = make([][]float64, size)
	for i := range size {
		s.a[i] = make([]float64, size)
		s.work[i] = make([]float64, size)
	}
	return s
}

func (s *denseSolver) clear() {
	for i := range s.a {
		clear(s.a[i])
	}
}

func (s *denseSolver) add(i, j int, value float64) { s.a[i-1][j-1] += value }

func (s *denseSolver) get(i, j int) float64 { return s.a[i-1][j-1] }

func (s *denseSolver) solve(rhs []float64) ([]float64, error) {
	for i := range s.a {
		copy(s.work[i], s.a[i])
	}
	b := make([]float64, s.n)
	copy(b, rhs[1:])

	x, err := GaussianElimination(s.work, b)
	if err != nil {
		return nil, err
	}

	solution := make([]float64, s.n+1)
	copy(solution[1:], x)
	return solution, nil
}

func (s *denseSolver) destroy() {}

// GaussianElimination solves a*x = b in place with partial pivoting. Both a
// and b are overwritten. A pivot smaller than n*eps times the largest entry
// of a reports ErrSingular.
func GaussianElimination(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)

	scale := 0.0
	for i := range n {
		for j := range n {
			scale = math.Max(scale, math.Abs(a[i][j]))
		}
	}
	if scale == 0 {
		if n == 0 {
			return []float64{}, nil
		}
		return nil, ErrSingular
	}
	tiny := float64(n) * machineEpsilon * scale

	for k := range n {
		p := k
		for i := k + 1; i < n; i++ {
			if math.Abs(a[i][k]) > math.Abs(a[p][k]) {
				p = i
			}
		}
		if math.Abs(a[p][k]) <= tiny {
			return nil, ErrSingular
		}
		if p != k {
			a[p], a[k] = a[k], a[p]
			b[p], b[k] = b[k], b[p]
		}

		for i := k + 1; i < n; i++ {
			f := a[i][k] / a[k][k]
			if f == 0 {
				continue
			}
			a[i][k] = 0
			for j := k + 1; j < n; j++ {
				a[i][j] -= f * a[k][j]
			}
			b[i] -= f * b[k]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}
