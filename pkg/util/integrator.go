package util

// GetBDFcoeffs returns the first order Gear (backward Euler) derivative
// weights for a fixed step: dx/dt ~ c[0]*x(n) + c[1]*x(n-1).
func GetBDFcoeffs(dt float64) []float64 {
	scale := 1.0 / dt
	return []float64{scale, -scale}
}
