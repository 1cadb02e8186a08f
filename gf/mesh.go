package gf

import (
	"errors"
	"math"
)

// ErrMesh is returned for meshes with fewer than two points or β <= 0.
var ErrMesh = errors.New("invalid imaginary-time mesh")

// TauMesh is an equidistant mesh on [0, β] including both end points.
type TauMesh struct {
	Beta float64
	N    int
}

// NewTauMesh validates and returns a mesh.
func NewTauMesh(beta float64, n int) (TauMesh, error) {
	if n < 2 || !(beta > 0) {
		return TauMesh{}, ErrMesh
	}
	return TauMesh{Beta: beta, N: n}, nil
}

// Step returns the mesh spacing.
func (m TauMesh) Step() float64 { return m.Beta / float64(m.N-1) }

// Point returns τ_i.
func (m TauMesh) Point(i int) float64 { return float64(i) * m.Step() }

// Nearest returns the index of the mesh point closest to tau.
func (m TauMesh) Nearest(tau float64) int {
	i := int(math.Round(tau / m.Step()))
	return min(max(i, 0), m.N-1)
}

// BosonicFrequency returns ω_n = 2πn/β.
func BosonicFrequency(n int, beta float64) float64 {
	return 2 * math.Pi * float64(n) / beta
}

// FermionicFrequency returns ω_n = (2n+1)π/β.
func FermionicFrequency(n int, beta float64) float64 {
	return float64(2*n+1) * math.Pi / beta
}
