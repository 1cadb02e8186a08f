package hilbert

import (
	"errors"
	"fmt"

	"github.com/hupe1980/cthyb/operator"
)

var (
	// ErrTooManyModes is returned when the Fock space would be too large.
	ErrTooManyModes = errors.New("too many fundamental operators for a dense Fock space")

	// ErrNotHermitian is returned when the Hamiltonian is not real symmetric.
	ErrNotHermitian = errors.New("hamiltonian is not real symmetric")

	// ErrComplexCoefficient is returned for coefficients whose imaginary part
	// exceeds the threshold.
	ErrComplexCoefficient = errors.New("complex coefficient above imaginary threshold")

	// ErrNotDiagonal is returned when a quantum number is not diagonal in the
	// Fock basis.
	ErrNotDiagonal = errors.New("quantum number is not diagonal in the occupation basis")

	// ErrNotConserved is returned when the Hamiltonian mixes quantum number
	// sectors.
	ErrNotConserved = errors.New("hamiltonian does not conserve the quantum numbers")

	// ErrMixesSubspaces is returned when an operator maps one subspace into
	// several.
	ErrMixesSubspaces = errors.New("operator maps a subspace into several subspaces")
)

// ErrUnknownOperator indicates an expression that uses an operator outside
// the fundamental set.
type ErrUnknownOperator struct {
	Index operator.Index
}

func (e *ErrUnknownOperator) Error() string {
	return fmt.Sprintf("unknown fundamental operator %s", e.Index)
}
