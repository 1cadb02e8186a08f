package cthyb

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/qmc"
)

var (
	// ErrPartitionMethod is returned for an unknown partition method.
	ErrPartitionMethod = errors.New("unknown partition method")

	// ErrEmptyQuantumNumbers is returned when the quantum_numbers partition
	// method is selected without any quantum number.
	ErrEmptyQuantumNumbers = errors.New("quantum_numbers partition requires at least one quantum number")

	// ErrInvalidBlockStructure is returned for malformed block structures,
	// hybridization shapes and operators outside the fundamental set.
	ErrInvalidBlockStructure = errors.New("invalid block structure")

	// ErrInvalidParams is returned when parameter validation fails.
	ErrInvalidParams = errors.New("invalid parameters")
)

// ErrMeshSize indicates an imaginary-time mesh too coarse for the requested
// number of Matsubara frequencies.
type ErrMeshSize struct {
	NTau int
	NIw  int
}

func (e *ErrMeshSize) Error() string {
	return fmt.Sprintf("too few imaginary-time points: NTau = %d must be at least 2·NIw = %d", e.NTau, 2*e.NIw)
}

// ErrDimensionMismatch indicates a hybridization function whose shape does
// not match its block.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Block    string
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("block %q: expected %dx%d hybridization, got %dx%d", e.Block, e.Expected, e.Expected, e.Actual, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrInvalidBlockStructure
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	if errors.Is(err, hilbert.ErrNoQuantumNumbers) {
		return fmt.Errorf("%w: %w", ErrEmptyQuantumNumbers, err)
	}

	// Any other partition failure means the problem is not well formed.
	var unknown *hilbert.ErrUnknownOperator
	if errors.As(err, &unknown) {
		return fmt.Errorf("%w: %w", ErrInvalidBlockStructure, err)
	}
	for _, target := range []error{
		hilbert.ErrTooManyModes,
		hilbert.ErrNotHermitian,
		hilbert.ErrComplexCoefficient,
		hilbert.ErrNotDiagonal,
		hilbert.ErrNotConserved,
		hilbert.ErrMixesSubspaces,
	} {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", ErrInvalidBlockStructure, err)
		}
	}
	if errors.Is(err, qmc.ErrRandomName) {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	return err
}
