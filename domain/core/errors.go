package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)

	// Input errors
	ErrInvalidMolecule   = errors.New("invalid molecule")
	ErrInvalidConfig     = errors.New("invalid sensitivity config")
	ErrUnknownColorScale = errors.New("unknown color scale")

	// Sampling errors
	ErrInsufficientSamples = errors.New("insufficient valid perturbations")
	ErrPredictorFailure    = errors.New("predictor failure")
	ErrPerturbationFailure = errors.New("perturbation failure")

	// Binning conditions. Never returned to callers; used to tag diagnostics.
	ErrDegenerateDistribution = errors.New("degenerate dispersion distribution")

	ErrAnnotationOverwrite = errors.New("annotation already set")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewInvalidMoleculeError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMolecule, reason)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}

func NewPredictorError(atomIndex int, err error) error {
	return fmt.Errorf("%w for atom %d: %w", ErrPredictorFailure, atomIndex, err)
}

// NewPerturbationError reports a mutation or re-parse call that failed for a
// reason other than an invalid result.
func NewPerturbationError(atomIndex int, err error) error {
	return fmt.Errorf("%w for atom %d: %w", ErrPerturbationFailure, atomIndex, err)
}

func NewInsufficientSamplesError(atomIndex, valid, attempts int) error {
	return fmt.Errorf("%w for atom %d: %d valid of %d attempts", ErrInsufficientSamples, atomIndex, valid, attempts)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidMolecule) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrUnknownColorScale)
}

func IsPredictorError(err error) bool {
	return errors.Is(err, ErrPredictorFailure)
}
