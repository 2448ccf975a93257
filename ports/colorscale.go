package ports

import "github.com/lucasb-eyer/go-colorful"

// ColorScalePort samples named continuous colour scales.
type ColorScalePort interface {
	// Sample returns the colour at position in [0,1] of the named scale.
	Sample(scale string, position float64) (colorful.Color, error)

	// Has reports whether the scale name is known.
	Has(scale string) bool
}
