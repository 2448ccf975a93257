package sensitivity

import (
	"fmt"

	"atomsense/domain/core"
)

// QuantileMethod selects the interpolation rule used for threshold quantiles.
type QuantileMethod string

const (
	// QuantileLinear interpolates between order statistics at h=(n-1)p
	// (Hyndman-Fan type 7, the numpy default).
	QuantileLinear QuantileMethod = "linear"
	// QuantileEmpirical returns the order statistic of the empirical CDF.
	QuantileEmpirical QuantileMethod = "empirical"
	// QuantileLinInterp interpolates the empirical CDF at h=np (type 4).
	QuantileLinInterp QuantileMethod = "lininterp"
)

// Config is the immutable parameter set of one analysis. It is passed by
// value into every component.
type Config struct {
	Radius          int            `json:"radius" yaml:"radius"`
	N               int            `json:"n" yaml:"n"`
	BottomQuantile  float64        `json:"bottom_quantile" yaml:"bottom_quantile"`
	TopQuantile     float64        `json:"top_quantile" yaml:"top_quantile"`
	NBins           int            `json:"nbins" yaml:"nbins"`
	ColorScale      string         `json:"colorscale" yaml:"colorscale"`
	MinValidSamples int            `json:"min_valid_samples" yaml:"min_valid_samples"`
	QuantileMethod  QuantileMethod `json:"quantile_method" yaml:"quantile_method"`
	Workers         int            `json:"workers" yaml:"workers"`
}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{
		Radius:          2,
		N:               200,
		BottomQuantile:  0.75,
		TopQuantile:     0.95,
		NBins:           3,
		ColorScale:      "viridis",
		MinValidSamples: 3,
		QuantileMethod:  QuantileLinear,
		Workers:         1,
	}
}

// Validate checks ranges. BottomQuantile <= TopQuantile is assumed, not checked.
func (c Config) Validate() error {
	if c.Radius < 0 {
		return core.NewConfigError("radius", "must be >= 0")
	}
	if c.N < 1 {
		return core.NewConfigError("n", "must be >= 1")
	}
	if c.BottomQuantile < 0 || c.BottomQuantile > 1 {
		return core.NewConfigError("bottom_quantile", fmt.Sprintf("%v outside [0,1]", c.BottomQuantile))
	}
	if c.TopQuantile < 0 || c.TopQuantile > 1 {
		return core.NewConfigError("top_quantile", fmt.Sprintf("%v outside [0,1]", c.TopQuantile))
	}
	if c.NBins < 1 {
		return core.NewConfigError("nbins", "must be >= 1")
	}
	if c.ColorScale == "" {
		return core.NewConfigError("colorscale", "is required")
	}
	if c.MinValidSamples < 0 {
		return core.NewConfigError("min_valid_samples", "must be >= 0")
	}
	switch c.QuantileMethod {
	case QuantileLinear, QuantileEmpirical, QuantileLinInterp:
	default:
		return core.NewConfigError("quantile_method", fmt.Sprintf("unknown method %q", c.QuantileMethod))
	}
	if c.Workers < 1 {
		return core.NewConfigError("workers", "must be >= 1")
	}
	return nil
}

// Params flattens the options that influence results, for fingerprinting.
// Workers is left out: it changes scheduling, not output.
func (c Config) Params() map[string]interface{} {
	return map[string]interface{}{
		"radius":            c.Radius,
		"n":                 c.N,
		"bottom_quantile":   c.BottomQuantile,
		"top_quantile":      c.TopQuantile,
		"nbins":             c.NBins,
		"colorscale":        c.ColorScale,
		"min_valid_samples": c.MinValidSamples,
		"quantile_method":   string(c.QuantileMethod),
	}
}
