package sensitivity

import (
	"math"

	"atomsense/domain/core"
	domain "atomsense/domain/sensitivity"
	"atomsense/internal"
)

// Binner turns dispersion scores into discrete levels using thresholds taken
// from quantiles of the scored population.
type Binner struct {
	logger *internal.Logger
}

// NewBinner creates a binner. A nil logger uses internal.DefaultLogger.
func NewBinner(logger *internal.Logger) *Binner {
	return &Binner{logger: logger.OrDefault()}
}

// Thresholds computes the bottom and top cut points over all dispersions.
// With no scored atoms the result is not Defined.
func (b *Binner) Thresholds(dispersions map[int]float64, cfg domain.Config) domain.Thresholds {
	values := make([]float64, 0, len(dispersions))
	for _, d := range dispersions {
		values = append(values, d)
	}
	if len(values) == 0 {
		b.logger.Warn("no scored atoms; thresholds undefined and no levels assigned")
		return domain.Thresholds{}
	}

	t := domain.Thresholds{
		Bottom:     Quantile(values, cfg.BottomQuantile, cfg.QuantileMethod),
		Top:        Quantile(values, cfg.TopQuantile, cfg.QuantileMethod),
		Population: len(values),
		Defined:    true,
	}
	if t.Top <= t.Bottom {
		t.Degenerate = true
		b.logger.Info("%v: bottom=%.6g top=%.6g over %d atoms; atoms above bottom saturate",
			core.ErrDegenerateDistribution, t.Bottom, t.Top, t.Population)
	}
	return t
}

// Assign maps each dispersion to a level under fixed thresholds. Atoms at or
// below the bottom threshold, or whose scaled value rounds to zero, are left
// out of the result. The result depends only on its arguments.
func (b *Binner) Assign(dispersions map[int]float64, t domain.Thresholds, nbins int) map[int]int {
	levels := make(map[int]int)
	if !t.Defined {
		return levels
	}
	for idx, d := range dispersions {
		if lvl, ok := Level(d, t, nbins); ok {
			levels[idx] = lvl
		}
	}
	return levels
}

// Bin computes thresholds and assigns levels in one step.
func (b *Binner) Bin(dispersions map[int]float64, cfg domain.Config) (map[int]int, domain.Thresholds) {
	t := b.Thresholds(dispersions, cfg)
	return b.Assign(dispersions, t, cfg.NBins), t
}

// Level returns the level of a single dispersion value.
// Rounding is half-to-even, so 1.5 becomes 2 and 2.5 becomes 2.
func Level(d float64, t domain.Thresholds, nbins int) (int, bool) {
	if d <= t.Bottom {
		return 0, false
	}
	if d >= t.Top || t.Top <= t.Bottom {
		return nbins, true
	}
	scaled := (d - t.Bottom) / (t.Top - t.Bottom)
	lvl := int(math.RoundToEven(scaled * float64(nbins)))
	if lvl <= 0 {
		return 0, false
	}
	return lvl, true
}
