package sensitivity

import (
	"math/rand"
	"testing"

	domain "atomsense/domain/sensitivity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binConfig(bottom, top float64, nbins int) domain.Config {
	cfg := domain.DefaultConfig()
	cfg.BottomQuantile = bottom
	cfg.TopQuantile = top
	cfg.NBins = nbins
	return cfg
}

func TestBinnerFiveAtomScenario(t *testing.T) {
	dispersions := map[int]float64{0: 0.1, 1: 0.1, 2: 0.5, 3: 0.9, 4: 0.9}

	levels, th := NewBinner(quietLogger()).Bin(dispersions, binConfig(0.25, 0.75, 3))

	assert.True(t, th.Defined)
	assert.False(t, th.Degenerate)
	assert.Equal(t, 5, th.Population)
	assert.InDelta(t, 0.1, th.Bottom, 1e-12)
	assert.InDelta(t, 0.9, th.Top, 1e-12)

	// atom 2 sits at t=0.5, 0.5*3=1.5 rounds half-to-even to 2
	assert.Equal(t, map[int]int{2: 2, 3: 3, 4: 3}, levels)
}

func TestBinnerUnscoredAtomsDoNotMoveThresholds(t *testing.T) {
	b := NewBinner(quietLogger())
	cfg := binConfig(0.25, 0.75, 3)

	table := domain.NewAnnotationTable()
	for idx, d := range []float64{0.2, 0.4, 0.6, 0.8} {
		table.RecordSampling(idx, 200, 200)
		require.NoError(t, table.SetDispersion(idx, d))
	}
	// two atoms that never reached the sampling threshold
	table.RecordSampling(4, 200, 2)
	table.RecordSampling(5, 200, 0)

	th := b.Thresholds(table.Dispersions(), cfg)
	assert.Equal(t, 4, th.Population)
	assert.InDelta(t, 0.35, th.Bottom, 1e-12)
	assert.InDelta(t, 0.65, th.Top, 1e-12)

	levels := b.Assign(table.Dispersions(), th, cfg.NBins)
	assert.NotContains(t, levels, 4)
	assert.NotContains(t, levels, 5)
}

func TestLevelRoundingHalfToEven(t *testing.T) {
	th := domain.Thresholds{Bottom: 0, Top: 1, Defined: true}

	tests := []struct {
		d     float64
		level int
		ok    bool
	}{
		{-0.5, 0, false},
		{0, 0, false},
		{0.1, 0, false},   // 0.4 rounds to 0: treated as no level
		{0.125, 0, false}, // 0.5 rounds to even 0
		{0.2, 1, true},
		{0.375, 2, true}, // 1.5 -> 2
		{0.625, 2, true}, // 2.5 -> 2
		{0.875, 4, true}, // 3.5 -> 4
		{1, 4, true},
		{3, 4, true},
	}

	for _, tt := range tests {
		lvl, ok := Level(tt.d, th, 4)
		assert.Equal(t, tt.ok, ok, "d=%v", tt.d)
		assert.Equal(t, tt.level, lvl, "d=%v", tt.d)
	}
}

func TestBinnerDegenerateAllEqual(t *testing.T) {
	dispersions := map[int]float64{0: 0.3, 1: 0.3, 2: 0.3, 3: 0.3}

	levels, th := NewBinner(quietLogger()).Bin(dispersions, binConfig(0.75, 0.95, 3))

	assert.True(t, th.Defined)
	assert.True(t, th.Degenerate)
	assert.Equal(t, th.Bottom, th.Top)
	// every atom sits on the bottom threshold, so all share the same outcome
	assert.Empty(t, levels)
}

func TestBinnerDegenerateSaturatesAboveBottom(t *testing.T) {
	// inverted quantiles give top < bottom; nothing divides by the gap
	dispersions := map[int]float64{0: 1, 1: 2, 2: 3}

	levels, th := NewBinner(quietLogger()).Bin(dispersions, binConfig(0.9, 0.1, 5))

	assert.True(t, th.Degenerate)
	assert.InDelta(t, 2.8, th.Bottom, 1e-12)
	assert.InDelta(t, 1.2, th.Top, 1e-12)
	assert.Equal(t, map[int]int{2: 5}, levels)
}

func TestBinnerEmptyPopulation(t *testing.T) {
	levels, th := NewBinner(quietLogger()).Bin(map[int]float64{}, domain.DefaultConfig())
	assert.False(t, th.Defined)
	assert.Empty(t, levels)
}

func TestBinnerSingleAtom(t *testing.T) {
	levels, th := NewBinner(quietLogger()).Bin(map[int]float64{4: 0.7}, domain.DefaultConfig())
	assert.True(t, th.Degenerate)
	assert.Empty(t, levels)
}

func TestBinnerProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := NewBinner(quietLogger())

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(40)
		nbins := 1 + rng.Intn(6)
		q1 := rng.Float64()
		q2 := q1 + rng.Float64()*(1-q1)
		cfg := binConfig(q1, q2, nbins)

		dispersions := make(map[int]float64, n)
		for i := 0; i < n; i++ {
			// coarse values force ties
			dispersions[i] = float64(rng.Intn(10)) / 10
		}

		levels, th := b.Bin(dispersions, cfg)
		require.True(t, th.Defined)
		assert.LessOrEqual(t, th.Bottom, th.Top)

		for idx, lvl := range levels {
			assert.GreaterOrEqual(t, lvl, 1)
			assert.LessOrEqual(t, lvl, nbins)
			assert.Greater(t, dispersions[idx], th.Bottom)
		}

		// monotone: a lower dispersion never gets a higher level
		for x, dx := range dispersions {
			for y, dy := range dispersions {
				if dx < dy {
					assert.LessOrEqual(t, levels[x], levels[y], "d(%d)=%v d(%d)=%v", x, dx, y, dy)
				}
			}
		}

		// idempotent under fixed thresholds
		assert.Equal(t, levels, b.Assign(dispersions, th, nbins))
		assert.Equal(t, levels, b.Assign(dispersions, th, nbins))
	}
}

func TestQuantileMethods(t *testing.T) {
	values := []float64{4, 1, 3, 2}

	assert.InDelta(t, 3.25, Quantile(values, 0.75, domain.QuantileLinear), 1e-12)
	assert.InDelta(t, 1.0, Quantile(values, 0, domain.QuantileLinear), 1e-12)
	assert.InDelta(t, 4.0, Quantile(values, 1, domain.QuantileLinear), 1e-12)
	assert.InDelta(t, 2.5, Quantile(values, 0.5, domain.QuantileLinear), 1e-12)
	assert.Equal(t, 3.0, Quantile(values, 0.75, domain.QuantileEmpirical))

	li := Quantile(values, 0.75, domain.QuantileLinInterp)
	assert.GreaterOrEqual(t, li, 2.0)
	assert.LessOrEqual(t, li, 4.0)

	// input is left untouched
	assert.Equal(t, []float64{4, 1, 3, 2}, values)
	assert.Equal(t, 7.5, Quantile([]float64{7.5}, 0.3, domain.QuantileLinear))
}
