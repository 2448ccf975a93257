package sensitivity

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"atomsense/domain/core"
	domain "atomsense/domain/sensitivity"
	"atomsense/internal"
	"atomsense/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *internal.Logger {
	return internal.NewLoggerTo(&bytes.Buffer{}, internal.LogLevelError)
}

func sampleConfig(n int) domain.Config {
	cfg := domain.DefaultConfig()
	cfg.N = n
	return cfg
}

func TestSamplerRecordsPopulationStdDev(t *testing.T) {
	kit := testkit.NewTestKit(7)
	kit.Predictor.Base = 5
	kit.Predictor.Spread = map[int]float64{0: 0.1, 1: 0.5, 2: 0.9}
	mol := testkit.Chain("CCO", "C", "C", "O")

	sampler := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger())
	res, err := sampler.Sample(context.Background(), mol, sampleConfig(20))
	require.NoError(t, err)

	assert.Empty(t, res.Unscored)
	d := res.Dispersions()
	require.Len(t, d, 3)
	assert.InDelta(t, 0.1, d[0], 1e-12)
	assert.InDelta(t, 0.5, d[1], 1e-12)
	assert.InDelta(t, 0.9, d[2], 1e-12)

	for idx := 0; idx < 3; idx++ {
		a, ok := res.Table.Get(idx)
		require.True(t, ok)
		assert.Equal(t, 20, a.Attempts)
		assert.Equal(t, 20, a.Samples)
		assert.GreaterOrEqual(t, *a.Dispersion, 0.0)
		assert.Nil(t, a.Level)
	}

	// one predictor call per atom, each with the full accepted batch
	batches := kit.Predictor.Batches()
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Len(t, b, 20)
	}
}

func TestSamplerInsufficientSamplesIsNonFatal(t *testing.T) {
	kit := testkit.NewTestKit(1)
	kit.Predictor.Spread = map[int]float64{0: 0.3, 1: 0.3, 2: 0.3}
	kit.Mutator.ValidLimit[1] = 2
	mol := testkit.Chain("CCO", "C", "C", "O")

	var logs bytes.Buffer
	sampler := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, internal.NewLoggerTo(&logs, internal.LogLevelWarn))
	res, err := sampler.Sample(context.Background(), mol, sampleConfig(200))
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.Unscored)
	_, scored := res.Dispersions()[1]
	assert.False(t, scored)

	a, ok := res.Table.Get(1)
	require.True(t, ok)
	assert.Equal(t, 2, a.Samples)
	assert.Equal(t, 200, a.Attempts)

	assert.Contains(t, logs.String(), "not enough perturbations for atom 1")
	assert.Contains(t, logs.String(), core.ErrInsufficientSamples.Error())

	for _, b := range kit.Predictor.Batches() {
		atom, _, err := testkit.ParsePerturbation(b[0])
		require.NoError(t, err)
		assert.NotEqual(t, 1, atom, "unscored atom must never reach the predictor")
	}
}

func TestSamplerThresholdIsStrictlyGreater(t *testing.T) {
	tests := []struct {
		valid  int
		scored bool
	}{
		{0, false},
		{3, false},
		{4, true},
	}

	for _, tt := range tests {
		kit := testkit.NewTestKit(3)
		kit.Predictor.Spread = map[int]float64{0: 1}
		kit.Mutator.ValidLimit[0] = tt.valid
		mol := testkit.Chain("C", "C")

		res, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
			Sample(context.Background(), mol, sampleConfig(50))
		require.NoError(t, err)

		_, ok := res.Dispersions()[0]
		assert.Equal(t, tt.scored, ok, "valid=%d", tt.valid)
		if !tt.scored {
			assert.Empty(t, kit.Predictor.Batches())
		}
	}
}

func TestSamplerPerturbsFreshCopies(t *testing.T) {
	kit := testkit.NewTestKit(11)
	mol := testkit.Chain("CCN", "C", "C", "N")

	_, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
		Sample(context.Background(), mol, sampleConfig(10))
	require.NoError(t, err)

	received := kit.Mutator.Received()
	require.Len(t, received, 30)
	seen := make(map[interface{}]bool)
	for _, m := range received {
		assert.NotSame(t, mol, m)
		assert.False(t, seen[m], "molecule copy reused across attempts")
		seen[m] = true
	}
}

func TestSamplerDiscardsInvalidPerturbations(t *testing.T) {
	kit := testkit.NewTestKit(5)
	kit.Mutator.InvalidEvery = 2
	kit.Predictor.Spread = map[int]float64{0: 0.25}
	mol := testkit.Chain("C", "C")

	res, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
		Sample(context.Background(), mol, sampleConfig(20))
	require.NoError(t, err)

	a, ok := res.Table.Get(0)
	require.True(t, ok)
	assert.Equal(t, 20, a.Attempts)
	assert.Equal(t, 10, a.Samples)
	assert.InDelta(t, 0.25, *a.Dispersion, 1e-12)
}

func TestSamplerSanitizationFailuresLeaveAtomsUnscored(t *testing.T) {
	kit := testkit.NewTestKit(5)
	kit.Mutator.Err = core.NewInvalidMoleculeError("sanitization failed")
	mol := testkit.Chain("CO", "C", "O")

	res, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
		Sample(context.Background(), mol, sampleConfig(8))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Unscored)
	assert.Equal(t, 8, kit.Mutator.Calls(0))
	assert.Empty(t, kit.Predictor.Batches())
}

func TestSamplerMutatorFailureAborts(t *testing.T) {
	for _, workers := range []int{1, 3} {
		kit := testkit.NewTestKit(5)
		unavailable := errors.New("chemservice http 503: overloaded")
		kit.Mutator.Err = unavailable
		mol := testkit.Chain("CCO", "C", "C", "O")
		cfg := sampleConfig(8)
		cfg.Workers = workers

		res, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
			Sample(context.Background(), mol, cfg)
		require.Error(t, err, "workers=%d", workers)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, core.ErrPerturbationFailure)
		assert.ErrorIs(t, err, unavailable)
		assert.NotErrorIs(t, err, core.ErrInvalidMolecule)
		assert.Empty(t, kit.Predictor.Batches())
	}
}

func TestSamplerCodecFailureAborts(t *testing.T) {
	kit := testkit.NewTestKit(5)
	timeout := errors.New("chemservice request failed: timeout")
	kit.Codec.Err = timeout
	kit.Codec.FailAfter = 3
	mol := testkit.Chain("CO", "C", "O")

	res, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
		Sample(context.Background(), mol, sampleConfig(8))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrPerturbationFailure)
	assert.ErrorIs(t, err, timeout)
	assert.Contains(t, err.Error(), "atom 0")
	assert.Equal(t, 4, kit.Mutator.Calls(0), "the pass stops at the first failing parse")
	assert.Empty(t, kit.Predictor.Batches())
}

func TestSamplerPredictorFailureAborts(t *testing.T) {
	for _, workers := range []int{1, 3} {
		kit := testkit.NewTestKit(9)
		kit.Predictor.FailOnAtom[1] = true
		mol := testkit.Chain("CCO", "C", "C", "O")
		cfg := sampleConfig(10)
		cfg.Workers = workers

		res, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
			Sample(context.Background(), mol, cfg)
		require.Error(t, err, "workers=%d", workers)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, core.ErrPredictorFailure)
		assert.Contains(t, err.Error(), "atom 1")
	}
}

func TestSamplerPredictionCountMismatchAborts(t *testing.T) {
	kit := testkit.NewTestKit(9)
	kit.Predictor.Truncate = 1
	mol := testkit.Chain("C", "C")

	_, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
		Sample(context.Background(), mol, sampleConfig(10))
	assert.ErrorIs(t, err, core.ErrPredictorFailure)
}

func TestSamplerParallelMatchesSequential(t *testing.T) {
	spread := map[int]float64{0: 0.2, 1: 0.4, 2: 0.6, 3: 0.8, 4: 1.0}
	mol := testkit.Chain("CCCCO", "C", "C", "C", "C", "O")

	run := func(workers int) map[int]float64 {
		kit := testkit.NewTestKit(21)
		kit.Predictor.Spread = spread
		kit.Mutator.ValidLimit[2] = 1
		cfg := sampleConfig(16)
		cfg.Workers = workers
		res, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
			Sample(context.Background(), mol, cfg)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, res.Unscored)
		return res.Dispersions()
	}

	seq := run(1)
	par := run(4)
	require.Len(t, par, len(seq))
	for idx, d := range seq {
		assert.InDelta(t, d, par[idx], 1e-12)
	}
}

func TestSamplerHonoursCancellation(t *testing.T) {
	kit := testkit.NewTestKit(2)
	mol := testkit.Chain("CC", "C", "C")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSampler(kit.Codec, kit.Mutator, kit.Predictor, quietLogger()).
		Sample(ctx, mol, sampleConfig(10))
	assert.ErrorIs(t, err, context.Canceled)
}
