package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	domain "atomsense/domain/sensitivity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisFlagsLayering(t *testing.T) {
	t.Setenv("CHEM_SERVICE_URL", "")
	t.Setenv("SENS_N", "40")

	path := filepath.Join(t.TempDir(), "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nbins: 5\ncolorscale: plasma\n"), 0o600))

	cmd := newAnalyzeCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--chem-url", "http://chem:9000",
		"--config", path,
		"--colorscale", "magma",
		"--workers", "2",
	}))

	var flags analysisFlags
	flags.configPath = path
	flags.chemURL = "http://chem:9000"
	flags.cfg = domain.DefaultConfig()
	flags.cfg.ColorScale = "magma"
	flags.cfg.Workers = 2

	appConfig, err := flags.resolve(cmd)
	require.NoError(t, err)

	assert.Equal(t, "http://chem:9000", appConfig.ChemService.URL)
	got := appConfig.Analysis
	assert.Equal(t, 40, got.N, "env value survives")
	assert.Equal(t, 5, got.NBins, "file overrides env")
	assert.Equal(t, "magma", got.ColorScale, "flag overrides file")
	assert.Equal(t, 2, got.Workers)
	assert.Equal(t, 2, got.Radius)
}

func TestColorScalesCommand(t *testing.T) {
	cmd := newColorScalesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "viridis\n")
}
