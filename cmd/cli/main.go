package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"atomsense/adapters/colorscale"
	"atomsense/adapters/excel"
	"atomsense/adapters/report"
	domain "atomsense/domain/sensitivity"
	"atomsense/internal/config"
	"atomsense/internal/server"
	"atomsense/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "atomsense",
		Short: "Per-atom prediction sensitivity for molecules",
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newServeCmd(),
		newColorScalesCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// analysisFlags mirrors every analysis option as a command-line flag
type analysisFlags struct {
	configPath string
	chemURL    string
	cfg        domain.Config
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	def := domain.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "YAML file with analysis options")
	flags.StringVar(&f.chemURL, "chem-url", "", "Chemistry service URL (overrides CHEM_SERVICE_URL)")
	flags.IntVar(&f.cfg.Radius, "radius", def.Radius, "Neighbourhood radius passed to the mutation generator")
	flags.IntVar(&f.cfg.N, "n", def.N, "Perturbation attempts per atom")
	flags.Float64Var(&f.cfg.BottomQuantile, "bottom-quantile", def.BottomQuantile, "Quantile of the bottom threshold")
	flags.Float64Var(&f.cfg.TopQuantile, "top-quantile", def.TopQuantile, "Quantile of the top threshold")
	flags.IntVar(&f.cfg.NBins, "nbins", def.NBins, "Number of levels")
	flags.StringVar(&f.cfg.ColorScale, "colorscale", def.ColorScale, "Colour scale name, _r suffix reverses")
	flags.IntVar(&f.cfg.MinValidSamples, "min-valid-samples", def.MinValidSamples, "An atom needs more valid perturbations than this to be scored")
	flags.StringVar((*string)(&f.cfg.QuantileMethod), "quantile-method", string(def.QuantileMethod), "Quantile rule: linear, empirical or lininterp")
	flags.IntVar(&f.cfg.Workers, "workers", def.Workers, "Atoms sampled in parallel")
}

// resolve layers env defaults, the YAML file, then explicitly set flags
func (f *analysisFlags) resolve(cmd *cobra.Command) (*config.Config, error) {
	if f.chemURL != "" {
		if err := os.Setenv("CHEM_SERVICE_URL", f.chemURL); err != nil {
			return nil, err
		}
	}
	appConfig, err := config.Load()
	if err != nil {
		return nil, err
	}

	cfg := appConfig.Analysis
	if f.configPath != "" {
		if cfg, err = config.LoadAnalysisFile(f.configPath, cfg); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("radius") {
		cfg.Radius = f.cfg.Radius
	}
	if flags.Changed("n") {
		cfg.N = f.cfg.N
	}
	if flags.Changed("bottom-quantile") {
		cfg.BottomQuantile = f.cfg.BottomQuantile
	}
	if flags.Changed("top-quantile") {
		cfg.TopQuantile = f.cfg.TopQuantile
	}
	if flags.Changed("nbins") {
		cfg.NBins = f.cfg.NBins
	}
	if flags.Changed("colorscale") {
		cfg.ColorScale = f.cfg.ColorScale
	}
	if flags.Changed("min-valid-samples") {
		cfg.MinValidSamples = f.cfg.MinValidSamples
	}
	if flags.Changed("quantile-method") {
		cfg.QuantileMethod = f.cfg.QuantileMethod
	}
	if flags.Changed("workers") {
		cfg.Workers = f.cfg.Workers
	}

	appConfig.Analysis = cfg
	return appConfig, nil
}

func newAnalyzeCmd() *cobra.Command {
	var flags analysisFlags
	var outPath, htmlPath, xlsxPath, markdownPath string

	cmd := &cobra.Command{
		Use:   "analyze [smiles]",
		Short: "Score every atom of a molecule and print the render payload",
		Long: `Perturb the molecule around each atom, score the perturbations with the
predictor and bin the per-atom dispersion into colour levels.

Example: atomsense analyze "CC(=O)Oc1ccccc1C(=O)O" --n 100 --nbins 4 --html aspirin.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			c, err := server.Bootstrap(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			run, err := c.Sensitivity.Analyze(cmd.Context(), args[0], appConfig.Analysis)
			if err != nil {
				return err
			}
			return writeOutputs(cmd, run, outPath, htmlPath, xlsxPath, markdownPath)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outPath, "out", "", "Write the full run as JSON to this file")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Write the dispersion chart to this HTML file")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write the per-atom table to this workbook")
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "Write the markdown summary to this file")

	return cmd
}

func writeOutputs(cmd *cobra.Command, run *ports.RunRecord, outPath, htmlPath, xlsxPath, markdownPath string) error {
	payload, err := json.MarshalIndent(run.Payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(payload))

	if outPath != "" {
		raw, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
	}
	if htmlPath != "" {
		f, err := os.Create(htmlPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.RenderChart(f, run); err != nil {
			return err
		}
	}
	if xlsxPath != "" {
		if err := excel.WriteXLSX(xlsxPath, run); err != nil {
			return err
		}
	}
	if markdownPath != "" {
		if err := os.WriteFile(markdownPath, []byte(report.Markdown(run)), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", markdownPath, err)
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d atoms, %d unscored, thresholds [%.4g, %.4g], %dms\n",
		run.ID, len(run.Elements), len(run.Unscored), run.Thresholds.Bottom, run.Thresholds.Top, run.RuntimeMs)
	return nil
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				appConfig.Server.Port = port
			}

			c, err := server.Bootstrap(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			return server.Run(cmd.Context(), c)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}

func newColorScalesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "colorscales",
		Short: "List the available colour scales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := colorscale.NewRegistry()
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
