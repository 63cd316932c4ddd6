package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/gasoline/internal/config"
	"github.com/roach88/gasoline/internal/engine"
	"github.com/roach88/gasoline/internal/harness"
	"github.com/roach88/gasoline/internal/metrics"
	"github.com/roach88/gasoline/internal/persist"
)

// ScenarioOptions holds flags for the scenario commands.
type ScenarioOptions struct {
	*RootOptions
	Config    string
	GoldenDir string
	Update    bool // regenerate golden files
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name       string   `json:"name"`
	File       string   `json:"file"`
	Pass       bool     `json:"pass"`
	Errors     []string `json:"errors,omitempty"`
	Recorded   int64    `json:"recorded,omitempty"`
	SnapshotID int64    `json:"snapshot_id,omitempty"`
}

// VerifyResult holds the overall scenario verification result.
type VerifyResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
	Passes    float64          `json:"passes"`
}

// NewScenarioCommand creates the scenario command group.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Run YAML scenarios against the built-in fixtures",
	}

	verify := &cobra.Command{
		Use:   "verify <scenario.yaml>...",
		Short: "Run scenarios and check their expectations",
		Long: `Run each scenario file against its fixture on a virtual clock and
check the expected states, changed paths and actions.

With --golden, the action log and final dump of each scenario are also
compared with <dir>/<name>.golden; --update rewrites those files.

When the --config file sets persistence.database, each run is recorded
there: its actions, with ids prefixed by the scenario name, when
persistence.record_actions is true, and its final dump when
persistence.snapshot_on_stop is true.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid config, etc.)

Examples:
  gasoline scenario verify ./scenarios/*.yaml
  gasoline scenario verify ./scenarios/counter.yaml --golden ./golden
  gasoline scenario verify ./scenarios/*.yaml --golden ./golden --update`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioVerify(opts, args, cmd)
		},
	}
	verify.Flags().StringVar(&opts.Config, "config", "", "gasoline.yaml providing store, persistence and metrics settings")
	verify.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden files")
	verify.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")

	cmd.AddCommand(verify)
	return cmd
}

func runScenarioVerify(opts *ScenarioOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Update && opts.GoldenDir == "" {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "--update requires --golden", nil)
	}

	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeInvalidConfig, "failed to load config", err)
		}
		cfg = loaded
	}

	var logger *slog.Logger
	if opts.Verbose {
		logger = opts.logger(cmd, cfg.Level())
	}
	storeOpts := cfg.EngineOptions(logger)

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		collector, err := metrics.New(cfg.Metrics.Namespace, reg)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to register metrics", err)
		}
		storeOpts = append(storeOpts, engine.WithMetrics(collector))
	}

	var db *persist.DB
	if cfg.Persistence.Database != "" && (cfg.Persistence.RecordActions || cfg.Persistence.SnapshotOnStop) {
		opened, err := persist.Open(cfg.Persistence.Database, persist.WithLogger(opts.logger(cmd, slog.LevelWarn)))
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to open database", err)
		}
		defer opened.Close()
		db = opened
	}

	result := VerifyResult{Scenarios: make([]ScenarioResult, 0, len(files))}
	for _, file := range files {
		sr := opts.verifyFile(cmd.Context(), file, storeOpts, db, cfg.Persistence)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if !formatter.JSON() {
			printScenarioResult(formatter, sr)
		}
	}
	result.Total = len(files)
	result.Passes = countPasses(reg)
	formatter.VerboseLog("%v update passes across %d scenario(s)", result.Passes, result.Total)

	if formatter.JSON() {
		if result.Failed > 0 {
			if err := formatter.Failure(ErrCodeScenario, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total), result); err != nil {
				return err
			}
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func (o *ScenarioOptions) verifyFile(ctx context.Context, file string, storeOpts []engine.StoreOption, db *persist.DB, pc config.PersistenceConfig) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	var hooks harness.Hooks
	if db != nil {
		var rec *persist.Recorder
		hooks.Created = func(store *engine.Store) {
			if pc.RecordActions {
				rec = persist.Record(ctx, db, store, persist.WithNamespace(scenario.Name))
			}
		}
		hooks.Stopped = func(store *engine.Store) error {
			if rec != nil {
				rec.Close()
				sr.Recorded = rec.Written()
				if n := rec.Failed(); n > 0 {
					return fmt.Errorf("%d action(s) could not be recorded", n)
				}
			}
			if pc.SnapshotOnStop {
				snap, _, err := persist.Checkpoint(ctx, db, store)
				if err != nil {
					return err
				}
				sr.SnapshotID = snap.ID
			}
			return nil
		}
	}

	run, err := harness.RunScenarioWith(scenario, hooks, storeOpts...)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Errors = append(sr.Errors, run.Errors...)

	if o.GoldenDir != "" {
		if err := o.compareGolden(scenario.Name, run); err != nil {
			sr.Errors = append(sr.Errors, err.Error())
		}
	}
	sr.Pass = len(sr.Errors) == 0
	return sr
}

func (o *ScenarioOptions) compareGolden(name string, run *harness.Result) error {
	got, err := harness.GoldenBytes(name, run)
	if err != nil {
		return fmt.Errorf("golden: %w", err)
	}
	path := filepath.Join(o.GoldenDir, name+".golden")

	if o.Update {
		if err := os.MkdirAll(o.GoldenDir, 0o755); err != nil {
			return fmt.Errorf("golden: %w", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			return fmt.Errorf("golden: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("golden: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(want), got) {
		return fmt.Errorf("golden mismatch for %s:\n  expected: %s\n  actual:   %s", path, bytes.TrimSpace(want), got)
	}
	return nil
}

func printScenarioResult(f *OutputFormatter, sr ScenarioResult) {
	if sr.Pass {
		fmt.Fprintf(f.Writer, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
}

// countPasses sums the store passes counter of reg.
func countPasses(reg *prometheus.Registry) float64 {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), "_store_passes_total") {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
