package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gasoline/internal/config"
)

// ConfigValidationResult holds the result of config validate.
type ConfigValidationResult struct {
	File   string                   `json:"file"`
	Valid  bool                     `json:"valid"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with gasoline.yaml files",
	}
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	return cmd
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a config file against the schema",
		Long: `Decode a gasoline.yaml file, apply defaults and validate it against
the embedded CUE schema. Unknown keys are errors.

Exit codes:
  0 - Config is valid
  1 - Config is invalid
  2 - Command error (file not found, etc.)

Examples:
  gasoline config validate ./gasoline.yaml
  gasoline config validate ./gasoline.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, args[0], cmd)
		},
	}
}

func runConfigValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to read config", err)
	}

	cfg, err := config.Parse(data)
	if err == nil {
		formatter.VerboseLog("store: max_steps=%d log_level=%s", cfg.Store.MaxSteps, cfg.Store.LogLevel)
		if formatter.JSON() {
			return formatter.Success(ConfigValidationResult{File: path, Valid: true})
		}
		fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
		return nil
	}

	result := ConfigValidationResult{File: path}
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		result.Errors = verrs
	} else {
		result.Errors = []config.ValidationError{{Message: err.Error()}}
	}

	if formatter.JSON() {
		if encErr := formatter.Failure(ErrCodeInvalidConfig, result.Errors[0].Error(), result); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s is invalid\n", path)
		for _, e := range result.Errors {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeInvalidConfig, e.Error())
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("config has %d error(s)", len(result.Errors)))
}
