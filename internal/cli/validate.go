package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/memris/internal/repository"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool       `json:"valid"`
	Repositories int        `json:"repositories"`
	Methods      int        `json:"methods"`
	Errors       []CLIError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Check that every method of a schema compiles",
		Long: `Load a schema file and compile every repository method, reporting
every failing method across every repository instead of stopping at the
first one. Nothing is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := loadSchema(formatter, path)
	if err != nil {
		return err
	}

	builder, err := repository.NewBuilder(s.Model)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "creating builder", err)
	}

	result := ValidationResult{Repositories: len(s.Repositories)}
	for _, def := range s.Repositories {
		result.Methods += len(def.Methods)
		formatter.VerboseLog("Validating %s (%d methods)", def.Name, len(def.Methods))
		if _, err := builder.Build(ctx, def); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			result.Errors = append(result.Errors, cliErrors(err)...)
		}
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		_ = formatter.Errors("validation", result.Errors)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "OK %s is valid: %d repositories, %d methods\n", path, result.Repositories, result.Methods)
	return nil
}
