package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/memris/internal/catalog"
	"github.com/roach88/memris/internal/compiler"
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/repository"
	"github.com/roach88/memris/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output      string // canonical plan file path
	Concurrency int    // repositories compiled at once, 0 for the default
}

// MethodSummary describes one compiled method.
type MethodSummary struct {
	Signature   string                  `json:"signature"`
	Op          string                  `json:"op"`
	ReturnKind  string                  `json:"return_kind"`
	Fingerprint string                  `json:"fingerprint"`
	Plan        *compiler.CompiledQuery `json:"plan,omitempty"`
}

// RepositorySummary describes one compiled repository.
type RepositorySummary struct {
	Name        string          `json:"name"`
	Entity      string          `json:"entity"`
	Fingerprint string          `json:"fingerprint"`
	Methods     []MethodSummary `json:"methods"`
}

// CompilationResult is the outcome of compiling a schema file.
type CompilationResult struct {
	Source          string              `json:"source"`
	PlanVersion     string              `json:"plan_version"`
	CompilerVersion string              `json:"compiler_version"`
	Repositories    []RepositorySummary `json:"repositories"`
	Build           *catalog.Build      `json:"build,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema-file>",
		Short: "Compile every repository of a schema file",
		Long: `Plan and compile every repository method declared in a YAML or CUE
schema file and print the plan fingerprints.

With --output the full compiled plans are written as canonical JSON.
With --catalog the build is recorded in the plan catalog.

Exit codes:
  0 - Every method compiled
  1 - One or more methods failed to compile
  2 - Command error (schema not found or unreadable, catalog errors)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled plans to this file")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "repositories compiled at once (default GOMAXPROCS)")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := loadSchema(formatter, path)
	if err != nil {
		return err
	}

	var builderOpts []repository.BuilderOption
	if opts.Concurrency > 0 {
		builderOpts = append(builderOpts, repository.WithConcurrency(opts.Concurrency))
	}
	builder, err := repository.NewBuilder(s.Model, builderOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "creating builder", err)
	}

	repos, err := builder.BuildAll(ctx, s.Repositories)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs := cliErrors(err)
		_ = formatter.Errors("compilation", errs)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: compilation failed with %d error(s)", ErrCodeCompileFailed, len(errs)))
	}

	for _, repo := range repos {
		formatter.VerboseLog("Compiled %s: %d method(s)", repo.Name, len(repo.Methods))
	}

	if opts.Output != "" {
		if err := writePlans(opts.Output, newCompilationResult(path, repos, true)); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	result := newCompilationResult(path, repos, false)
	if opts.Catalog != "" {
		build, err := recordBuild(ctx, opts.Catalog, path, s, repos)
		if err != nil {
			_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
			return WrapExitError(ExitCommandError, "recording build", err)
		}
		formatter.VerboseLog("Recorded build %s (seq %d) in %s", build.ID, build.Seq, opts.Catalog)
		result.Build = &build
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	printCompilation(formatter.Writer, result, opts.Output)
	return nil
}

// loadSchema loads a schema file, reporting load errors through formatter.
func loadSchema(formatter *OutputFormatter, path string) (*schema.Schema, error) {
	formatter.VerboseLog("Loading schema %s", path)
	s, err := schema.LoadFile(path)
	if err != nil {
		errs := cliErrors(err)
		_ = formatter.Errors("loading schema", errs)
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", errs[0].Code, errs[0].Message), nil)
	}
	formatter.VerboseLog("Loaded %d entities, %d repositories", len(s.Model.Entities()), len(s.Repositories))
	return s, nil
}

func newCompilationResult(source string, repos []*repository.Repository, withPlans bool) CompilationResult {
	result := CompilationResult{
		Source:          source,
		PlanVersion:     ir.PlanVersion,
		CompilerVersion: ir.CompilerVersion,
		Repositories:    make([]RepositorySummary, 0, len(repos)),
	}
	for _, repo := range repos {
		rs := RepositorySummary{
			Name:        repo.Name,
			Entity:      repo.Entity.Name(),
			Fingerprint: repo.Fingerprint,
			Methods:     make([]MethodSummary, 0, len(repo.Methods)),
		}
		for _, m := range repo.Methods {
			ms := MethodSummary{
				Signature:   m.Descriptor.Signature(),
				Op:          m.Compiled.OpCode.String(),
				ReturnKind:  m.Compiled.ReturnKind.String(),
				Fingerprint: m.Fingerprint,
			}
			if withPlans {
				ms.Plan = m.Compiled
			}
			rs.Methods = append(rs.Methods, ms)
		}
		result.Repositories = append(result.Repositories, rs)
	}
	return result
}

// writePlans writes result as canonical JSON.
func writePlans(path string, result CompilationResult) error {
	data, err := ir.MarshalCanonical(result)
	if err != nil {
		return fmt.Errorf("marshal plans: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func recordBuild(ctx context.Context, dbPath, source string, s *schema.Schema, repos []*repository.Repository) (catalog.Build, error) {
	store, err := catalog.Open(dbPath)
	if err != nil {
		return catalog.Build{}, err
	}
	defer store.Close()
	return store.RecordBuild(ctx, source, s.Model, repos)
}

func printCompilation(w io.Writer, result CompilationResult, outputFile string) {
	methods := 0
	for _, r := range result.Repositories {
		methods += len(r.Methods)
	}
	fmt.Fprintf(w, "OK compiled %d repositories, %d methods\n\n", len(result.Repositories), methods)

	for _, r := range result.Repositories {
		fmt.Fprintf(w, "%s (%s) %s\n", r.Name, r.Entity, shortFingerprint(r.Fingerprint))
		for _, m := range r.Methods {
			fmt.Fprintf(w, "  %-48s %-14s %s\n", m.Signature, m.Op, shortFingerprint(m.Fingerprint))
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled plans to %s\n", outputFile)
	}
	if result.Build != nil {
		fmt.Fprintf(w, "Recorded build %s (seq %d)\n", result.Build.ID, result.Build.Seq)
	}
}

// shortFingerprint trims a hex fingerprint for display.
func shortFingerprint(fp string) string {
	const n = 12
	if len(fp) <= n {
		return fp
	}
	return fp[:n]
}
