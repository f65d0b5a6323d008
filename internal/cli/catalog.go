package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/memris/internal/catalog"
)

// BuildMethods is a build with its methods.
type BuildMethods struct {
	Build   catalog.Build          `json:"build"`
	Methods []catalog.MethodRecord `json:"methods"`
}

// BuildDiff is the method-level difference between two builds.
type BuildDiff struct {
	From    catalog.Build    `json:"from"`
	To      catalog.Build    `json:"to"`
	Changes []catalog.Change `json:"changes"`
}

// NewCatalogCommand creates the catalog command and its subcommands.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the plan catalog",
		Long: `Inspect the SQLite plan catalog written by "compile --catalog".

Builds are referenced by id or by "latest".`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "builds",
		Short:         "List recorded builds",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *catalog.Store) error {
				builds, err := s.Builds(ctx)
				if err != nil {
					return err
				}
				if f.Format == "json" {
					return f.Success(builds)
				}
				printBuilds(f.Writer, builds)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "methods [build-id]",
		Short:         "List the methods of a build (default latest)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := "latest"
			if len(args) == 1 {
				ref = args[0]
			}
			return withCatalog(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *catalog.Store) error {
				build, err := resolveBuild(ctx, s, ref)
				if err != nil {
					return err
				}
				methods, err := s.Methods(ctx, build.ID)
				if err != nil {
					return err
				}
				if f.Format == "json" {
					return f.Success(BuildMethods{Build: build, Methods: methods})
				}
				printMethods(f.Writer, build, methods)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "plan <fingerprint>",
		Short:         "Show a stored plan and its SQL",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *catalog.Store) error {
				plan, err := s.Plan(ctx, args[0])
				if err != nil {
					return err
				}
				if f.Format == "json" {
					return f.Success(plan)
				}
				fmt.Fprintf(f.Writer, "Fingerprint: %s\nOperation:   %s\n\nPlan:\n  %s\n\nSQL:\n  %s\n",
					plan.Fingerprint, plan.Op, plan.Plan, plan.SQL)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "diff <from-build> <to-build>",
		Short:         "Show methods added, removed or changed between two builds",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *catalog.Store) error {
				from, err := resolveBuild(ctx, s, args[0])
				if err != nil {
					return err
				}
				to, err := resolveBuild(ctx, s, args[1])
				if err != nil {
					return err
				}
				changes, err := s.Diff(ctx, from.ID, to.ID)
				if err != nil {
					return err
				}
				diff := BuildDiff{From: from, To: to, Changes: changes}
				if f.Format == "json" {
					return f.Success(diff)
				}
				printDiff(f.Writer, diff)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <build-id>",
		Short:         "Delete a build and the plans only it referenced",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *catalog.Store) error {
				build, err := resolveBuild(ctx, s, args[0])
				if err != nil {
					return err
				}
				if err := s.DeleteBuild(ctx, build.ID); err != nil {
					return err
				}
				if f.Format == "json" {
					return f.Success(build)
				}
				fmt.Fprintf(f.Writer, "Deleted build %s (seq %d)\n", build.ID, build.Seq)
				return nil
			})
		},
	})

	return cmd
}

// withCatalog opens the catalog named by --catalog, runs fn and maps its
// error to an exit code: missing builds and plans fail, anything else is
// a command error.
func withCatalog(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, *OutputFormatter, *catalog.Store) error) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Catalog == "" {
		_ = formatter.Error(ErrCodeCatalog, "catalog path required (--catalog)", nil)
		return NewExitError(ExitCommandError, "catalog path required (--catalog)")
	}

	formatter.VerboseLog("Opening catalog %s", opts.Catalog)
	store, err := catalog.Open(opts.Catalog)
	if err != nil {
		_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening catalog", err)
	}
	defer store.Close()

	if err := fn(cmd.Context(), formatter, store); err != nil {
		_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
		if errors.Is(err, catalog.ErrNotFound) {
			return WrapExitError(ExitFailure, "catalog", err)
		}
		return WrapExitError(ExitCommandError, "catalog", err)
	}
	return nil
}

func resolveBuild(ctx context.Context, s *catalog.Store, ref string) (catalog.Build, error) {
	if ref == "latest" {
		return s.LatestBuild(ctx)
	}
	return s.GetBuild(ctx, ref)
}

func printBuilds(w io.Writer, builds []catalog.Build) {
	if len(builds) == 0 {
		fmt.Fprintln(w, "No builds recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tSOURCE\tPLAN\tCOMPILER")
	for _, b := range builds {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", b.Seq, b.ID, b.Source, b.PlanVersion, b.CompilerVersion)
	}
	tw.Flush()
}

func printMethods(w io.Writer, build catalog.Build, methods []catalog.MethodRecord) {
	fmt.Fprintf(w, "Build %s (seq %d) from %s\n\n", build.ID, build.Seq, build.Source)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tMETHOD\tOP\tPLAN")
	for _, m := range methods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Repository, m.Signature, m.Op, shortFingerprint(m.Fingerprint))
	}
	tw.Flush()
}

func printDiff(w io.Writer, diff BuildDiff) {
	fmt.Fprintf(w, "Build %d -> %d\n", diff.From.Seq, diff.To.Seq)
	if len(diff.Changes) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	for _, c := range diff.Changes {
		switch c.Kind {
		case catalog.Added:
			fmt.Fprintf(w, "+ %s.%s %s\n", c.Repository, c.Signature, shortFingerprint(c.To))
		case catalog.Removed:
			fmt.Fprintf(w, "- %s.%s %s\n", c.Repository, c.Signature, shortFingerprint(c.From))
		default:
			fmt.Fprintf(w, "~ %s.%s %s -> %s\n", c.Repository, c.Signature, shortFingerprint(c.From), shortFingerprint(c.To))
		}
	}
}
