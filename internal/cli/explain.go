package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/memris/internal/compiler"
	"github.com/roach88/memris/internal/lexer"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/queryir"
	"github.com/roach88/memris/internal/querysql"
	"github.com/roach88/memris/internal/repository"
	"github.com/roach88/memris/internal/schema"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	NoSQL bool
}

// Explanation shows every stage of compiling one method.
type Explanation struct {
	Repository  string                  `json:"repository"`
	Signature   string                  `json:"signature"`
	Query       string                  `json:"query,omitempty"`
	Tokens      []lexer.Token           `json:"tokens,omitempty"`
	Plan        *queryir.LogicalQuery   `json:"plan"`
	Compiled    *compiler.CompiledQuery `json:"compiled"`
	Fingerprint string                  `json:"fingerprint"`
	SQL         *querysql.Statement     `json:"sql,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <schema-file> <repository> <method>",
		Short: "Show how one repository method compiles",
		Long: `Show the stages of compiling one repository method: the method-name
tokens (derived methods only), the logical plan, the compiled plan with
its fingerprint and the SQLite statement it renders to.

Overloaded methods are explained by their first declaration.

Examples:
  memris explain schema.yaml PersonRepository findByNameAndAgeGreaterThan
  memris explain schema.cue ProductRepository cheap --format json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSQL, "no-sql", false, "omit the rendered SQL statement")

	return cmd
}

func runExplain(ctx context.Context, opts *ExplainOptions, path, repoName, methodName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := loadSchema(formatter, path)
	if err != nil {
		return err
	}

	def, desc, err := findMethod(s, repoName, methodName)
	if err != nil {
		_ = formatter.Error(ErrCodeUnknownTarget, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeUnknownTarget, err)
	}

	exp, err := explain(ctx, s, def, desc, !opts.NoSQL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs := cliErrors(err)
		_ = formatter.Errors("explain "+desc.Signature(), errs)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s does not compile", ErrCodeCompileFailed, desc.Signature()))
	}

	if formatter.Format == "json" {
		return formatter.Success(exp)
	}
	return printExplanation(formatter.Writer, exp)
}

func findMethod(s *schema.Schema, repoName, methodName string) (repository.Definition, *meta.Method, error) {
	for _, def := range s.Repositories {
		if def.Name != repoName {
			continue
		}
		for _, m := range def.Methods {
			if m.Name == methodName {
				return def, m, nil
			}
		}
		return def, nil, fmt.Errorf("repository %s declares no method %s", repoName, methodName)
	}
	return repository.Definition{}, nil, fmt.Errorf("unknown repository %s", repoName)
}

// explain compiles desc alone, so failures in sibling methods do not hide it.
func explain(ctx context.Context, s *schema.Schema, def repository.Definition, desc *meta.Method, withSQL bool) (*Explanation, error) {
	builder, err := repository.NewBuilder(s.Model)
	if err != nil {
		return nil, err
	}
	repo, err := builder.Build(ctx, repository.Definition{
		Name:    def.Name,
		Entity:  def.Entity,
		Methods: []*meta.Method{desc},
	})
	if err != nil {
		return nil, err
	}
	m := repo.Methods[0]

	exp := &Explanation{
		Repository:  def.Name,
		Signature:   desc.Signature(),
		Plan:        m.Plan,
		Compiled:    m.Compiled,
		Fingerprint: m.Fingerprint,
	}
	if desc.Query != nil {
		exp.Query = desc.Query.Text
	} else if tokens, err := lexer.New(s.Model).Tokenize(desc.Name, repo.Entity); err == nil {
		// Built-ins such as save(Person) do not always tokenize.
		exp.Tokens = tokens
	}
	if withSQL {
		stmt, err := querysql.NewSQLCompiler(s.Model).Compile(m.Compiled)
		if err != nil {
			return nil, err
		}
		exp.SQL = stmt
	}
	return exp, nil
}

func printExplanation(w io.Writer, exp *Explanation) error {
	fmt.Fprintf(w, "Method:      %s.%s\n", exp.Repository, exp.Signature)
	fmt.Fprintf(w, "Operation:   %s -> %s\n", exp.Compiled.OpCode, exp.Compiled.ReturnKind)
	fmt.Fprintf(w, "Fingerprint: %s\n", exp.Fingerprint)

	if exp.Query != "" {
		fmt.Fprintf(w, "\nQuery:\n  %s\n", exp.Query)
	}
	if len(exp.Tokens) > 0 {
		fmt.Fprintln(w, "\nTokens:")
		for _, tok := range exp.Tokens {
			fmt.Fprintf(w, "  %s\n", tok)
		}
	}

	for _, section := range []struct {
		title string
		v     any
	}{
		{"Logical plan", exp.Plan},
		{"Compiled plan", exp.Compiled},
	} {
		data, err := json.MarshalIndent(section.v, "  ", "  ")
		if err != nil {
			return fmt.Errorf("render %s: %w", section.title, err)
		}
		fmt.Fprintf(w, "\n%s:\n  %s\n", section.title, data)
	}

	if exp.SQL != nil {
		fmt.Fprintf(w, "\nSQL:\n  %s\n", exp.SQL.SQL)
		for _, p := range exp.SQL.Params {
			fmt.Fprintf(w, "  ?%d = %s\n", p.Placeholder, describeParam(p))
		}
		if exp.SQL.PerElement {
			fmt.Fprintln(w, "  (executed once per element)")
		}
	}
	return nil
}

func describeParam(p querysql.Param) string {
	switch {
	case p.Parameter < 0:
		return fmt.Sprintf("literal %v", p.Value)
	case p.Property != "":
		return fmt.Sprintf("arg %d .%s", p.Parameter, p.Property)
	case p.JSON:
		return fmt.Sprintf("arg %d (json array)", p.Parameter)
	default:
		return fmt.Sprintf("arg %d", p.Parameter)
	}
}
