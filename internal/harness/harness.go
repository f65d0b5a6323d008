package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/repository"
	"github.com/roach88/memris/internal/schema"
)

// Harness runs compile scenarios.
type Harness struct {
	logger *slog.Logger
}

// New creates a Harness that logs to logger. A nil logger discards.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{logger: logger}
}

// Run executes a scenario with a silent harness.
func Run(scenario *Scenario) (*Result, error) {
	return New(nil).Run(context.Background(), scenario)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Load and build the scenario's schema
// 2. Collect the repository's declared methods, then the inline methods
// 3. Compile each method as a single-method repository
// 4. Evaluate assertions against the per-method outcomes
//
// The returned error covers problems with the scenario itself (unreadable
// schema, unknown repository or types). Compile failures are recorded in
// the result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	s, err := schema.LoadFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	defs, err := collectMethods(s, scenario)
	if err != nil {
		return nil, err
	}

	b, err := repository.NewBuilder(s.Model)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for _, def := range defs {
		mr, err := h.compile(ctx, b, def)
		if err != nil {
			return nil, err
		}
		result.Methods = append(result.Methods, mr)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"methods", len(result.Methods),
		"pass", result.Pass,
	)
	return result, nil
}

// collectMethods returns one single-method definition per method to compile.
func collectMethods(s *schema.Schema, scenario *Scenario) ([]repository.Definition, error) {
	var defs []repository.Definition
	entity := scenario.Entity

	if scenario.Repository != "" {
		var found *repository.Definition
		for i := range s.Repositories {
			if s.Repositories[i].Name == scenario.Repository {
				found = &s.Repositories[i]
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("repository %q is not declared in %s", scenario.Repository, scenario.Schema)
		}
		if entity == "" {
			entity = found.Entity
		}
		for _, m := range found.Methods {
			defs = append(defs, single(found.Name, found.Entity, m))
		}
	}

	for i, md := range scenario.Methods {
		m, err := schema.BuildMethod(s.Model, md)
		if err != nil {
			return nil, fmt.Errorf("methods[%d] %s: %w", i, md.Name, err)
		}
		defs = append(defs, single(scenario.Name, entity, m))
	}
	return defs, nil
}

func single(name, entity string, m *meta.Method) repository.Definition {
	return repository.Definition{Name: name, Entity: entity, Methods: []*meta.Method{m}}
}

// compile builds one single-method definition. Only context cancellation
// and non-query failures are returned as errors.
func (h *Harness) compile(ctx context.Context, b *repository.Builder, def repository.Definition) (MethodResult, error) {
	desc := def.Methods[0]
	mr := MethodResult{
		Method:    desc.Name,
		Signature: desc.Signature(),
		Entity:    def.Entity,
	}

	repo, err := b.Build(ctx, def)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return mr, ctxErr
		}
		var qe *ir.QueryError
		if !errors.As(err, &qe) {
			return mr, fmt.Errorf("method %s: %w", desc.Name, err)
		}
		mr.Error = &MethodError{Kind: string(qe.Kind), Code: qe.Code, Message: qe.Error()}
		h.logger.Debug("method rejected",
			"method", mr.Signature,
			"code", qe.Code,
			"error", qe.Message,
		)
		return mr, nil
	}

	m := repo.Methods[0]
	mr.Compiled = m.Compiled
	mr.Fingerprint = m.Fingerprint
	h.logger.Debug("method compiled",
		"method", mr.Signature,
		"op", m.Compiled.OpCode,
		"fingerprint", m.Fingerprint,
	)
	return mr, nil
}
