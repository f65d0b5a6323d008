// Package repository builds repositories: every declared method is planned
// and compiled exactly once, at construction time, and the results are kept
// for the lifetime of the repository.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/memris/internal/compiler"
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/planner"
	"github.com/roach88/memris/internal/queryir"
)

// Definition declares one repository: the entity it manages and its
// methods in declaration order.
type Definition struct {
	Name    string
	Entity  string
	Methods []*meta.Method
}

// Method is a planned and compiled repository method.
type Method struct {
	Descriptor  *meta.Method
	Plan        *queryir.LogicalQuery
	Compiled    *compiler.CompiledQuery
	Fingerprint string
}

// Repository holds the compiled methods of one Definition.
type Repository struct {
	Name   string
	Entity meta.EntityDescriptor

	// Methods are in declaration order.
	Methods []*Method

	// Fingerprint identifies the set of compiled plans; it changes when any
	// method would execute differently.
	Fingerprint string

	byName map[string]*Method
}

// Method returns the compiled method with the given name. Overloads share
// a name; the first declared one is returned.
func (r *Repository) Method(name string) (*Method, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// DefaultConcurrency is the number of repositories BuildAll compiles at
// once when no WithConcurrency option is given.
var DefaultConcurrency = runtime.GOMAXPROCS(0)

// Builder plans and compiles repositories over one sealed model.
// It is safe for concurrent use.
type Builder struct {
	model       *meta.Model
	planner     *planner.Planner
	concurrency int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithConcurrency bounds the number of repositories BuildAll compiles at
// once. Values below 1 mean one at a time.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		b.concurrency = max(n, 1)
	}
}

// NewBuilder creates a Builder. The model must be sealed.
func NewBuilder(model *meta.Model, opts ...BuilderOption) (*Builder, error) {
	if !model.Sealed() {
		return nil, errors.New("repository: model is not sealed")
	}
	b := &Builder{
		model:       model,
		planner:     planner.New(model),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build plans and compiles every method of def.
//
// Construction fails if any method fails; the returned error joins the
// QueryError of every failing method so one run reports all of them.
func (b *Builder) Build(ctx context.Context, def Definition) (*Repository, error) {
	entity, err := b.model.Entity(def.Entity)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", def.Name, err)
	}
	c := compiler.New(b.model, entity)

	repo := &Repository{
		Name:    def.Name,
		Entity:  entity,
		Methods: make([]*Method, 0, len(def.Methods)),
		byName:  make(map[string]*Method, len(def.Methods)),
	}
	var errs []error
	for _, desc := range def.Methods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := b.buildMethod(c, entity, desc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		repo.Methods = append(repo.Methods, m)
		if _, dup := repo.byName[desc.Name]; !dup {
			repo.byName[desc.Name] = m
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("repository %s: %w", def.Name, errors.Join(errs...))
	}

	fingerprints := make(map[string]string, len(repo.Methods))
	for _, m := range repo.Methods {
		fingerprints[m.Descriptor.Signature()] = m.Fingerprint
	}
	repo.Fingerprint, err = ir.RepositoryFingerprint(entity.Name(), fingerprints)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", def.Name, err)
	}

	slog.Info("repository built",
		"repository", repo.Name,
		"entity", entity.Name(),
		"methods", len(repo.Methods),
		"fingerprint", repo.Fingerprint,
	)
	return repo, nil
}

func (b *Builder) buildMethod(c *compiler.Compiler, entity meta.EntityDescriptor, desc *meta.Method) (*Method, error) {
	plan, err := b.planner.Plan(desc, entity)
	if err != nil {
		return nil, err
	}
	compiled, err := c.Compile(plan)
	if err != nil {
		return nil, err
	}
	fp, err := compiled.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Name, err)
	}

	slog.Debug("method compiled",
		"entity", entity.Name(),
		"method", desc.Signature(),
		"op", compiled.OpCode,
		"return_kind", compiled.ReturnKind,
		"joins", len(compiled.Joins),
		"fingerprint", fp,
	)
	return &Method{Descriptor: desc, Plan: plan, Compiled: compiled, Fingerprint: fp}, nil
}

// BuildAll builds every definition, running up to the configured
// concurrency at once. The result is in the order of defs.
//
// Unlike Build, BuildAll stops at the first repository that fails.
func (b *Builder) BuildAll(ctx context.Context, defs []Definition) ([]*Repository, error) {
	repos := make([]*Repository, len(defs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, def := range defs {
		g.Go(func() error {
			repo, err := b.Build(ctx, def)
			if err != nil {
				return err
			}
			repos[i] = repo
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return repos, nil
}
