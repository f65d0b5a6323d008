package catalog

import (
	"context"
	"fmt"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/querysql"
	"github.com/roach88/memris/internal/repository"
)

// Build is one recorded schema compilation.
type Build struct {
	ID              string `json:"id"`
	Seq             int64  `json:"seq"`
	Source          string `json:"source"`
	PlanVersion     string `json:"plan_version"`
	CompilerVersion string `json:"compiler_version"`
}

// RecordBuild stores repos as a new build and returns it.
//
// The build, its repositories and their methods are written in one
// transaction. Plans already in the catalog are not rewritten.
// entities resolves the entities the plans reference, for SQL rendering.
func (s *Store) RecordBuild(ctx context.Context, source string, entities meta.Resolver, repos []*repository.Repository) (Build, error) {
	id, err := s.ids.Generate()
	if err != nil {
		return Build{}, fmt.Errorf("record build: generate id: %w", err)
	}
	b := Build{
		ID:              id,
		Source:          source,
		PlanVersion:     ir.PlanVersion,
		CompilerVersion: ir.CompilerVersion,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Build{}, fmt.Errorf("record build: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM builds`).Scan(&b.Seq); err != nil {
		return Build{}, fmt.Errorf("record build: next seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO builds (id, seq, source, plan_version, compiler_version)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.Seq, b.Source, b.PlanVersion, b.CompilerVersion); err != nil {
		return Build{}, fmt.Errorf("record build: %w", err)
	}

	sqlc := querysql.NewSQLCompiler(entities)
	for _, repo := range repos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO repositories (build_id, name, entity, fingerprint)
			VALUES (?, ?, ?, ?)
		`, b.ID, repo.Name, repo.Entity.Name(), repo.Fingerprint); err != nil {
			return Build{}, fmt.Errorf("record build: repository %s: %w", repo.Name, err)
		}

		for pos, m := range repo.Methods {
			planJSON, err := ir.MarshalCanonical(m.Compiled)
			if err != nil {
				return Build{}, fmt.Errorf("record build: %s.%s: %w", repo.Name, m.Descriptor.Name, err)
			}
			stmt, err := sqlc.Compile(m.Compiled)
			if err != nil {
				return Build{}, fmt.Errorf("record build: %s.%s: %w", repo.Name, m.Descriptor.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO plans (fingerprint, op, plan, sql)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(fingerprint) DO NOTHING
			`, m.Fingerprint, m.Compiled.OpCode.String(), string(planJSON), stmt.SQL); err != nil {
				return Build{}, fmt.Errorf("record build: plan %s: %w", m.Fingerprint, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO methods (build_id, repository, position, signature, fingerprint)
				VALUES (?, ?, ?, ?, ?)
			`, b.ID, repo.Name, pos, m.Descriptor.Signature(), m.Fingerprint); err != nil {
				return Build{}, fmt.Errorf("record build: %s.%s: %w", repo.Name, m.Descriptor.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Build{}, fmt.Errorf("record build: commit: %w", err)
	}
	return b, nil
}

// DeleteBuild removes a build with its repositories and methods. Plans no
// longer referenced by any build are removed too.
func (s *Store) DeleteBuild(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete build: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete build: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete build %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM plans
		WHERE fingerprint NOT IN (SELECT fingerprint FROM methods)
	`); err != nil {
		return fmt.Errorf("delete build: prune plans: %w", err)
	}
	return tx.Commit()
}
