package catalog

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// ErrNotFound is returned when a build or plan does not exist.
var ErrNotFound = errors.New("not found")

// MethodRecord is one method of a recorded build.
type MethodRecord struct {
	Repository  string `json:"repository"`
	Position    int    `json:"position"`
	Signature   string `json:"signature"`
	Fingerprint string `json:"fingerprint"`
	Op          string `json:"op"`
}

// PlanRecord is a stored plan.
type PlanRecord struct {
	Fingerprint string `json:"fingerprint"`
	Op          string `json:"op"`
	// Plan is the canonical JSON of the CompiledQuery.
	Plan string `json:"plan"`
	SQL  string `json:"sql"`
}

// ChangeKind classifies a method difference between two builds.
type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
	Changed ChangeKind = "changed"
)

// Change is one method that differs between two builds.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	Repository string     `json:"repository"`
	Signature  string     `json:"signature"`
	From       string     `json:"from,omitempty"`
	To         string     `json:"to,omitempty"`
}

// Builds returns every build ordered by seq.
//
// Returns an empty slice (not nil) if the catalog is empty.
func (s *Store) Builds(ctx context.Context) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, source, plan_version, compiler_version
		FROM builds
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.Seq, &b.Source, &b.PlanVersion, &b.CompilerVersion); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// GetBuild returns the build with the given id.
func (s *Store) GetBuild(ctx context.Context, id string) (Build, error) {
	return s.scanBuild(s.db.QueryRowContext(ctx, `
		SELECT id, seq, source, plan_version, compiler_version
		FROM builds
		WHERE id = ?
	`, id), id)
}

// LatestBuild returns the build with the highest seq.
func (s *Store) LatestBuild(ctx context.Context) (Build, error) {
	return s.scanBuild(s.db.QueryRowContext(ctx, `
		SELECT id, seq, source, plan_version, compiler_version
		FROM builds
		ORDER BY seq DESC
		LIMIT 1
	`), "latest")
}

func (s *Store) scanBuild(row *sql.Row, what string) (Build, error) {
	var b Build
	err := row.Scan(&b.ID, &b.Seq, &b.Source, &b.PlanVersion, &b.CompilerVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, fmt.Errorf("build %s: %w", what, ErrNotFound)
	}
	if err != nil {
		return Build{}, fmt.Errorf("query build %s: %w", what, err)
	}
	return b, nil
}

// Methods returns the methods of a build, ordered by repository and
// declaration position.
func (s *Store) Methods(ctx context.Context, buildID string) ([]MethodRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.repository, m.position, m.signature, m.fingerprint, p.op
		FROM methods m
		JOIN plans p ON p.fingerprint = m.fingerprint
		WHERE m.build_id = ?
		ORDER BY m.repository COLLATE BINARY ASC, m.position ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query methods: %w", err)
	}
	defer rows.Close()

	methods := []MethodRecord{}
	for rows.Next() {
		var m MethodRecord
		if err := rows.Scan(&m.Repository, &m.Position, &m.Signature, &m.Fingerprint, &m.Op); err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate methods: %w", err)
	}
	return methods, nil
}

// Plan returns the stored plan with the given fingerprint.
func (s *Store) Plan(ctx context.Context, fingerprint string) (PlanRecord, error) {
	var p PlanRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, op, plan, sql
		FROM plans
		WHERE fingerprint = ?
	`, fingerprint).Scan(&p.Fingerprint, &p.Op, &p.Plan, &p.SQL)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, fmt.Errorf("plan %s: %w", fingerprint, ErrNotFound)
	}
	if err != nil {
		return PlanRecord{}, fmt.Errorf("query plan %s: %w", fingerprint, err)
	}
	return p, nil
}

// Diff lists the methods whose plans differ between two builds, keyed by
// repository and signature. The result is sorted by repository, then
// signature.
func (s *Store) Diff(ctx context.Context, fromID, toID string) ([]Change, error) {
	for _, id := range []string{fromID, toID} {
		if _, err := s.GetBuild(ctx, id); err != nil {
			return nil, err
		}
	}
	from, err := s.Methods(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.Methods(ctx, toID)
	if err != nil {
		return nil, err
	}

	type key struct{ repository, signature string }
	before := make(map[key]string, len(from))
	for _, m := range from {
		before[key{m.Repository, m.Signature}] = m.Fingerprint
	}

	changes := []Change{}
	for _, m := range to {
		k := key{m.Repository, m.Signature}
		old, ok := before[k]
		delete(before, k)
		switch {
		case !ok:
			changes = append(changes, Change{Kind: Added, Repository: m.Repository, Signature: m.Signature, To: m.Fingerprint})
		case old != m.Fingerprint:
			changes = append(changes, Change{Kind: Changed, Repository: m.Repository, Signature: m.Signature, From: old, To: m.Fingerprint})
		}
	}
	for k, fp := range before {
		changes = append(changes, Change{Kind: Removed, Repository: k.repository, Signature: k.signature, From: fp})
	}

	slices.SortFunc(changes, func(a, b Change) int {
		return cmp.Or(
			cmp.Compare(a.Repository, b.Repository),
			cmp.Compare(a.Signature, b.Signature),
		)
	})
	return changes, nil
}
