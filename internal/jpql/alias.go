package jpql

import (
	"slices"

	"github.com/roach88/memris/internal/ir"
)

// scope maps query aliases to property-path prefixes. The root alias maps
// to the empty prefix; a join alias maps to its relationship path.
type scope struct {
	root    string
	aliases map[string][]string
}

func newScope(root string) *scope {
	sc := &scope{root: root, aliases: make(map[string][]string)}
	if root != "" {
		sc.aliases[root] = nil
	}
	return sc
}

func (sc *scope) declare(alias string, prefix []string, pos int) error {
	if alias == "" {
		return nil
	}
	if _, dup := sc.aliases[alias]; dup {
		return ir.GrammarError(ir.ErrCodeSyntax, "", pos, "duplicate alias %q", alias)
	}
	sc.aliases[alias] = prefix
	return nil
}

// rewrite resolves p through the alias table. Without a root alias,
// unqualified paths are taken as entity-relative.
func (sc *scope) rewrite(p Path) (Path, error) {
	if len(p.Segments) == 0 {
		return p, nil
	}
	prefix, ok := sc.aliases[p.Segments[0]]
	if !ok {
		if sc.root == "" {
			return p, nil
		}
		return Path{}, ir.GrammarError(ir.ErrCodeSyntax, "", p.Pos, "unknown alias %q", p.Segments[0])
	}
	segs := slices.Concat(prefix, p.Segments[1:])
	return Path{Segments: segs, Pos: p.Pos}, nil
}

// property rewrites p and requires the result to name a property.
func (sc *scope) property(p Path) (Path, error) {
	out, err := sc.rewrite(p)
	if err != nil {
		return Path{}, err
	}
	if len(out.Segments) == 0 {
		return Path{}, ir.GrammarError(ir.ErrCodeSyntax, "", p.Pos, "alias %q does not name a property", p.String())
	}
	return out, nil
}

// countTarget checks that COUNT(x) names the root alias.
func (sc *scope) countTarget(p Path) error {
	if len(p.Segments) == 1 && sc.root != "" && p.Segments[0] == sc.root {
		return nil
	}
	return ir.GrammarError(ir.ErrCodeSyntax, "", p.Pos, "COUNT must reference the root alias %q", sc.root)
}

func resolveAliases(stmt Statement) error {
	switch s := stmt.(type) {
	case *SelectStatement:
		return resolveSelect(s)
	case *UpdateStatement:
		sc := newScope(s.Alias)
		for i := range s.Assignments {
			path, err := sc.property(s.Assignments[i].Path)
			if err != nil {
				return err
			}
			s.Assignments[i].Path = path
		}
		return sc.expr(s.Where)
	case *DeleteStatement:
		return newScope(s.Alias).expr(s.Where)
	default:
		return ir.GrammarError(ir.ErrCodeSyntax, "", -1, "unknown statement type %T", stmt)
	}
}

func resolveSelect(s *SelectStatement) error {
	sc := newScope(s.Alias)

	for i := range s.Joins {
		j := &s.Joins[i]
		path, err := sc.property(j.Path)
		if err != nil {
			return err
		}
		j.Path = path
		if err := sc.declare(j.Alias, path.Segments, j.Path.Pos); err != nil {
			return err
		}
	}

	switch {
	case s.Count:
		if err := sc.countTarget(s.Items[0].Path); err != nil {
			return err
		}
		s.Items = nil
	case len(s.Items) == 1 && s.Items[0].Alias == "":
		// `SELECT e` selects whole entities.
		path, err := sc.rewrite(s.Items[0].Path)
		if err != nil {
			return err
		}
		if len(path.Segments) == 0 {
			s.Items = nil
			break
		}
		s.Items[0].Path = path
	default:
		for i := range s.Items {
			path, err := sc.property(s.Items[i].Path)
			if err != nil {
				return err
			}
			s.Items[i].Path = path
		}
	}

	if err := sc.expr(s.Where); err != nil {
		return err
	}
	for i := range s.GroupBy {
		path, err := sc.property(s.GroupBy[i])
		if err != nil {
			return err
		}
		s.GroupBy[i] = path
	}
	if err := sc.expr(s.Having); err != nil {
		return err
	}
	for i := range s.OrderBy {
		path, err := sc.property(s.OrderBy[i].Path)
		if err != nil {
			return err
		}
		s.OrderBy[i].Path = path
	}
	return nil
}

func (sc *scope) expr(e Expr) error {
	switch n := e.(type) {
	case nil:
		return nil
	case *BinaryExpr:
		if err := sc.expr(n.Left); err != nil {
			return err
		}
		return sc.expr(n.Right)
	case *NotExpr:
		return sc.expr(n.Expr)
	case *Predicate:
		if n.Count {
			if err := sc.countTarget(n.Path); err != nil {
				return err
			}
			n.Path = Path{Pos: n.Path.Pos}
			return nil
		}
		path, err := sc.property(n.Path)
		if err != nil {
			return err
		}
		n.Path = path
		return nil
	default:
		return ir.GrammarError(ir.ErrCodeSyntax, "", -1, "unknown expression type %T", e)
	}
}
