package meta

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/memris/internal/ir"
)

// EntitySpec declares an entity (or an embeddable value type) to a Model.
type EntitySpec struct {
	Name       string
	Package    string
	ID         string
	Embeddable bool
	Fields     []FieldSpec
}

// FieldSpec declares one field of an EntitySpec.
type FieldSpec struct {
	Name   string
	Column string
	// Type names the field's type. Ignored for relationships and embedded
	// fields, whose type is the target's.
	Type string

	Relationship     RelationshipKind
	Target           string
	ReferencedColumn string
	Embedded         bool
}

// Model holds the type graph and entity metadata of one schema.
//
// A Model is built single-threaded (DefineType, AddEntity, Seal) and is
// read-only afterwards. The derived per-entity field indexes are computed
// lazily on first use; concurrent first use publishes exactly one index per
// entity.
type Model struct {
	types    map[string]*Type
	entities map[string]*Entity
	order    []*Entity
	sealed   bool

	indexes sync.Map
	group   singleflight.Group
}

var _ Resolver = (*Model)(nil)

// NewModel returns a Model with the built-in types registered.
func NewModel() *Model {
	m := &Model{
		types:    make(map[string]*Type, len(builtinTypes)),
		entities: make(map[string]*Entity),
	}
	for _, t := range builtinTypes {
		m.types[t.Name] = t
	}
	return m
}

// DefineType registers a user type (class, interface, record).
func (m *Model) DefineType(t *Type) error {
	if m.sealed {
		return fmt.Errorf("define type %s: model is sealed", t.Name)
	}
	if t.Name == "" {
		return fmt.Errorf("define type: empty name")
	}
	if _, exists := m.types[t.Name]; exists {
		return fmt.Errorf("define type %s: already defined", t.Name)
	}
	m.types[t.Name] = t
	return nil
}

// Type looks a type up by name. "T[]" denotes an array of T, and a
// package-qualified name falls back to its simple name.
func (m *Model) Type(name string) (*Type, error) {
	name = strings.TrimSpace(name)
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		t, err := m.Type(elem)
		if err != nil {
			return nil, err
		}
		return ArrayOf(t), nil
	}
	if t, ok := m.types[name]; ok {
		return t, nil
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		if t, ok := m.types[name[i+1:]]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

// AddEntity builds an Entity from spec. Embeddable types used by spec must
// already be added; relationship targets are checked by Seal.
func (m *Model) AddEntity(spec EntitySpec) (*Entity, error) {
	if m.sealed {
		return nil, fmt.Errorf("add entity %s: model is sealed", spec.Name)
	}
	if _, exists := m.entities[spec.Name]; exists {
		return nil, fmt.Errorf("add entity %s: already defined", spec.Name)
	}

	qualified := spec.Name
	if spec.Package != "" {
		qualified = spec.Package + "." + spec.Name
	}
	typ, ok := m.types[spec.Name]
	if !ok {
		typ = NewClass(spec.Name, nil)
		m.types[spec.Name] = typ
	}

	e := &Entity{
		name:       spec.Name,
		qualified:  qualified,
		typ:        typ,
		idField:    spec.ID,
		embeddable: spec.Embeddable,
		byName:     make(map[string]*Field, len(spec.Fields)),
		byColumn:   make(map[string]int, len(spec.Fields)),
		byProperty: make(map[string]int, len(spec.Fields)),
	}

	for _, fs := range spec.Fields {
		if _, dup := e.byName[fs.Name]; dup {
			return nil, fmt.Errorf("entity %s: duplicate field %q", spec.Name, fs.Name)
		}
		f, err := m.buildField(e, fs)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", spec.Name, err)
		}
		e.fields = append(e.fields, f)
		e.byName[f.Name] = f
	}

	if !spec.Embeddable {
		if spec.ID == "" {
			return nil, fmt.Errorf("entity %s: no id field", spec.Name)
		}
		id, ok := e.byName[spec.ID]
		if !ok || id.IsRelationship() || id.Embedded {
			return nil, fmt.Errorf("entity %s: id field %q must be a scalar field", spec.Name, spec.ID)
		}
	}

	m.entities[spec.Name] = e
	if qualified != spec.Name {
		m.entities[qualified] = e
	}
	m.order = append(m.order, e)
	return e, nil
}

func (m *Model) buildField(e *Entity, fs FieldSpec) (*Field, error) {
	if fs.Name == "" {
		return nil, fmt.Errorf("field with empty name")
	}
	f := &Field{
		Name:             fs.Name,
		ColumnName:       fs.Column,
		ColumnPosition:   -1,
		Relationship:     fs.Relationship,
		TargetEntity:     fs.Target,
		ReferencedColumn: fs.ReferencedColumn,
		Embedded:         fs.Embedded,
	}

	switch {
	case fs.Embedded:
		target, ok := m.entities[fs.Target]
		if !ok || !target.embeddable {
			return nil, fmt.Errorf("field %s: embedded type %q is not a known embeddable", fs.Name, fs.Target)
		}
		f.Type = target.typ
		f.TypeCode = ir.TypeObject
		for _, inner := range target.columns {
			flat := *inner
			flat.Name = fs.Name + "." + inner.Name
			flat.ColumnName = fs.Name + "_" + inner.ColumnName
			if err := e.addColumn(flat.Name, &flat); err != nil {
				return nil, err
			}
		}
		return f, nil

	case fs.Relationship != NoRelationship:
		if fs.Target == "" {
			return nil, fmt.Errorf("field %s: relationship without target entity", fs.Name)
		}
		if f.IsCollection() {
			if fs.Relationship == OneToMany && fs.Column == "" {
				return nil, fmt.Errorf("field %s: one-to-many relationship needs the target's join column", fs.Name)
			}
			return f, nil
		}
		if f.ColumnName == "" {
			f.ColumnName = fs.Name + "_id"
		}
		// Type and TypeCode are filled in by Seal once the target is known.
		return f, e.addColumn(f.Name, f)

	default:
		t, err := m.Type(fs.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		f.Type = t
		f.TypeCode = t.TypeCode()
		if f.ColumnName == "" {
			f.ColumnName = fs.Name
		}
		return f, e.addColumn(f.Name, f)
	}
}

// Seal resolves relationship targets and freezes the model. To-one
// relationships are resolved first because a one-to-many relationship reads
// its storage type from the foreign-key column on the other side.
func (m *Model) Seal() error {
	if m.sealed {
		return nil
	}
	for _, collections := range []bool{false, true} {
		for _, e := range m.order {
			for _, f := range e.fields {
				if !f.IsRelationship() || f.IsCollection() != collections {
					continue
				}
				if err := m.resolveRelationship(e, f); err != nil {
					return fmt.Errorf("entity %s: relationship %s: %w", e.name, f.Name, err)
				}
			}
		}
	}
	m.sealed = true
	return nil
}

func (m *Model) resolveRelationship(e *Entity, f *Field) error {
	target, ok := m.entities[f.TargetEntity]
	if !ok || target.embeddable {
		return fmt.Errorf("%w: %s", ir.ErrUnknownEntity, f.TargetEntity)
	}
	f.Type = target.typ

	switch f.Relationship {
	case OneToMany:
		pos, err := target.ResolveColumnPosition(f.ColumnName)
		if err != nil {
			return err
		}
		f.TypeCode = target.columns[pos].TypeCode
	case ManyToMany:
		id, _ := target.IDField()
		f.TypeCode = id.TypeCode
	default:
		refName := target.IDColumnName()
		if f.ReferencedColumn != "" {
			refName = f.ReferencedColumn
		}
		pos, err := target.ResolveColumnPosition(refName)
		if err != nil {
			return err
		}
		f.TypeCode = target.columns[pos].TypeCode
	}
	return nil
}

// Sealed reports whether Seal has completed.
func (m *Model) Sealed() bool { return m.sealed }

// Entity returns the entity with the given simple or qualified name.
func (m *Model) Entity(name string) (EntityDescriptor, error) {
	e, ok := m.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ir.ErrUnknownEntity, name)
	}
	return e, nil
}

// Entities returns the non-embeddable entities sorted by name.
func (m *Model) Entities() []*Entity {
	out := make([]*Entity, 0, len(m.order))
	for _, e := range m.order {
		if !e.embeddable {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Index returns the case-insensitive field index of e, building it on
// first use. Racing first callers share one computation and every caller
// observes the same published *FieldIndex.
func (m *Model) Index(e EntityDescriptor) *FieldIndex {
	key := e.QualifiedName()
	if idx, ok := m.indexes.Load(key); ok {
		return idx.(*FieldIndex)
	}
	v, _, _ := m.group.Do(key, func() (any, error) {
		actual, _ := m.indexes.LoadOrStore(key, newFieldIndex(e))
		return actual, nil
	})
	return v.(*FieldIndex)
}
