package schema

import (
	"fmt"

	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/repository"
)

// Schema is a built descriptor: a sealed model and the repositories
// declared over it.
type Schema struct {
	Model        *meta.Model
	Repositories []repository.Definition
}

// Build turns a validated Document into a Schema.
//
// Types are defined in declaration order, so a supertype, interface or
// component type must be built-in or declared earlier. Embeddable entities
// must precede the entities that embed them.
func Build(doc *Document) (*Schema, error) {
	m := meta.NewModel()
	for _, td := range doc.Types {
		t, err := buildType(m, td)
		if err != nil {
			return nil, buildError("type %s: %v", td.Name, err)
		}
		if err := m.DefineType(t); err != nil {
			return nil, buildError("%v", err)
		}
	}

	for _, ed := range doc.Entities {
		spec := meta.EntitySpec{
			Name:       ed.Name,
			Package:    ed.Package,
			ID:         ed.ID,
			Embeddable: ed.Embeddable,
		}
		for _, fd := range ed.Fields {
			kind, ok := meta.ParseRelationshipKind(fd.Relationship)
			if !ok {
				return nil, buildError("entity %s: field %s: unknown relationship %q", ed.Name, fd.Name, fd.Relationship)
			}
			spec.Fields = append(spec.Fields, meta.FieldSpec{
				Name:             fd.Name,
				Column:           fd.Column,
				Type:             fd.Type,
				Relationship:     kind,
				Target:           fd.Target,
				ReferencedColumn: fd.ReferencedColumn,
				Embedded:         fd.Embedded,
			})
		}
		if _, err := m.AddEntity(spec); err != nil {
			return nil, buildError("%v", err)
		}
	}
	if err := m.Seal(); err != nil {
		return nil, buildError("%v", err)
	}

	s := &Schema{Model: m}
	for _, rd := range doc.Repositories {
		def := repository.Definition{Name: rd.Name, Entity: rd.Entity}
		for _, md := range rd.Methods {
			method, err := BuildMethod(m, md)
			if err != nil {
				return nil, buildError("repository %s: method %s: %v", rd.Name, md.Name, err)
			}
			def.Methods = append(def.Methods, method)
		}
		s.Repositories = append(s.Repositories, def)
	}
	return s, nil
}

func buildError(format string, args ...any) *LoadError {
	return &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf(format, args...)}
}

func buildType(m *meta.Model, td TypeDecl) (*meta.Type, error) {
	ifaces := make([]*meta.Type, 0, len(td.Interfaces))
	for _, name := range td.Interfaces {
		t, err := m.Type(name)
		if err != nil {
			return nil, err
		}
		ifaces = append(ifaces, t)
	}

	switch td.Kind {
	case "record":
		comps := make([]meta.Component, 0, len(td.Components))
		for _, cd := range td.Components {
			t, err := m.Type(cd.Type)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", cd.Name, err)
			}
			comps = append(comps, meta.Component{Name: cd.Name, Type: t})
		}
		rec, err := meta.NewRecord(td.Name, comps...)
		if err != nil {
			return nil, err
		}
		rec.Interfaces = ifaces
		return rec, nil
	case "interface":
		return meta.NewInterface(td.Name, ifaces...), nil
	default:
		var super *meta.Type
		if td.Super != "" {
			t, err := m.Type(td.Super)
			if err != nil {
				return nil, err
			}
			super = t
		}
		return meta.NewClass(td.Name, super, ifaces...), nil
	}
}

// BuildMethod resolves the types named by md against m.
func BuildMethod(m *meta.Model, md MethodDecl) (*meta.Method, error) {
	method := &meta.Method{Name: md.Name, Modifying: md.Modifying}

	var err error
	if method.Returns, err = m.Type(md.Returns); err != nil {
		return nil, fmt.Errorf("return type: %w", err)
	}
	if md.Element != "" {
		if method.Element, err = m.Type(md.Element); err != nil {
			return nil, fmt.Errorf("element type: %w", err)
		}
	}
	if md.Key != "" {
		if method.Key, err = m.Type(md.Key); err != nil {
			return nil, fmt.Errorf("key type: %w", err)
		}
	}
	for i, pd := range md.Params {
		t, err := m.Type(pd.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		method.Params = append(method.Params, meta.Param{Name: pd.Name, Type: t})
	}
	if md.Query != "" {
		method.Query = &meta.QueryAnnotation{Text: md.Query, Native: md.Native}
	}
	return method, nil
}
