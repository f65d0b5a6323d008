package meta

import (
	"sort"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// FieldIndex answers case-insensitive field-name prefix queries for one
// entity. It is immutable and safe for concurrent use.
type FieldIndex struct {
	entity  EntityDescriptor
	entries []indexEntry
	byFold  map[string]*Field
}

type indexEntry struct {
	field  *Field
	folded string
}

func newFieldIndex(e EntityDescriptor) *FieldIndex {
	fold := cases.Fold()
	fields := e.Fields()
	idx := &FieldIndex{
		entity:  e,
		entries: make([]indexEntry, 0, len(fields)),
		byFold:  make(map[string]*Field, len(fields)),
	}
	for _, f := range fields {
		folded := fold.String(f.Name)
		idx.entries = append(idx.entries, indexEntry{field: f, folded: folded})
		if _, dup := idx.byFold[folded]; !dup {
			idx.byFold[folded] = f
		}
	}
	// Longest names first so "addressLine" wins over "address".
	sort.SliceStable(idx.entries, func(i, j int) bool {
		return len(idx.entries[i].field.Name) > len(idx.entries[j].field.Name)
	})
	return idx
}

// Entity returns the indexed entity.
func (x *FieldIndex) Entity() EntityDescriptor { return x.entity }

// Match returns the field whose name is the longest case-insensitive prefix
// of s such that the rest of s is empty or starts with an uppercase letter.
func (x *FieldIndex) Match(s string) (*Field, string, bool) {
	fold := cases.Fold()
	for _, en := range x.entries {
		n := len(en.field.Name)
		if n > len(s) || (n < len(s) && !utf8.RuneStart(s[n])) {
			continue
		}
		if fold.String(s[:n]) != en.folded {
			continue
		}
		rest := s[n:]
		if rest == "" || startsUpper(rest) {
			return en.field, rest, true
		}
	}
	return nil, s, false
}

// Lookup returns the field whose name equals name ignoring case.
func (x *FieldIndex) Lookup(name string) (*Field, bool) {
	f, ok := x.byFold[cases.Fold().String(name)]
	return f, ok
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
