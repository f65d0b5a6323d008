// Package lexer tokenizes derived repository method names such as
// findByNameAndAgeGreaterThanOrderByNameDesc.
//
// Tokenizing is lenient about property names: segments that do not resolve
// against the entity are lowercased and passed through, and the compiler
// reports them later. Keyword recognition is strict and case-sensitive.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
)

// Prefixes are the recognized method-name prefixes.
var Prefixes = []string{"find", "read", "query", "count", "exists", "delete", "save", "get"}

// Operators are the predicate keywords, longest-first so that a short
// keyword never steals the prefix of a longer one ("GreaterThan" inside
// "GreaterThanEqual"). And/Or are combinators and handled separately.
var Operators = []string{
	"GreaterThanEqual", "LessThanEqual",
	"NotStartingWith", "NotEndingWith", "NotContaining",
	"StartingWith", "EndingWith", "Containing",
	"GreaterThan", "LessThan",
	"Between",
	"IgnoreCase",
	"NotLike",
	"NotIn",
	"NotNull",
	"NotEqual",
	"Not",
	"Like",
	"Equals",
	"Before",
	"After",
	"IsNull",
	"In",
	"Is",
	"True",
	"False",
}

const orderByKeyword = "OrderBy"

var parameterless = map[string]ir.OpCode{
	"findAll":   ir.OpFindAll,
	"count":     ir.OpCountAll,
	"deleteAll": ir.OpDeleteAll,
}

// Metadata resolves relationship and embedded targets while walking a
// property path.
type Metadata interface {
	Entity(name string) (meta.EntityDescriptor, error)
	Index(entity meta.EntityDescriptor) *meta.FieldIndex
}

// Lexer tokenizes method names against entity metadata. It holds no
// per-call state and is safe for concurrent use.
type Lexer struct {
	md Metadata
}

// New creates a Lexer. md may be nil, in which case every property path is
// lowercased verbatim.
func New(md Metadata) *Lexer {
	return &Lexer{md: md}
}

// Tokenize splits method into tokens. entity may be nil.
func (l *Lexer) Tokenize(method string, entity meta.EntityDescriptor) ([]Token, error) {
	if strings.TrimSpace(method) == "" {
		return nil, ir.GrammarError(ir.ErrCodeInvalidMethodName, method, 0, "method name required")
	}

	if op, ok := parameterless[method]; ok {
		return []Token{{Kind: Operation, Value: op.String(), Span: Span{0, len(method)}}}, nil
	}

	prefix, ok := ExtractPrefix(method)
	if !ok {
		return nil, ir.GrammarError(ir.ErrCodeUnknownPrefix, method, 0,
			"unknown method prefix, expected one of %s", strings.Join(Prefixes, ", "))
	}
	remaining := method[len(prefix):]

	kind, err := classify(method, prefix, remaining)
	if err != nil {
		return nil, err
	}
	tokens := []Token{{Kind: kind, Value: prefix, Span: Span{0, len(prefix)}}}

	if remaining == "" || remaining == "All" {
		return tokens, nil
	}

	s := &scanner{lexer: l, method: method, root: entity}
	return s.scan(tokens, remaining, len(prefix))
}

// ResolvePath maps a camel-case property run such as "DepartmentName" to
// a dotted path ("department.name") the same way Tokenize does.
func (l *Lexer) ResolvePath(entity meta.EntityDescriptor, camel string) string {
	s := &scanner{lexer: l, root: entity}
	return s.resolve(camel)
}

// ExtractPrefix returns the longest known prefix of method, matched
// case-insensitively but returned as written.
func ExtractPrefix(method string) (string, bool) {
	best := ""
	for _, p := range Prefixes {
		if len(p) > len(best) && len(method) >= len(p) && strings.EqualFold(method[:len(p)], p) {
			best = method[:len(p)]
		}
	}
	return best, best != ""
}

func classify(method, prefix, remaining string) (Kind, error) {
	hasBy := strings.HasPrefix(remaining, "By") || strings.HasPrefix(remaining, "AllBy")
	switch strings.ToLower(prefix) {
	case "find", "read", "query", "get":
		if remaining == "" || hasBy || strings.HasPrefix(remaining, "All") {
			return FindBy, nil
		}
		return 0, ir.GrammarError(ir.ErrCodeInvalidMethodName, method, len(prefix),
			"invalid find method: expected 'By' or 'All', got %q", remaining)
	case "count":
		return CountBy, nil
	case "exists":
		return ExistsBy, nil
	case "delete":
		if hasBy {
			return DeleteBy, nil
		}
		if remaining == "All" {
			return DeleteAll, nil
		}
		return Delete, nil
	default:
		// save has no token kind of its own; it only reaches the lexer when
		// no built-in signature matched and the planner rejects it.
		return Delete, nil
	}
}

type scanner struct {
	lexer  *Lexer
	method string
	root   meta.EntityDescriptor
}

func (s *scanner) scan(tokens []Token, remaining string, base int) ([]Token, error) {
	predicate, orderBy := remaining, ""
	if i := strings.Index(remaining, orderByKeyword); i >= 0 {
		predicate, orderBy = remaining[:i], remaining[i:]
	}
	orderByBase := base + len(predicate)

	// "findAllByName" reads the same as "findByName".
	if rest, ok := strings.CutPrefix(predicate, "All"); ok && (rest == "" || strings.HasPrefix(rest, "By")) {
		predicate = rest
		base += len("All")
	}

	if predicate != "" {
		input, ok := strings.CutPrefix(predicate, "By")
		if !ok {
			return nil, ir.GrammarError(ir.ErrCodeTokenSequence, s.method, base,
				"expected 'By' before the predicate, got %q", predicate)
		}
		tokens = s.scanPredicate(tokens, input, base+len("By"))
	}

	if orderBy != "" {
		tokens = s.scanOrderBy(tokens, orderBy, orderByBase)
	}
	return tokens, nil
}

func (s *scanner) scanPredicate(tokens []Token, input string, base int) []Token {
	pos := 0
	for pos < len(input) {
		if kw := keywordAt(input, pos); kw != "" {
			tokens = append(tokens, keywordToken(kw, base+pos))
			pos += len(kw)
			continue
		}
		end := nextKeyword(input, pos)
		tokens = append(tokens, Token{
			Kind:  PropertyPath,
			Value: s.resolve(input[pos:end]),
			Span:  Span{base + pos, base + end},
		})
		pos = end
	}
	return tokens
}

// scanOrderBy tokenizes "OrderBy<Prop>[Asc|Desc]{And<Prop>[Asc|Desc]}".
func (s *scanner) scanOrderBy(tokens []Token, orderBy string, base int) []Token {
	tokens = append(tokens, Token{Kind: OrderBy, Value: orderByKeyword, Span: Span{base, base + len(orderByKeyword)}})

	body := orderBy[len(orderByKeyword):]
	base += len(orderByKeyword)
	start := 0
	for start <= len(body) {
		end := combinatorIndex(body, start, "And")
		if end < 0 {
			end = len(body)
		}
		segment := body[start:end]

		prop, dir := segment, Token{}
		switch {
		case strings.HasSuffix(segment, "Desc") && len(segment) > len("Desc"):
			prop = segment[:len(segment)-len("Desc")]
			dir = Token{Kind: Desc, Value: "Desc", Span: Span{base + start + len(prop), base + end}}
		case strings.HasSuffix(segment, "Asc") && len(segment) > len("Asc"):
			prop = segment[:len(segment)-len("Asc")]
			dir = Token{Kind: Asc, Value: "Asc", Span: Span{base + start + len(prop), base + end}}
		}
		if prop != "" {
			tokens = append(tokens, Token{
				Kind:  PropertyPath,
				Value: s.resolve(prop),
				Span:  Span{base + start, base + start + len(prop)},
			})
		}
		if dir.Value != "" {
			tokens = append(tokens, dir)
		}

		if end == len(body) {
			break
		}
		tokens = append(tokens, Token{Kind: And, Value: "And", Span: Span{base + end, base + end + len("And")}})
		start = end + len("And")
	}
	return tokens
}

func keywordToken(kw string, pos int) Token {
	t := Token{Value: kw, Span: Span{pos, pos + len(kw)}}
	switch kw {
	case orderByKeyword:
		t.Kind = OrderBy
	case "And":
		t.Kind = And
	case "Or":
		t.Kind = Or
	default:
		t.Kind = Operator
		t.IgnoreCase = kw == "IgnoreCase"
	}
	return t
}

// keywordAt returns the keyword starting at pos, or "".
func keywordAt(input string, pos int) string {
	rest := input[pos:]
	if strings.HasPrefix(rest, orderByKeyword) {
		return orderByKeyword
	}
	for _, c := range []string{"And", "Or"} {
		if strings.HasPrefix(rest, c) && boundaryAfter(input, pos+len(c)) {
			return c
		}
	}
	for _, op := range Operators {
		if strings.HasPrefix(rest, op) {
			return op
		}
	}
	return ""
}

// nextKeyword returns the earliest position after start where any keyword
// begins, or len(input).
func nextKeyword(input string, start int) int {
	earliest := len(input)
	consider := func(i int) {
		if i >= 0 && i < earliest {
			earliest = i
		}
	}
	if i := strings.Index(input[start:], orderByKeyword); i >= 0 {
		consider(start + i)
	}
	consider(combinatorIndex(input, start, "And"))
	consider(combinatorIndex(input, start, "Or"))
	for _, op := range Operators {
		if i := strings.Index(input[start:], op); i >= 0 {
			consider(start + i)
		}
	}
	if earliest == start {
		// A keyword at the cursor is handled by keywordAt; never emit an
		// empty property.
		return len(input)
	}
	return earliest
}

// combinatorIndex finds the first occurrence of c at or after start that is
// followed by an uppercase letter or the end of input. This keeps "Order"
// from splitting as "Or"+"der" and "Anderson" from splitting on "And".
func combinatorIndex(input string, start int, c string) int {
	for start <= len(input) {
		i := strings.Index(input[start:], c)
		if i < 0 {
			return -1
		}
		at := start + i
		if boundaryAfter(input, at+len(c)) {
			return at
		}
		start = at + 1
	}
	return -1
}

func boundaryAfter(input string, pos int) bool {
	if pos >= len(input) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(input[pos:])
	return unicode.IsUpper(r)
}

// resolve maps a camel-case property run to a dotted field path, following
// relationships and embedded types. Unresolved text is lowercased.
func (s *scanner) resolve(path string) string {
	lower := cases.Lower(language.Und)
	if s.root == nil || s.lexer.md == nil {
		return lower.String(path)
	}

	var out []string
	current := s.root
	for _, part := range strings.Split(path, "_") {
		remaining := part
		for remaining != "" {
			idx := s.lexer.md.Index(current)
			f, rest, ok := idx.Match(remaining)
			if !ok {
				out = append(out, lower.String(remaining))
				break
			}
			out = append(out, f.Name)
			if f.IsRelationship() || f.Embedded {
				if target, err := s.lexer.md.Entity(f.TargetEntity); err == nil {
					current = target
				}
			}
			remaining = rest
		}
	}
	return strings.Join(out, ".")
}
