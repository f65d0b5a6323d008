package planner

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/lexer"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/queryir"
)

const (
	groupingKeyword = "GroupingBy"
	asSetSuffix     = "AsSet"

	// findKind shapes annotated SELECT results like derived finds.
	findKind = lexer.FindBy
)

// derivedOperators maps method-name operator keywords to operators. The
// empty keyword is the implicit equality of a bare property.
var derivedOperators = map[string]ir.Operator{
	"":                 ir.OpEQ,
	"Is":               ir.OpEQ,
	"Equals":           ir.OpEQ,
	"Not":              ir.OpNE,
	"NotEqual":         ir.OpNE,
	"GreaterThan":      ir.OpGT,
	"GreaterThanEqual": ir.OpGTE,
	"LessThan":         ir.OpLT,
	"LessThanEqual":    ir.OpLTE,
	"Between":          ir.OpBetween,
	"In":               ir.OpIn,
	"NotIn":            ir.OpNotIn,
	"Like":             ir.OpLike,
	"NotLike":          ir.OpNotLike,
	"StartingWith":     ir.OpStartingWith,
	"NotStartingWith":  ir.OpNotStartingWith,
	"EndingWith":       ir.OpEndingWith,
	"NotEndingWith":    ir.OpNotEndingWith,
	"Containing":       ir.OpContaining,
	"NotContaining":    ir.OpNotContaining,
	"IsNull":           ir.OpIsNull,
	"NotNull":          ir.OpNotNull,
	"True":             ir.OpIsTrue,
	"False":            ir.OpIsFalse,
	"Before":           ir.OpBefore,
	"After":            ir.OpAfter,
}

// caseOperator applies an IgnoreCase modifier. Equality and LIKE have
// dedicated case-insensitive operators; other operators keep the flag only.
func caseOperator(op ir.Operator, ignoreCase bool) ir.Operator {
	if !ignoreCase {
		return op
	}
	switch op {
	case ir.OpEQ:
		return ir.OpIgnoreCaseEQ
	case ir.OpLike:
		return ir.OpIgnoreCaseLike
	}
	return op
}

// nameParts is a method name with its Distinct and TopN/FirstN modifiers
// removed. removed is the byte length cut out right after the prefix.
type nameParts struct {
	prefix   string
	name     string
	limit    int
	distinct bool
	removed  int
}

// parseModifiers strips Distinct and TopN/FirstN (in either order) from
// the front of the name after its prefix. A missing N means 1. Limits
// apply to find-family methods only.
func parseModifiers(method string) (nameParts, error) {
	prefix, ok := lexer.ExtractPrefix(method)
	if !ok {
		return nameParts{name: method}, nil
	}
	rest := method[len(prefix):]
	out := nameParts{prefix: prefix}

	for {
		if !out.distinct && keywordAt(rest, "Distinct", 0) {
			out.distinct = true
			rest = rest[len("Distinct"):]
			continue
		}
		if out.limit == 0 {
			if kw, n, width, ok := limitAt(rest); ok {
				pos := len(method) - len(rest)
				if !isFindPrefix(prefix) {
					return nameParts{}, ir.GrammarError(ir.ErrCodeInvalidMethodName, method, pos,
						"%s limits apply to find methods only", kw)
				}
				if n <= 0 {
					return nameParts{}, ir.GrammarError(ir.ErrCodeInvalidMethodName, method, pos,
						"%s limit must be positive", kw)
				}
				out.limit = n
				rest = rest[width:]
				continue
			}
		}
		break
	}
	out.name = prefix + rest
	out.removed = len(method) - len(out.name)
	return out, nil
}

// limitAt parses "Top<N>" or "First<N>" at the start of s.
func limitAt(s string) (keyword string, n, width int, ok bool) {
	for _, kw := range []string{"Top", "First"} {
		if !strings.HasPrefix(s, kw) {
			continue
		}
		end := len(kw)
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if !keywordAt(s, s[:end], 0) {
			continue
		}
		if end == len(kw) {
			return kw, 1, end, true
		}
		n, err := strconv.Atoi(s[len(kw):end])
		if err != nil {
			return kw, 0, end, true
		}
		return kw, n, end, true
	}
	return "", 0, 0, false
}

// keywordAt reports whether kw starts s at pos and is followed by an
// uppercase letter or the end of s.
func keywordAt(s, kw string, pos int) bool {
	if !strings.HasPrefix(s[pos:], kw) {
		return false
	}
	end := pos + len(kw)
	if end == len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return unicode.IsUpper(r)
}

func isFindPrefix(prefix string) bool {
	switch strings.ToLower(prefix) {
	case "find", "read", "query", "get":
		return true
	}
	return false
}

// splitAnd splits s on "And" followed by an uppercase letter or the end.
func splitAnd(s string) []string {
	var parts []string
	start := 0
	for i := 0; i+len("And") <= len(s); i++ {
		if keywordAt(s, "And", i) {
			parts = append(parts, s[start:i])
			start = i + len("And")
			i = start - 1
		}
	}
	return append(parts, s[start:])
}

func (p *Planner) planDerived(m *meta.Method, entity meta.EntityDescriptor) (*queryir.LogicalQuery, error) {
	parts, err := parseModifiers(m.Name)
	if err != nil {
		return nil, err
	}
	grouping, condName, err := p.grouping(parts, m, entity)
	if err != nil {
		return nil, err
	}

	name := parts.name
	if grouping != nil && condName != "" {
		// Conditions come from the part of the name before GroupingBy.
		name = condName
	}
	tokens, err := p.tokenize(parts, name, m.Name, entity)
	if err != nil {
		return nil, err
	}
	kind := tokens[0].Kind
	if kind == lexer.Operation && grouping != nil {
		// "count" and "findAll" alone lex as parameterless built-ins.
		kind = lexer.FindBy
		if strings.EqualFold(parts.prefix, "count") {
			kind = lexer.CountBy
		}
	}

	returnKind, err := derivedReturn(kind, m, entity)
	if err != nil {
		return nil, err
	}
	q := &queryir.LogicalQuery{
		OpCode:     derivedOp(kind, returnKind),
		ReturnKind: returnKind,
		Limit:      parts.limit,
		Distinct:   parts.distinct,
		Grouping:   grouping,
	}

	if grouping != nil && condName == "" {
		// countBy<Props> with a Map return: the name lists grouping keys,
		// not predicates.
		for _, t := range tokens[1:] {
			if t.Kind == lexer.Operator || t.Kind == lexer.Or {
				return nil, ir.SemanticError(ir.ErrCodeGrouping, "",
					"countBy grouping supports plain property paths only, found %q", t.Value)
			}
		}
		if len(m.Params) > 0 {
			return nil, ir.SemanticError(ir.ErrCodeGrouping, "", "countBy grouping takes no parameters, found %d", len(m.Params))
		}
		return q, nil
	}

	sm := &machine{method: m.Name}
	for _, t := range tokens[1:] {
		if err := sm.feed(t); err != nil {
			return nil, err
		}
	}
	if err := sm.finish(); err != nil {
		return nil, err
	}
	if hasBy(parts) && grouping == nil && len(sm.conditions) == 0 && len(sm.orderBy) == 0 {
		return nil, ir.GrammarError(ir.ErrCodeTokenSequence, m.Name, len(m.Name),
			"no property specified after 'By'")
	}

	q.Conditions = sm.conditions
	q.OrderBy = sm.orderBy
	q.Arity = sm.slot
	q.ParameterIndices = sequence(sm.slot)
	if sm.slot != len(m.Params) {
		return nil, ir.SemanticError(ir.ErrCodeParameter, "",
			"method declares %d parameters but its name binds %d", len(m.Params), sm.slot)
	}
	return q, nil
}

// tokenize runs the lexer on name, a normalized form of method, and maps
// token spans and error offsets back onto the method name as written.
func (p *Planner) tokenize(parts nameParts, name, method string, entity meta.EntityDescriptor) ([]lexer.Token, error) {
	shift := func(pos int) int {
		if pos >= len(parts.prefix) {
			return pos + parts.removed
		}
		return pos
	}

	tokens, err := p.lexer.Tokenize(name, entity)
	if err != nil {
		var qe *ir.QueryError
		if errors.As(err, &qe) {
			out := *qe
			out.Method = method
			if out.Pos >= 0 {
				out.Pos = shift(out.Pos)
			}
			return nil, &out
		}
		return nil, err
	}
	for i := range tokens {
		tokens[i].Span = lexer.Span{Start: shift(tokens[i].Span.Start), End: shift(tokens[i].Span.End)}
	}
	return tokens, nil
}

// hasBy reports whether the name has a predicate section: "By" (or
// "AllBy") right after the prefix. "findFirstByOrderByAge" has an empty
// one, which is fine when an OrderBy follows.
func hasBy(parts nameParts) bool {
	rest := parts.name[len(parts.prefix):]
	return strings.HasPrefix(rest, "By") || strings.HasPrefix(rest, "AllBy")
}

func derivedReturn(kind lexer.Kind, m *meta.Method, entity meta.EntityDescriptor) (ir.ReturnKind, error) {
	returns := returnsOrVoid(m)
	boxed := returns.Boxed()

	switch kind {
	case lexer.FindBy:
		switch {
		case returns == meta.Map:
			return ir.ReturnManyMap, nil
		case returns == meta.Optional:
			return ir.ReturnOneOptional, nil
		case returns == meta.Set:
			return ir.ReturnManySet, nil
		case returns == meta.List || returns == meta.Collection || returns == meta.Iterable:
			return ir.ReturnManyList, nil
		case returns == entity.Type():
			return ir.ReturnOneOptional, nil
		}
		return 0, ir.SemanticError(ir.ErrCodeReturnType, "",
			"find methods return %s, Optional, List, Set or Map, not %s", entity.Name(), returns)
	case lexer.CountBy:
		switch {
		case returns == meta.Map:
			return ir.ReturnManyMap, nil
		case boxed == meta.Long || boxed == meta.Integer:
			return ir.ReturnCountLong, nil
		}
		return 0, ir.SemanticError(ir.ErrCodeReturnType, "", "count methods return long, not %s", returns)
	case lexer.ExistsBy:
		if boxed == meta.Boolean {
			return ir.ReturnExistsBool, nil
		}
		return 0, ir.SemanticError(ir.ErrCodeReturnType, "", "exists methods return boolean, not %s", returns)
	case lexer.DeleteBy:
		switch {
		case returns == meta.Void:
			return ir.ReturnModifyingVoid, nil
		case boxed == meta.Integer:
			return ir.ReturnModifyingInt, nil
		case boxed == meta.Long:
			return ir.ReturnModifyingLong, nil
		case returns == meta.List || returns == meta.Collection || returns == meta.Iterable:
			return ir.ReturnManyList, nil
		}
		return 0, ir.SemanticError(ir.ErrCodeReturnType, "",
			"deleteBy methods return void, int, long or a List of deleted entities, not %s", returns)
	default:
		return 0, ir.GrammarError(ir.ErrCodeInvalidMethodName, "", 0,
			"no built-in operation matches %s", m.Signature())
	}
}

func derivedOp(kind lexer.Kind, rk ir.ReturnKind) ir.OpCode {
	switch {
	case kind == lexer.DeleteBy:
		return ir.OpDeleteQuery
	case rk == ir.ReturnManyMap:
		return ir.OpFind
	case kind == lexer.CountBy:
		return ir.OpCount
	case kind == lexer.ExistsBy:
		return ir.OpExists
	default:
		return ir.OpFind
	}
}

// grouping extracts a Map grouping. condName is the part of the name that
// still carries predicates, or "" when the whole name is grouping keys.
func (p *Planner) grouping(parts nameParts, m *meta.Method, entity meta.EntityDescriptor) (*queryir.Grouping, string, error) {
	idx := strings.Index(parts.name, groupingKeyword)
	isMap := m.Returns == meta.Map
	switch {
	case !isMap && idx >= 0:
		return nil, "", ir.SemanticError(ir.ErrCodeGrouping, "", "GroupingBy needs a Map return type")
	case !isMap:
		return nil, parts.name, nil
	case m.Key == nil:
		return nil, "", ir.SemanticError(ir.ErrCodeGrouping, "", "Map return type must declare its key type")
	case strings.Contains(parts.name, "OrderBy"):
		return nil, "", ir.SemanticError(ir.ErrCodeGrouping, "", "grouping queries do not support OrderBy")
	}

	isCount := strings.EqualFold(parts.prefix, "count")
	var (
		body     string
		condName string
		vt       = ir.GroupList
	)
	switch {
	case idx >= 0:
		body = parts.name[idx+len(groupingKeyword):]
		condName = parts.name[:idx]
		var asSet bool
		if body, asSet = strings.CutSuffix(body, asSetSuffix); asSet {
			vt = ir.GroupSet
		}
		if isCount {
			vt = ir.GroupCount
		}
	case isCount:
		rest := parts.name[len(parts.prefix):]
		var ok bool
		if body, ok = strings.CutPrefix(rest, "By"); !ok || body == "" {
			return nil, "", ir.SemanticError(ir.ErrCodeGrouping, "", "countBy grouping needs at least one property")
		}
		vt = ir.GroupCount
	default:
		return nil, "", ir.SemanticError(ir.ErrCodeGrouping, "", "Map return types need GroupingBy or a countBy method")
	}

	var props []string
	for _, part := range splitAnd(body) {
		if part == "" {
			return nil, "", ir.SemanticError(ir.ErrCodeGrouping, "", "grouping has an empty property segment")
		}
		props = append(props, p.lexer.ResolvePath(entity, part))
	}
	if len(props) > 1 && !m.Key.IsRecord() {
		return nil, "", ir.SemanticError(ir.ErrCodeGrouping, "",
			"grouping by %d properties needs a record key type, not %s", len(props), m.Key)
	}
	return &queryir.Grouping{Properties: props, KeyType: m.Key, ValueType: vt}, condName, nil
}

// machine is the single-pass state machine over derived-name tokens.
type machine struct {
	method     string
	conditions []queryir.Condition
	orderBy    []queryir.OrderBy

	pending    string
	hasPending bool
	pendingOp  string
	ignoreCase bool
	next       ir.Combinator

	lastCombinator bool
	lastOperator   bool
	inOrderBy      bool
	slot           int
}

func (s *machine) errorf(t lexer.Token, format string, args ...any) error {
	return ir.GrammarError(ir.ErrCodeTokenSequence, s.method, t.Span.Start, format, args...)
}

func (s *machine) feed(t lexer.Token) error {
	switch t.Kind {
	case lexer.PropertyPath:
		if s.inOrderBy {
			s.orderBy = append(s.orderBy, queryir.OrderBy{PropertyPath: t.Value, Ascending: true})
		} else {
			if s.hasPending {
				if s.pendingOp != "" {
					return s.errorf(t, "property %q appears after operator %q without a combinator (And/Or)", t.Value, s.pendingOp)
				}
				if err := s.finalize(t); err != nil {
					return err
				}
			}
			s.pending, s.hasPending = t.Value, true
		}
		s.lastCombinator, s.lastOperator = false, false

	case lexer.Operator:
		if !s.hasPending || s.inOrderBy {
			return s.errorf(t, "operator %q without a property", t.Value)
		}
		if t.IgnoreCase {
			s.ignoreCase = true
		} else {
			if s.lastOperator && s.pendingOp != "" && s.pendingOp != "Is" {
				return s.errorf(t, "consecutive operators %q and %q", s.pendingOp, t.Value)
			}
			s.pendingOp = t.Value
			s.lastOperator = true
		}
		s.lastCombinator = false

	case lexer.And, lexer.Or:
		if s.lastCombinator {
			return s.errorf(t, "consecutive combinators (And/Or)")
		}
		s.lastCombinator, s.lastOperator = true, false
		if s.inOrderBy {
			if t.Kind == lexer.Or || len(s.orderBy) == 0 {
				return s.errorf(t, "OrderBy keys are joined with And after a property")
			}
			return nil
		}
		if !s.hasPending {
			return s.errorf(t, "%s without a preceding condition", t.Value)
		}
		s.next = ir.And
		if t.Kind == lexer.Or {
			s.next = ir.Or
		}
		return s.finalize(t)

	case lexer.OrderBy:
		if s.lastCombinator {
			return s.errorf(t, "combinator before OrderBy without a property")
		}
		if s.hasPending {
			if err := s.finalize(t); err != nil {
				return err
			}
		}
		s.inOrderBy = true
		s.lastCombinator, s.lastOperator = false, false

	case lexer.Asc, lexer.Desc:
		if !s.inOrderBy || len(s.orderBy) == 0 || s.lastCombinator {
			return s.errorf(t, "%s without an OrderBy property", t.Value)
		}
		s.orderBy[len(s.orderBy)-1].Ascending = t.Kind == lexer.Asc
	}
	return nil
}

// finalize turns the pending property into a condition joined to the next
// one by s.next, then resets s.next to AND.
func (s *machine) finalize(at lexer.Token) error {
	op, ok := derivedOperators[s.pendingOp]
	if !ok {
		return s.errorf(at, "unknown operator %q", s.pendingOp)
	}
	op = caseOperator(op, s.ignoreCase)

	arg := -1
	if !op.IsUnary() {
		arg = s.slot
	}
	s.conditions = append(s.conditions, queryir.Condition{
		PropertyPath:  s.pending,
		Operator:      op,
		ArgumentIndex: arg,
		IgnoreCase:    s.ignoreCase,
		Next:          s.next,
	})
	s.slot += op.Slots()

	s.next = ir.And
	s.pending, s.hasPending = "", false
	s.pendingOp, s.ignoreCase = "", false
	return nil
}

func (s *machine) finish() error {
	end := lexer.Token{Span: lexer.Span{Start: len(s.method), End: len(s.method)}}
	if s.lastCombinator {
		return s.errorf(end, "method ends with a combinator (And/Or) without a property")
	}
	if s.inOrderBy && len(s.orderBy) == 0 {
		return s.errorf(end, "OrderBy specified without a property")
	}
	if s.hasPending {
		return s.finalize(end)
	}
	return nil
}
