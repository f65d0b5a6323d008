package jpql

import (
	"strconv"
	"strings"

	"github.com/roach88/memris/internal/ir"
)

// Parse parses annotated query text into a Statement with every path
// rewritten relative to the root entity.
//
// Errors are grammar QueryErrors without a method name; callers attach it
// with ir.WithMethod.
func Parse(query string) (Statement, error) {
	tokens, err := Tokenize(query)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	stmt, err := p.statement()
	if err != nil {
		return nil, err
	}
	if !p.at(EOF) {
		return nil, p.unexpected("end of query")
	}
	if err := resolveAliases(stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) Token {
	if i := p.pos + offset; i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *parser) at(t TokenType) bool {
	return p.peek().Type == t
}

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(t TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(t TokenType) (Token, error) {
	if !p.at(t) {
		return Token{}, p.unexpected(t.String())
	}
	return p.advance(), nil
}

func (p *parser) unexpected(want string) error {
	tok := p.peek()
	return ir.GrammarError(ir.ErrCodeSyntax, "", tok.Pos, "expected %s, found %s", want, tok)
}

func (p *parser) statement() (Statement, error) {
	switch p.peek().Type {
	case Select:
		return p.selectStatement()
	case Update:
		return p.updateStatement()
	case Delete:
		return p.deleteStatement()
	default:
		return nil, p.unexpected("SELECT, UPDATE or DELETE")
	}
}

func (p *parser) selectStatement() (*SelectStatement, error) {
	p.advance()
	s := &SelectStatement{}
	s.Distinct = p.accept(Distinct)

	if p.at(Count) {
		ref, err := p.countRef()
		if err != nil {
			return nil, err
		}
		s.Count = true
		// The count target is checked against the root alias once it is known.
		s.Items = []SelectItem{{Path: ref}}
	} else {
		items, err := p.selectItems()
		if err != nil {
			return nil, err
		}
		s.Items = items
	}

	if _, err := p.expect(From); err != nil {
		return nil, err
	}
	entity, alias, err := p.entityRef()
	if err != nil {
		return nil, err
	}
	s.Entity, s.Alias = entity, alias

	if s.Joins, err = p.joins(); err != nil {
		return nil, err
	}
	if p.accept(Where) {
		if s.Where, err = p.orExpr(); err != nil {
			return nil, err
		}
	}
	if p.accept(Group) {
		if _, err := p.expect(By); err != nil {
			return nil, err
		}
		if s.GroupBy, err = p.pathList(); err != nil {
			return nil, err
		}
		if p.accept(Having) {
			if s.Having, err = p.orExpr(); err != nil {
				return nil, err
			}
		}
	} else if p.at(Having) {
		return nil, ir.GrammarError(ir.ErrCodeSyntax, "", p.peek().Pos, "HAVING requires GROUP BY")
	}
	if p.accept(Order) {
		if _, err := p.expect(By); err != nil {
			return nil, err
		}
		if s.OrderBy, err = p.orderItems(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) countRef() (Path, error) {
	p.advance()
	if _, err := p.expect(LParen); err != nil {
		return Path{}, err
	}
	tok, err := p.expect(Ident)
	if err != nil {
		return Path{}, err
	}
	if _, err := p.expect(RParen); err != nil {
		return Path{}, err
	}
	return Path{Segments: []string{tok.Text}, Pos: tok.Pos}, nil
}

func (p *parser) selectItems() ([]SelectItem, error) {
	var items []SelectItem
	for {
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		item := SelectItem{Path: path}
		if p.accept(As) {
			tok, err := p.expect(Ident)
			if err != nil {
				return nil, err
			}
			item.Alias = tok.Text
		} else if p.at(Ident) {
			item.Alias = p.advance().Text
		}
		items = append(items, item)
		if !p.accept(Comma) {
			return items, nil
		}
	}
}

// entityRef parses `Entity [AS] alias`. The entity name may be qualified.
func (p *parser) entityRef() (string, string, error) {
	tok, err := p.expect(Ident)
	if err != nil {
		return "", "", err
	}
	name := tok.Text
	for p.at(Dot) {
		p.advance()
		seg, err := p.expect(Ident)
		if err != nil {
			return "", "", err
		}
		name += "." + seg.Text
	}
	alias, err := p.optionalAlias()
	return name, alias, err
}

func (p *parser) optionalAlias() (string, error) {
	if p.accept(As) {
		tok, err := p.expect(Ident)
		if err != nil {
			return "", err
		}
		return tok.Text, nil
	}
	if p.at(Ident) {
		return p.advance().Text, nil
	}
	return "", nil
}

func (p *parser) joins() ([]JoinClause, error) {
	var joins []JoinClause
	for {
		var j JoinClause
		switch {
		case p.accept(Left):
			j.Left = true
		case p.accept(Inner):
		case p.at(Join):
		default:
			return joins, nil
		}
		if _, err := p.expect(Join); err != nil {
			return nil, err
		}
		j.Fetch = p.accept(Fetch)
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		j.Path = path
		if j.Alias, err = p.optionalAlias(); err != nil {
			return nil, err
		}
		joins = append(joins, j)
	}
}

// path parses `ident {. ident}`. Keywords are allowed after a dot so that
// properties such as `e.order` stay addressable.
func (p *parser) path() (Path, error) {
	tok, err := p.expect(Ident)
	if err != nil {
		return Path{}, err
	}
	path := Path{Segments: []string{tok.Text}, Pos: tok.Pos}
	for p.accept(Dot) {
		seg := p.peek()
		if seg.Type != Ident && !seg.Type.IsKeyword() {
			return Path{}, p.unexpected("property name")
		}
		p.advance()
		path.Segments = append(path.Segments, seg.Text)
	}
	return path, nil
}

func (p *parser) pathList() ([]Path, error) {
	var paths []Path
	for {
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		if !p.accept(Comma) {
			return paths, nil
		}
	}
}

func (p *parser) orderItems() ([]OrderItem, error) {
	var items []OrderItem
	for {
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Path: path}
		if p.accept(Desc) {
			item.Desc = true
		} else {
			p.accept(Asc)
		}
		items = append(items, item)
		if !p.accept(Comma) {
			return items, nil
		}
	}
}

func (p *parser) updateStatement() (*UpdateStatement, error) {
	p.advance()
	entity, alias, err := p.entityRef()
	if err != nil {
		return nil, err
	}
	u := &UpdateStatement{Entity: entity, Alias: alias}
	if _, err := p.expect(Set); err != nil {
		return nil, err
	}
	for {
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(Eq); err != nil {
			return nil, err
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		u.Assignments = append(u.Assignments, Assignment{Path: path, Value: v})
		if !p.accept(Comma) {
			break
		}
	}
	if p.accept(Where) {
		if u.Where, err = p.orExpr(); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (p *parser) deleteStatement() (*DeleteStatement, error) {
	p.advance()
	p.accept(From)
	entity, alias, err := p.entityRef()
	if err != nil {
		return nil, err
	}
	d := &DeleteStatement{Entity: entity, Alias: alias}
	if p.accept(Where) {
		if d.Where, err = p.orExpr(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Expression grammar, lowest precedence first:
//
//	orExpr  = andExpr {OR andExpr}
//	andExpr = notExpr {AND notExpr}
//	notExpr = NOT notExpr | primary
//	primary = '(' orExpr ')' | predicate
func (p *parser) orExpr() (Expr, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.accept(Or) {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: ir.Or, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) andExpr() (Expr, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.accept(And) {
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: ir.And, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) notExpr() (Expr, error) {
	if p.at(Not) {
		pos := p.advance().Pos
		inner, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner, Pos: pos}, nil
	}
	if p.accept(LParen) {
		e, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		return e, nil
	}
	return p.predicate()
}

var comparisons = map[TokenType]ir.Operator{
	Eq:  ir.OpEQ,
	Ne:  ir.OpNE,
	Lt:  ir.OpLT,
	Lte: ir.OpLTE,
	Gt:  ir.OpGT,
	Gte: ir.OpGTE,
}

func (p *parser) predicate() (*Predicate, error) {
	pred := &Predicate{Pos: p.peek().Pos}

	if p.at(Count) && p.peekAt(1).Type == LParen {
		ref, err := p.countRef()
		if err != nil {
			return nil, err
		}
		pred.Count = true
		pred.Path = ref
		op, ok := comparisons[p.peek().Type]
		if !ok {
			return nil, p.unexpected("comparison operator after COUNT")
		}
		p.advance()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		pred.Op, pred.Values = op, []Value{v}
		return pred, nil
	}

	path, err := p.path()
	if err != nil {
		return nil, err
	}
	pred.Path = path

	negated := false
	if p.at(Not) {
		negated = true
		p.advance()
	}

	tok := p.peek()
	switch tok.Type {
	case Like, ILike:
		p.advance()
		pred.Op = ir.OpLike
		if negated {
			pred.Op = ir.OpNotLike
		}
		pred.IgnoreCase = tok.Type == ILike
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		pred.Values = []Value{v}

	case In:
		p.advance()
		pred.Op = ir.OpIn
		if negated {
			pred.Op = ir.OpNotIn
		}
		var v Value
		if p.at(LParen) {
			v, err = p.list()
		} else {
			v, err = p.value()
		}
		if err != nil {
			return nil, err
		}
		pred.Values = []Value{v}

	case Between:
		if negated {
			return nil, ir.GrammarError(ir.ErrCodeNegation, "", tok.Pos, "NOT BETWEEN is not supported; use two comparisons")
		}
		p.advance()
		lo, err := p.value()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(And); err != nil {
			return nil, err
		}
		hi, err := p.value()
		if err != nil {
			return nil, err
		}
		pred.Op, pred.Values = ir.OpBetween, []Value{lo, hi}

	case Is:
		if negated {
			return nil, p.unexpected("LIKE, ILIKE or IN after NOT")
		}
		p.advance()
		isNot := p.accept(Not)
		switch p.peek().Type {
		case Null:
			pred.Op = ir.OpIsNull
			if isNot {
				pred.Op = ir.OpNotNull
			}
		case True:
			pred.Op = ir.OpIsTrue
			if isNot {
				pred.Op = ir.OpIsFalse
			}
		case False:
			pred.Op = ir.OpIsFalse
			if isNot {
				pred.Op = ir.OpIsTrue
			}
		default:
			return nil, p.unexpected("NULL, TRUE or FALSE")
		}
		p.advance()

	default:
		if negated {
			return nil, p.unexpected("LIKE, ILIKE or IN after NOT")
		}
		op, ok := comparisons[tok.Type]
		if !ok {
			return nil, p.unexpected("comparison operator")
		}
		p.advance()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		pred.Op, pred.Values = op, []Value{v}
	}
	return pred, nil
}

func (p *parser) list() (*ListValue, error) {
	open := p.advance()
	l := &ListValue{Pos: open.Pos}
	if p.at(RParen) {
		return nil, ir.GrammarError(ir.ErrCodeSyntax, "", open.Pos, "empty IN list")
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, v)
		if !p.accept(Comma) {
			break
		}
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}
	return l, nil
}

func (p *parser) value() (Value, error) {
	tok := p.peek()
	switch tok.Type {
	case NamedParam:
		p.advance()
		return &ParamRef{Name: tok.Text, Pos: tok.Pos}, nil
	case PositionalParam:
		p.advance()
		n, err := strconv.Atoi(tok.Text)
		if err != nil || n < 1 {
			return nil, ir.GrammarError(ir.ErrCodeSyntax, "", tok.Pos, "invalid positional parameter ?%s", tok.Text)
		}
		return &ParamRef{Index: n, Pos: tok.Pos}, nil
	case String:
		p.advance()
		return &Literal{Value: ir.String(tok.Text), Pos: tok.Pos}, nil
	case Number:
		p.advance()
		return numberLiteral(tok.Text, tok.Pos)
	case Minus:
		p.advance()
		num, err := p.expect(Number)
		if err != nil {
			return nil, err
		}
		return numberLiteral("-"+num.Text, tok.Pos)
	case True, False:
		p.advance()
		return &Literal{Value: ir.Bool(tok.Type == True), Pos: tok.Pos}, nil
	case Null:
		p.advance()
		return &Literal{Value: ir.Null{}, Pos: tok.Pos}, nil
	default:
		return nil, p.unexpected("parameter or literal")
	}
}

func numberLiteral(text string, pos int) (*Literal, error) {
	if strings.Contains(text, ".") {
		d, err := ir.NewDecimal(text)
		if err != nil {
			return nil, ir.GrammarError(ir.ErrCodeSyntax, "", pos, "invalid number %s", text)
		}
		return &Literal{Value: d, Pos: pos}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, ir.GrammarError(ir.ErrCodeSyntax, "", pos, "integer literal %s out of range", text)
	}
	return &Literal{Value: ir.Int(n), Pos: pos}, nil
}
