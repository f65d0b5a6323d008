package jpql

import "fmt"

// TokenType identifies a lexical token in annotated query text.
type TokenType int

const (
	EOF TokenType = iota
	Ident
	String
	Number
	NamedParam
	PositionalParam

	// Keywords.
	Select
	From
	Where
	And
	Or
	Not
	Join
	Left
	Inner
	Fetch
	As
	Order
	Group
	Having
	By
	Asc
	Desc
	In
	Between
	Is
	Null
	Like
	ILike
	Count
	Distinct
	True
	False
	Update
	Set
	Delete

	// Punctuation.
	Comma
	Dot
	LParen
	RParen
	Minus
	Eq
	Ne
	Lt
	Lte
	Gt
	Gte
)

var tokenNames = [...]string{
	EOF:             "end of query",
	Ident:           "identifier",
	String:          "string literal",
	Number:          "number",
	NamedParam:      "named parameter",
	PositionalParam: "positional parameter",
	Select:          "SELECT",
	From:            "FROM",
	Where:           "WHERE",
	And:             "AND",
	Or:              "OR",
	Not:             "NOT",
	Join:            "JOIN",
	Left:            "LEFT",
	Inner:           "INNER",
	Fetch:           "FETCH",
	As:              "AS",
	Order:           "ORDER",
	Group:           "GROUP",
	Having:          "HAVING",
	By:              "BY",
	Asc:             "ASC",
	Desc:            "DESC",
	In:              "IN",
	Between:         "BETWEEN",
	Is:              "IS",
	Null:            "NULL",
	Like:            "LIKE",
	ILike:           "ILIKE",
	Count:           "COUNT",
	Distinct:        "DISTINCT",
	True:            "TRUE",
	False:           "FALSE",
	Update:          "UPDATE",
	Set:             "SET",
	Delete:          "DELETE",
	Comma:           "','",
	Dot:             "'.'",
	LParen:          "'('",
	RParen:          "')'",
	Minus:           "'-'",
	Eq:              "'='",
	Ne:              "'<>'",
	Lt:              "'<'",
	Lte:             "'<='",
	Gt:              "'>'",
	Gte:             "'>='",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= Select && t <= Delete
}

// keywords maps upper-cased reserved words to their token type.
var keywords = func() map[string]TokenType {
	m := make(map[string]TokenType, Delete-Select+1)
	for t := Select; t <= Delete; t++ {
		m[tokenNames[t]] = t
	}
	return m
}()

// Token is one lexical unit. Pos is the byte offset in the query text.
type Token struct {
	Type TokenType
	Text string
	Pos  int
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return t.Type.String()
	case Ident, Number, String:
		return fmt.Sprintf("%s %q", t.Type, t.Text)
	default:
		return fmt.Sprintf("%q", t.Text)
	}
}
