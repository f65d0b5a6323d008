package lexer

import "fmt"

// Kind classifies a method-name token.
type Kind uint8

const (
	// Operation is a parameterless built-in recognized by name alone.
	Operation Kind = iota
	FindBy
	CountBy
	ExistsBy
	DeleteBy
	Delete
	DeleteAll
	PropertyPath
	Operator
	And
	Or
	OrderBy
	Asc
	Desc
)

var kindNames = [...]string{
	Operation:    "OPERATION",
	FindBy:       "FIND_BY",
	CountBy:      "COUNT_BY",
	ExistsBy:     "EXISTS_BY",
	DeleteBy:     "DELETE_BY",
	Delete:       "DELETE",
	DeleteAll:    "DELETE_ALL",
	PropertyPath: "PROPERTY_PATH",
	Operator:     "OPERATOR",
	And:          "AND",
	Or:           "OR",
	OrderBy:      "ORDER_BY",
	Asc:          "ASC",
	Desc:         "DESC",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsOperationKind reports whether k is the leading operation-kind token.
func (k Kind) IsOperationKind() bool {
	return k <= DeleteAll
}

// Span is a half-open byte range [Start, End) in the method name.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Token is one lexical unit of a derived method name.
type Token struct {
	Kind       Kind   `json:"kind"`
	Value      string `json:"value"`
	Span       Span   `json:"span"`
	IgnoreCase bool   `json:"ignore_case,omitempty"`
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Kind, t.Value, t.Span.Start)
}
