package ir

import "fmt"

// OpCode identifies the operation the execution engine performs for a
// compiled repository method. The names are the wire vocabulary shared with
// the engine and must not be renamed.
type OpCode uint8

const (
	OpSaveOne OpCode = iota
	OpSaveAll
	OpDeleteOne
	OpDeleteAll
	OpDeleteByID
	OpFindByID
	OpFindAll
	OpFindAllByID
	OpExistsByID
	OpCountAll
	OpDeleteAllByID
	OpFind
	OpCount
	OpExists
	OpDeleteQuery
	OpUpdateQuery
)

var opCodeNames = [...]string{
	OpSaveOne:       "SAVE_ONE",
	OpSaveAll:       "SAVE_ALL",
	OpDeleteOne:     "DELETE_ONE",
	OpDeleteAll:     "DELETE_ALL",
	OpDeleteByID:    "DELETE_BY_ID",
	OpFindByID:      "FIND_BY_ID",
	OpFindAll:       "FIND_ALL",
	OpFindAllByID:   "FIND_ALL_BY_ID",
	OpExistsByID:    "EXISTS_BY_ID",
	OpCountAll:      "COUNT_ALL",
	OpDeleteAllByID: "DELETE_ALL_BY_ID",
	OpFind:          "FIND",
	OpCount:         "COUNT",
	OpExists:        "EXISTS",
	OpDeleteQuery:   "DELETE_QUERY",
	OpUpdateQuery:   "UPDATE_QUERY",
}

func (o OpCode) String() string {
	if int(o) < len(opCodeNames) {
		return opCodeNames[o]
	}
	return fmt.Sprintf("OpCode(%d)", o)
}

// MarshalText implements encoding.TextMarshaler.
func (o OpCode) MarshalText() ([]byte, error) {
	if int(o) >= len(opCodeNames) {
		return nil, fmt.Errorf("unknown op code %d", o)
	}
	return []byte(opCodeNames[o]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OpCode) UnmarshalText(b []byte) error {
	v, ok := lookupName(opCodeNames[:], string(b))
	if !ok {
		return fmt.Errorf("unknown op code %q", b)
	}
	*o = OpCode(v)
	return nil
}

// IsBuiltIn reports whether o is a fixed CRUD operation rather than a
// derived or annotated query.
func (o OpCode) IsBuiltIn() bool {
	return o < OpFind
}

// ParseOpCode returns the op code with the given wire name.
func ParseOpCode(name string) (OpCode, bool) {
	v, ok := lookupName(opCodeNames[:], name)
	return OpCode(v), ok
}

// ReturnKind tells the execution engine how to shape a method's result.
type ReturnKind uint8

const (
	ReturnOneOptional ReturnKind = iota
	ReturnManyList
	ReturnManySet
	ReturnManyMap
	ReturnExistsBool
	ReturnCountLong
	ReturnSave
	ReturnSaveAll
	ReturnDelete
	ReturnDeleteAll
	ReturnDeleteByID
	ReturnModifyingVoid
	ReturnModifyingInt
	ReturnModifyingLong
)

var returnKindNames = [...]string{
	ReturnOneOptional:   "ONE_OPTIONAL",
	ReturnManyList:      "MANY_LIST",
	ReturnManySet:       "MANY_SET",
	ReturnManyMap:       "MANY_MAP",
	ReturnExistsBool:    "EXISTS_BOOL",
	ReturnCountLong:     "COUNT_LONG",
	ReturnSave:          "SAVE",
	ReturnSaveAll:       "SAVE_ALL",
	ReturnDelete:        "DELETE",
	ReturnDeleteAll:     "DELETE_ALL",
	ReturnDeleteByID:    "DELETE_BY_ID",
	ReturnModifyingVoid: "MODIFYING_VOID",
	ReturnModifyingInt:  "MODIFYING_INT",
	ReturnModifyingLong: "MODIFYING_LONG",
}

func (r ReturnKind) String() string {
	if int(r) < len(returnKindNames) {
		return returnKindNames[r]
	}
	return fmt.Sprintf("ReturnKind(%d)", r)
}

// MarshalText implements encoding.TextMarshaler.
func (r ReturnKind) MarshalText() ([]byte, error) {
	if int(r) >= len(returnKindNames) {
		return nil, fmt.Errorf("unknown return kind %d", r)
	}
	return []byte(returnKindNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ReturnKind) UnmarshalText(b []byte) error {
	v, ok := lookupName(returnKindNames[:], string(b))
	if !ok {
		return fmt.Errorf("unknown return kind %q", b)
	}
	*r = ReturnKind(v)
	return nil
}

// IsModifying reports whether the kind belongs to an UPDATE or DELETE query.
func (r ReturnKind) IsModifying() bool {
	return r == ReturnModifyingVoid || r == ReturnModifyingInt || r == ReturnModifyingLong
}

func lookupName(names []string, name string) (int, bool) {
	for i, n := range names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}
