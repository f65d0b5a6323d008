package ir

import "fmt"

// TypeCode is the storage type of a column.
type TypeCode uint8

const (
	TypeInt TypeCode = iota
	TypeLong
	TypeBoolean
	TypeByte
	TypeShort
	TypeFloat
	TypeDouble
	TypeChar
	TypeString
	// TypeObject covers every column stored by reference (UUID, decimal,
	// temporal values).
	TypeObject
)

var typeCodeNames = [...]string{
	TypeInt:     "INT",
	TypeLong:    "LONG",
	TypeBoolean: "BOOLEAN",
	TypeByte:    "BYTE",
	TypeShort:   "SHORT",
	TypeFloat:   "FLOAT",
	TypeDouble:  "DOUBLE",
	TypeChar:    "CHAR",
	TypeString:  "STRING",
	TypeObject:  "OBJECT",
}

func (t TypeCode) String() string {
	if int(t) < len(typeCodeNames) {
		return typeCodeNames[t]
	}
	return fmt.Sprintf("TypeCode(%d)", t)
}

// MarshalText implements encoding.TextMarshaler.
func (t TypeCode) MarshalText() ([]byte, error) {
	if int(t) >= len(typeCodeNames) {
		return nil, fmt.Errorf("unknown type code %d", t)
	}
	return []byte(typeCodeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TypeCode) UnmarshalText(b []byte) error {
	v, ok := lookupName(typeCodeNames[:], string(b))
	if !ok {
		return fmt.Errorf("unknown type code %q", b)
	}
	*t = TypeCode(v)
	return nil
}

// IsIntegral reports whether t can hold a numeric foreign key.
func (t TypeCode) IsIntegral() bool {
	switch t {
	case TypeLong, TypeInt, TypeShort, TypeByte:
		return true
	}
	return false
}

// GroupValueType is the value shape of a grouped (Map-returning) query.
type GroupValueType uint8

const (
	GroupList GroupValueType = iota
	GroupSet
	GroupCount
)

func (g GroupValueType) String() string {
	switch g {
	case GroupSet:
		return "SET"
	case GroupCount:
		return "COUNT"
	default:
		return "LIST"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g GroupValueType) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GroupValueType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LIST":
		*g = GroupList
	case "SET":
		*g = GroupSet
	case "COUNT":
		*g = GroupCount
	default:
		return fmt.Errorf("unknown group value type %q", b)
	}
	return nil
}
