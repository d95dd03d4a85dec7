package models

import (
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueString ValueKind = iota + 1
	ValueInt
	ValueLong
	ValueFloat
	ValueDouble
	ValueBool
	ValueByte
	ValueChar
	ValueShort
	ValueClass
	ValueEnum
	ValueAnnotation
	ValueArray
	// ValueUnknown marks an element value the reader could not represent.
	// Str carries a human-readable marker.
	ValueUnknown
)

var valueKindNames = [...]string{
	ValueString:     "string",
	ValueInt:        "int",
	ValueLong:       "long",
	ValueFloat:      "float",
	ValueDouble:     "double",
	ValueBool:       "boolean",
	ValueByte:       "byte",
	ValueChar:       "char",
	ValueShort:      "short",
	ValueClass:      "class",
	ValueEnum:       "enum",
	ValueAnnotation: "annotation",
	ValueArray:      "array",
	ValueUnknown:    "unknown",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) && valueKindNames[k] != "" {
		return valueKindNames[k]
	}
	return "invalid"
}

// Value is a tagged union over annotation element values.
//
//	String, Class, Unknown   -> Str (Class holds a dotted type name)
//	Int, Long, Byte, Char, Short -> Int
//	Float, Double            -> Float, with Bits holding the exact IEEE 754
//	                            pattern (low 32 bits for Float)
//	Bool                     -> Bool
//	Enum                     -> Type (enclosing type) and Str (constant)
//	Annotation               -> Nested
//	Array                    -> Elems
type Value struct {
	Kind   ValueKind
	Str    string
	Type   string
	Int    int64
	Float  float64
	Bits   uint64
	Bool   bool
	Nested *Annotation
	Elems  []Value
}

func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }
func IntValue(i int32) Value { return Value{Kind: ValueInt, Int: int64(i)} }
func LongValue(i int64) Value { return Value{Kind: ValueLong, Int: i} }
func FloatValue(f float32) Value { return FloatBits(math.Float32bits(f)) }
func DoubleValue(f float64) Value { return DoubleBits(math.Float64bits(f)) }
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }
func ByteValue(b int8) Value { return Value{Kind: ValueByte, Int: int64(b)} }
func CharValue(c uint16) Value { return Value{Kind: ValueChar, Int: int64(c)} }
func ShortValue(s int16) Value { return Value{Kind: ValueShort, Int: int64(s)} }
func ClassValue(name string) Value {
	return Value{Kind: ValueClass, Str: name}
}
func EnumValue(typ, constant string) Value {
	return Value{Kind: ValueEnum, Type: typ, Str: constant}
}
func NestedValue(a Annotation) Value {
	return Value{Kind: ValueAnnotation, Nested: &a}
}
func ArrayValue(elems ...Value) Value {
	return Value{Kind: ValueArray, Elems: elems}
}
func UnknownValue(marker string) Value {
	return Value{Kind: ValueUnknown, Str: marker}
}

// FloatBits builds a float value from its raw bit pattern. Signalling NaN
// payloads survive in Bits even though Float holds the widened value.
func FloatBits(bits uint32) Value {
	return Value{Kind: ValueFloat, Float: float64(math.Float32frombits(bits)), Bits: uint64(bits)}
}

// DoubleBits builds a double value from its raw bit pattern.
func DoubleBits(bits uint64) Value {
	return Value{Kind: ValueDouble, Float: math.Float64frombits(bits), Bits: bits}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	if v.Nested != nil {
		nested := v.Nested.Clone()
		v.Nested = &nested
	}
	if v.Elems != nil {
		elems := make([]Value, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = e.Clone()
		}
		v.Elems = elems
	}
	return v
}

// Equal reports structural equality. Floating point values compare by bit
// pattern so NaN payloads must match exactly.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueString, ValueClass, ValueUnknown:
		return v.Str == o.Str
	case ValueInt, ValueLong, ValueByte, ValueChar, ValueShort:
		return v.Int == o.Int
	case ValueFloat, ValueDouble:
		return v.Bits == o.Bits
	case ValueBool:
		return v.Bool == o.Bool
	case ValueEnum:
		return v.Type == o.Type && v.Str == o.Str
	case ValueAnnotation:
		if v.Nested == nil || o.Nested == nil {
			return v.Nested == o.Nested
		}
		return v.Nested.Type == o.Nested.Type && membersEqual(v.Nested.Members, o.Nested.Members)
	case ValueArray:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value in a Java-like source form.
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return strconv.Quote(v.Str)
	case ValueInt, ValueByte, ValueShort:
		return strconv.FormatInt(v.Int, 10)
	case ValueLong:
		return strconv.FormatInt(v.Int, 10) + "L"
	case ValueChar:
		return strconv.QuoteRune(rune(v.Int))
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 32) + "f"
	case ValueDouble:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueClass:
		return v.Str + ".class"
	case ValueEnum:
		return v.Type + "." + v.Str
	case ValueAnnotation:
		if v.Nested == nil {
			return "@?"
		}
		return "@" + v.Nested.Type + "(" + FormatMembers(v.Nested.Members) + ")"
	case ValueArray:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ValueUnknown:
		return v.Str
	}
	return "?"
}
