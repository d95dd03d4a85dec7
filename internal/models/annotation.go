// Package models defines the domain types for anndex.
package models

import (
	"fmt"
	"strings"
)

// TargetKind identifies the kind of program element an annotation decorates.
type TargetKind uint8

const (
	KindClass TargetKind = iota + 1
	KindField
	KindMethod
	KindParameter
)

// String returns the lowercase name used in logs and JSON.
func (k TargetKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindField:
		return "field"
	case KindMethod:
		return "method"
	case KindParameter:
		return "parameter"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k TargetKind) Valid() bool {
	return k >= KindClass && k <= KindParameter
}

// Target references one program element. Name and Descriptor are empty for
// class targets; Position is the 0-based parameter index for parameter
// targets and zero otherwise. Targets compare with ==.
type Target struct {
	Kind       TargetKind
	ClassName  string
	Name       string
	Descriptor string
	Position   int
}

// ClassTarget returns the target for a class declaration.
func ClassTarget(class string) Target {
	return Target{Kind: KindClass, ClassName: class}
}

// FieldTarget returns the target for a field.
func FieldTarget(class, name, descriptor string) Target {
	return Target{Kind: KindField, ClassName: class, Name: name, Descriptor: descriptor}
}

// MethodTarget returns the target for a method.
func MethodTarget(class, name, descriptor string) Target {
	return Target{Kind: KindMethod, ClassName: class, Name: name, Descriptor: descriptor}
}

// ParameterTarget returns the target for the parameter at position of a method.
func ParameterTarget(class, name, descriptor string, position int) Target {
	return Target{Kind: KindParameter, ClassName: class, Name: name, Descriptor: descriptor, Position: position}
}

// String renders the target as class, class#field:desc, class#method(desc)
// or class#method(desc)[pos].
func (t Target) String() string {
	switch t.Kind {
	case KindClass:
		return t.ClassName
	case KindField:
		return t.ClassName + "#" + t.Name + ":" + t.Descriptor
	case KindMethod:
		return t.ClassName + "#" + t.Name + t.Descriptor
	case KindParameter:
		return fmt.Sprintf("%s#%s%s[%d]", t.ClassName, t.Name, t.Descriptor, t.Position)
	default:
		return t.ClassName
	}
}

// Member is one named annotation element value.
type Member struct {
	Name  string
	Value Value
}

// Annotation is an annotation type with the members present at its site.
// It is used for nested annotation values.
type Annotation struct {
	Type    string
	Members []Member
}

// Instance is one occurrence of an annotation on a target. Members appear in
// declaration order; members left to their defaults are absent.
type Instance struct {
	Type    string
	Target  Target
	Members []Member
	// Visible is true for runtime-visible retention.
	Visible bool
}

// Member returns the value of the named member.
func (in Instance) Member(name string) (Value, bool) {
	return findMember(in.Members, name)
}

// Member returns the value of the named member.
func (a Annotation) Member(name string) (Value, bool) {
	return findMember(a.Members, name)
}

func findMember(members []Member, name string) (Value, bool) {
	for _, m := range members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Equal reports structural equality of two instances.
func (in Instance) Equal(other Instance) bool {
	return in.Type == other.Type &&
		in.Target == other.Target &&
		in.Visible == other.Visible &&
		membersEqual(in.Members, other.Members)
}

func membersEqual(a, b []Member) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}

// FormatMembers renders members as name=value pairs in declaration order.
func FormatMembers(members []Member) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.Name + "=" + m.Value.String()
	}
	return strings.Join(parts, ", ")
}

// Clone returns a deep copy of in that shares no memory with it.
func (in Instance) Clone() Instance {
	in.Members = CloneMembers(in.Members)
	return in
}

// Clone returns a deep copy of a.
func (a Annotation) Clone() Annotation {
	a.Members = CloneMembers(a.Members)
	return a
}

// CloneMembers deep-copies members, including nested annotations and arrays.
func CloneMembers(members []Member) []Member {
	if members == nil {
		return nil
	}
	out := make([]Member, len(members))
	for i, m := range members {
		out[i] = Member{Name: m.Name, Value: m.Value.Clone()}
	}
	return out
}

// CloneInstances deep-copies every instance in list.
func CloneInstances(list []Instance) []Instance {
	if list == nil {
		return nil
	}
	out := make([]Instance, len(list))
	for i, in := range list {
		out[i] = in.Clone()
	}
	return out
}
