// Package idl implements the Varlink interface definition language and the
// language-neutral introspection descriptors built from it.
//
// See: https://varlink.org/Interface-Definition
package idl

import "fmt"

// Kind identifies the shape of a Type.
type Kind int

const (
	KindStruct Kind = iota + 1
	KindEnum
	KindName
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindArray
	KindMap
)

func (kind Kind) String() string {
	switch kind {
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindName:
		return "name"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		panic(fmt.Errorf("idl: invalid kind %v", int(kind)))
	}
}

// Type is a varlink type reference: one of the basic scalar kinds, a named
// reference to another type (possibly declared in a different interface,
// resolved lazily), or a composite array/map/struct/enum.
type Type struct {
	Kind     Kind
	Nullable bool
	Inner    *Type  // element type, for KindArray and KindMap
	Name     string // referenced type name, for KindName
	Fields   []Field
	Enum     []string
}

var (
	TypeBool   = Type{Kind: KindBool}
	TypeInt    = Type{Kind: KindInt}
	TypeFloat  = Type{Kind: KindFloat}
	TypeString = Type{Kind: KindString}
	TypeObject = Type{Kind: KindObject}
)

// Field is a single named, typed member of a struct type or a method's
// parameter/reply list, in declaration order.
type Field struct {
	Name string
	Type Type
	Doc  string
}

// Method is one operation of an Interface.
type Method struct {
	Name string
	In   []Field
	Out  []Field
	Doc  string
}

// ErrorDef declares one error an Interface's methods may return.
type ErrorDef struct {
	Name   string
	Fields []Field
	Doc    string
}

// NamedType is a type declared at interface scope under a name, referenced
// elsewhere via Type{Kind: KindName, Name: ...}.
type NamedType struct {
	Name string
	Type Type
	Doc  string
}

// Interface is a complete, language-neutral introspection descriptor: a
// named collection of declared types, methods and errors.
type Interface struct {
	Name    string
	Doc     string
	Types   []NamedType
	Methods []Method
	Errors  []ErrorDef
}

// Type looks up a named type declared directly in this interface. It does
// not resolve references into other interfaces; unresolved references are
// valid and are the caller's responsibility to follow.
func (i *Interface) Type(name string) (Type, bool) {
	for _, t := range i.Types {
		if t.Name == name {
			return t.Type, true
		}
	}
	return Type{}, false
}

// Method looks up a method by name.
func (i *Interface) Method(name string) (Method, bool) {
	for _, m := range i.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// ErrorNames returns the declared error names, in declaration order.
func (i *Interface) ErrorNames() []string {
	names := make([]string, len(i.Errors))
	for idx, e := range i.Errors {
		names[idx] = e.Name
	}
	return names
}

// HasError reports whether name is one of this interface's declared errors.
func (i *Interface) HasError(name string) bool {
	for _, e := range i.Errors {
		if e.Name == name {
			return true
		}
	}
	return false
}
