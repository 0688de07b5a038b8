package idl

import (
	"fmt"
	"strings"
)

// String renders the interface back to canonical varlink interface
// definition text. This is the inverse of Read for interfaces built
// programmatically (e.g. by a Service registering a descriptor rather than
// parsing a .varlink file), and is what backs GetInterfaceDescription.
func (i *Interface) String() string {
	var b strings.Builder
	writeDoc(&b, i.Doc, "")
	fmt.Fprintf(&b, "interface %s\n", i.Name)

	for _, t := range i.Types {
		b.WriteByte('\n')
		writeDoc(&b, t.Doc, "")
		fmt.Fprintf(&b, "type %s %s\n", t.Name, writeFieldsOrEnum(t.Type))
	}

	for _, m := range i.Methods {
		b.WriteByte('\n')
		writeDoc(&b, m.Doc, "")
		fmt.Fprintf(&b, "method %s(%s) -> (%s)\n", m.Name, writeFields(m.In), writeFields(m.Out))
	}

	for _, e := range i.Errors {
		b.WriteByte('\n')
		writeDoc(&b, e.Doc, "")
		fmt.Fprintf(&b, "error %s (%s)\n", e.Name, writeFields(e.Fields))
	}

	return b.String()
}

func writeDoc(b *strings.Builder, doc, indent string) {
	if doc == "" {
		return
	}
	for _, line := range strings.Split(doc, "\n") {
		fmt.Fprintf(b, "%s# %s\n", indent, line)
	}
}

func writeFields(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, writeType(f.Type))
	}
	return strings.Join(parts, ", ")
}

func writeFieldsOrEnum(t Type) string {
	if t.Kind == KindEnum {
		return "(" + strings.Join(t.Enum, ", ") + ")"
	}
	return "(" + writeFields(t.Fields) + ")"
}

func writeType(t Type) string {
	prefix := ""
	if t.Nullable {
		prefix = "?"
	}

	switch t.Kind {
	case KindBool:
		return prefix + "bool"
	case KindInt:
		return prefix + "int"
	case KindFloat:
		return prefix + "float"
	case KindString:
		return prefix + "string"
	case KindObject:
		return prefix + "object"
	case KindName:
		return prefix + t.Name
	case KindArray:
		return prefix + "[]" + writeType(*t.Inner)
	case KindMap:
		return prefix + "[string]" + writeType(*t.Inner)
	case KindStruct, KindEnum:
		return prefix + writeFieldsOrEnum(t)
	default:
		panic(fmt.Errorf("idl: invalid kind %v", int(t.Kind)))
	}
}
