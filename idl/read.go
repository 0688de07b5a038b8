package idl

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Read parses a varlink interface definition from r.
func Read(r io.Reader) (*Interface, error) {
	dec := decoder{br: bufio.NewReader(r)}
	return dec.readInterface()
}

type decoder struct {
	br      *bufio.Reader
	comment strings.Builder
}

// takeDoc returns and clears the run of comment lines accumulated
// immediately before the token that's about to be read.
func (dec *decoder) takeDoc() string {
	// Read errors resurface from the readToken call that follows.
	_ = dec.skipWhitespace()
	doc := dec.comment.String()
	dec.comment.Reset()
	return doc
}

func (dec *decoder) skipComment() error {
	var line strings.Builder
	for {
		ch, err := dec.br.ReadByte()
		if err != nil {
			return err
		}
		if ch == '\n' {
			break
		}
		line.WriteByte(ch)
	}
	text := strings.TrimSpace(line.String())
	if dec.comment.Len() > 0 {
		dec.comment.WriteByte('\n')
	}
	dec.comment.WriteString(text)
	return nil
}

func (dec *decoder) skipWhitespace() error {
	for {
		ch, err := dec.br.ReadByte()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		switch ch {
		case ' ', '\t', '\r':
			// skip
		case '\n':
			// A blank line resets any accumulated doc comment: it's no
			// longer attached to whatever member follows.
			dec.comment.Reset()
		case '#':
			if err := dec.skipComment(); err != nil {
				return err
			}
		default:
			dec.br.UnreadByte()
			return nil
		}
	}
}

func (dec *decoder) readToken() (string, error) {
	if err := dec.skipWhitespace(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		ch, err := dec.br.ReadByte()
		if err == io.EOF && sb.Len() > 0 {
			return sb.String(), nil
		} else if err != nil {
			return "", err
		}
		switch ch {
		case '?', '(', ')', ',', ':':
			if sb.Len() > 0 {
				dec.br.UnreadByte()
				return sb.String(), nil
			}
			return string(ch), nil
		case ']', '>':
			sb.WriteByte(ch)
			return sb.String(), nil
		case ' ', '\t', '\r', '\n', '#':
			dec.br.UnreadByte()
			return sb.String(), nil
		default:
			sb.WriteByte(ch)
		}
	}
}

func (dec *decoder) expectToken(token string) error {
	got, err := dec.readToken()
	if err != nil {
		return fmt.Errorf("in %q: %v", token, err)
	} else if got != token {
		return fmt.Errorf("expected %q, got %q", token, got)
	}
	return nil
}

func (dec *decoder) readInterfaceName() (string, error) {
	name, err := dec.readToken()
	if err != nil {
		return "", fmt.Errorf("in interface name: %v", err)
	} else if !isInterfaceName(name) {
		return "", fmt.Errorf("invalid interface name %q", name)
	}
	return name, nil
}

func (dec *decoder) readName() (string, error) {
	name, err := dec.readToken()
	if err != nil {
		return "", fmt.Errorf("in name: %v", err)
	} else if !isName(name) {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return name, nil
}

// readStructOrEnum reads a parenthesized struct field list or enum variant
// list, returning the resulting Type along with the field docs accumulated
// along the way (stored on each Field).
func (dec *decoder) readStructOrEnum() (*Type, error) {
	if err := dec.expectToken("("); err != nil {
		return nil, err
	}

	var typ Type
loop:
	for {
		doc := dec.takeDoc()
		token, err := dec.readToken()
		if err != nil {
			return nil, fmt.Errorf("in struct or enum: %v", err)
		} else if token == ")" && typ.Kind == 0 {
			typ.Kind = KindStruct
			break
		} else if !isFieldName(token) {
			return nil, fmt.Errorf(`expected field name, got %q`, token)
		}
		name := token

		sep, err := dec.readToken()
		if err != nil {
			return nil, fmt.Errorf("in struct or enum: %v", err)
		}
		if typ.Kind == 0 {
			switch sep {
			case ",", ")":
				typ.Kind = KindEnum
			case ":":
				typ.Kind = KindStruct
			default:
				return nil, fmt.Errorf(`expected one of "," or ":", got %q`, sep)
			}
		} else {
			switch typ.Kind {
			case KindEnum:
				if sep != "," && sep != ")" {
					return nil, fmt.Errorf(`expected "," or ")", got %q`, sep)
				}
			case KindStruct:
				if sep != ":" {
					return nil, fmt.Errorf(`expected ":", got %q`, sep)
				}
			}
		}

		switch typ.Kind {
		case KindEnum:
			typ.Enum = append(typ.Enum, name)
			if sep == ")" {
				break loop
			}
		case KindStruct:
			t, err := dec.readType()
			if err != nil {
				return nil, fmt.Errorf("in struct: %v", err)
			}
			typ.Fields = append(typ.Fields, Field{Name: name, Type: *t, Doc: doc})

			sep, err := dec.readToken()
			if err != nil {
				return nil, fmt.Errorf("in struct: %v", err)
			}
			switch sep {
			case ")":
				break loop
			case ",":
				// ok
			default:
				return nil, fmt.Errorf(`expected "," or ")", got %q`, sep)
			}
		}
	}

	return &typ, nil
}

func (dec *decoder) readFields() ([]Field, error) {
	typ, err := dec.readStructOrEnum()
	if err != nil {
		return nil, err
	} else if typ.Kind != KindStruct {
		return nil, fmt.Errorf("expected struct, got %v", typ.Kind)
	}
	return typ.Fields, nil
}

func (dec *decoder) readElementType(token string) (*Type, error) {
	if token == "" {
		var err error
		token, err = dec.readToken()
		if err != nil {
			return nil, fmt.Errorf("in element type: %v", err)
		}
	}

	if kind := parseBasicType(token); kind != 0 {
		return &Type{Kind: kind}, nil
	}

	if token == "(" {
		dec.br.UnreadByte()
		return dec.readStructOrEnum()
	}

	if isName(token) {
		return &Type{Kind: KindName, Name: token}, nil
	}

	return nil, fmt.Errorf("expected element type, got %q", token)
}

func (dec *decoder) readType() (*Type, error) {
	token, err := dec.readToken()
	if err != nil {
		return nil, fmt.Errorf("in type: %v", err)
	}

	nullable := token == "?"
	if nullable {
		token, err = dec.readToken()
		if err != nil {
			return nil, fmt.Errorf("in type: %v", err)
		}
	}

	var kind Kind
	switch token {
	case "[]":
		kind = KindArray
	case "[string]":
		kind = KindMap
	default:
		typ, err := dec.readElementType(token)
		if err != nil {
			return nil, err
		}
		typ.Nullable = nullable
		return typ, nil
	}

	inner, err := dec.readType()
	if err != nil {
		return nil, err
	}

	return &Type{Kind: kind, Inner: inner, Nullable: nullable}, nil
}

func (dec *decoder) readMember(iface *Interface) error {
	doc := dec.takeDoc()
	keyword, err := dec.readToken()
	if err != nil {
		return err
	}

	switch keyword {
	case "type":
		name, err := dec.readName()
		if err != nil {
			return err
		}
		t, err := dec.readStructOrEnum()
		if err != nil {
			return err
		}
		iface.Types = append(iface.Types, NamedType{Name: name, Type: *t, Doc: doc})
	case "method":
		name, err := dec.readName()
		if err != nil {
			return err
		}
		in, err := dec.readFields()
		if err != nil {
			return err
		}
		if err := dec.expectToken("->"); err != nil {
			return err
		}
		out, err := dec.readFields()
		if err != nil {
			return err
		}
		iface.Methods = append(iface.Methods, Method{Name: name, In: in, Out: out, Doc: doc})
	case "error":
		name, err := dec.readName()
		if err != nil {
			return err
		}
		fields, err := dec.readFields()
		if err != nil {
			return err
		}
		iface.Errors = append(iface.Errors, ErrorDef{Name: name, Fields: fields, Doc: doc})
	default:
		return fmt.Errorf(`expected one of "type", "method", "error", got %q`, keyword)
	}

	return nil
}

func (dec *decoder) readInterface() (*Interface, error) {
	doc := dec.takeDoc()
	if err := dec.expectToken("interface"); err != nil {
		return nil, err
	}
	name, err := dec.readInterfaceName()
	if err != nil {
		return nil, err
	}
	iface := &Interface{Name: name, Doc: doc}
	for {
		if err := dec.readMember(iface); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
	}
	return iface, nil
}

func parseBasicType(token string) Kind {
	switch token {
	case "bool":
		return KindBool
	case "int":
		return KindInt
	case "float":
		return KindFloat
	case "string":
		return KindString
	case "object":
		return KindObject
	default:
		return 0
	}
}

func isInterfaceName(s string) bool {
	return len(s) > 0 && isAlpha(s[0]) && containsOnly(s[1:], func(ch byte) bool {
		return isAlphaNum(ch) || ch == '-' || ch == '.'
	})
}

func isName(s string) bool {
	return len(s) > 0 && s[0] >= 'A' && s[0] <= 'Z' && containsOnly(s[1:], isAlphaNum)
}

func isFieldName(s string) bool {
	return len(s) > 0 && isAlpha(s[0]) && containsOnly(s[1:], func(ch byte) bool {
		return isAlphaNum(ch) || ch == '_'
	})
}

func containsOnly(s string, f func(byte) bool) bool {
	for i := 0; i < len(s); i++ {
		if !f(s[i]) {
			return false
		}
	}
	return true
}

func isAlphaNum(ch byte) bool {
	return isAlpha(ch) || (ch >= '0' && ch <= '9')
}

func isAlpha(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}
