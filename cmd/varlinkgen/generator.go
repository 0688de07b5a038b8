package main

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"

	"git.sr.ht/~varlinkrt/zlink-go/idl"
)

const zlinkPkg = "git.sr.ht/~varlinkrt/zlink-go"

type generator struct {
	iface   *idl.Interface
	pkgName string
}

func (g *generator) generate() (*jen.File, error) {
	f := jen.NewFile(g.pkgName)
	f.HeaderComment(fmt.Sprintf("Code generated by varlinkgen from %s. DO NOT EDIT.", g.iface.Name))

	for _, nt := range g.iface.Types {
		g.genNamedType(f, nt)
	}
	for _, m := range g.iface.Methods {
		g.genMethodTypes(f, m)
	}
	g.genMethodCallSum(f)
	g.genErrorSum(f)
	g.genClient(f)

	return f, nil
}

// goName converts a varlink field/method name (PascalCase already for
// methods; fields may be snake_case) into an exported Go identifier.
func goName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		sb.WriteRune(unicode.ToUpper(r[0]))
		sb.WriteString(string(r[1:]))
	}
	if sb.Len() == 0 {
		return name
	}
	return sb.String()
}

func jsonTag(name string) map[string]string {
	return map[string]string{"json": name + ",omitempty"}
}

// goType renders a varlink Type as a jennifer type expression.
func goType(t idl.Type) *jen.Statement {
	var stmt *jen.Statement
	switch t.Kind {
	case idl.KindBool:
		stmt = jen.Bool()
	case idl.KindInt:
		stmt = jen.Int64()
	case idl.KindFloat:
		stmt = jen.Float64()
	case idl.KindString:
		stmt = jen.String()
	case idl.KindObject:
		stmt = jen.Qual("encoding/json", "RawMessage")
	case idl.KindName:
		stmt = jen.Id(goName(t.Name))
	case idl.KindArray:
		stmt = jen.Index().Add(goType(*t.Inner))
	case idl.KindMap:
		stmt = jen.Map(jen.String()).Add(goType(*t.Inner))
	case idl.KindEnum:
		stmt = jen.String()
	case idl.KindStruct:
		fields := make([]jen.Code, 0, len(t.Fields))
		for _, f := range t.Fields {
			fields = append(fields, jen.Id(goName(f.Name)).Add(goType(f.Type)).Tag(jsonTag(f.Name)))
		}
		stmt = jen.Struct(fields...)
	default:
		stmt = jen.Interface()
	}
	if t.Nullable {
		return jen.Op("*").Add(stmt)
	}
	return stmt
}

func (g *generator) genNamedType(f *jen.File, nt idl.NamedType) {
	if nt.Doc != "" {
		f.Comment(nt.Doc)
	}
	switch nt.Type.Kind {
	case idl.KindEnum:
		f.Type().Id(goName(nt.Name)).String()
		for _, variant := range nt.Type.Enum {
			f.Const().Id(goName(nt.Name) + goName(variant)).Id(goName(nt.Name)).Op("=").Lit(variant)
		}
	default:
		fields := make([]jen.Code, 0, len(nt.Type.Fields))
		for _, field := range nt.Type.Fields {
			fields = append(fields, jen.Id(goName(field.Name)).Add(goType(field.Type)).Tag(jsonTag(field.Name)))
		}
		f.Type().Id(goName(nt.Name)).Struct(fields...)
	}
}

func fieldsStruct(fields []idl.Field) []jen.Code {
	out := make([]jen.Code, 0, len(fields))
	for _, field := range fields {
		out = append(out, jen.Id(goName(field.Name)).Add(goType(field.Type)).Tag(jsonTag(field.Name)))
	}
	return out
}

func (g *generator) genMethodTypes(f *jen.File, m idl.Method) {
	if m.Doc != "" {
		f.Comment(m.Doc)
	}
	f.Type().Id(goName(m.Name) + "In").Struct(fieldsStruct(m.In)...)
	f.Type().Id(goName(m.Name) + "Out").Struct(fieldsStruct(m.Out)...)
}

// genMethodCallSum emits a MethodCall implementation covering every method
// this interface declares, matching zlink.MethodCall's dispatch contract.
func (g *generator) genMethodCallSum(f *jen.File) {
	typeName := "MethodCall"
	fields := []jen.Code{jen.Id("Method").String()}
	for _, m := range g.iface.Methods {
		fields = append(fields, jen.Id(goName(m.Name)).Op("*").Id(goName(m.Name)+"In"))
	}
	f.Type().Id(typeName).Struct(fields...)

	cases := make([]jen.Code, 0, len(g.iface.Methods))
	for _, m := range g.iface.Methods {
		full := g.iface.Name + "." + m.Name
		cases = append(cases, jen.Case(jen.Lit(full)).Block(
			jen.Id("in").Op(":=").New(jen.Id(goName(m.Name)+"In")),
			jen.If(jen.Len(jen.Id("parameters")).Op(">").Lit(0)).Block(
				jen.If(jen.Err().Op(":=").Qual("encoding/json", "Unmarshal").Call(jen.Id("parameters"), jen.Id("in")), jen.Err().Op("!=").Nil()).Block(
					jen.Return(jen.True(), jen.Err()),
				),
			),
			jen.Op("*").Id("m").Op("=").Id(typeName).Values(jen.Dict{
				jen.Id("Method"):        jen.Lit(m.Name),
				jen.Id(goName(m.Name)): jen.Id("in"),
			}),
			jen.Return(jen.True(), jen.Nil()),
		))
	}
	cases = append(cases, jen.Default().Block(jen.Return(jen.False(), jen.Nil())))

	f.Func().Params(jen.Id("m").Op("*").Id(typeName)).Id("UnmarshalVarlinkMethod").
		Params(jen.Id("method").String(), jen.Id("parameters").Qual("encoding/json", "RawMessage")).
		Params(jen.Id("ok").Bool(), jen.Err().Error()).
		Block(
			jen.Switch(jen.Id("method")).Block(cases...),
		)
}

// genErrorSum emits a WireError implementation covering every error this
// interface declares.
func (g *generator) genErrorSum(f *jen.File) {
	typeName := "Error"
	fields := []jen.Code{jen.Id("Name").String()}
	for _, e := range g.iface.Errors {
		fields = append(fields, jen.Id(goName(e.Name)).Op("*").Id(goName(e.Name)+"Params"))
	}
	f.Type().Id(typeName).Struct(fields...)

	for _, e := range g.iface.Errors {
		f.Type().Id(goName(e.Name) + "Params").Struct(fieldsStruct(e.Fields)...)
	}

	f.Func().Params(jen.Id("e").Op("*").Id(typeName)).Id("Error").Params().String().Block(
		jen.Return(jen.Lit(g.iface.Name + ": ").Op("+").Id("e").Dot("Name")),
	)

	cases := make([]jen.Code, 0, len(g.iface.Errors))
	for _, e := range g.iface.Errors {
		full := g.iface.Name + "." + e.Name
		cases = append(cases, jen.Case(jen.Lit(full)).Block(
			jen.Id("params").Op(":=").New(jen.Id(goName(e.Name)+"Params")),
			jen.If(jen.Len(jen.Id("parameters")).Op(">").Lit(0)).Block(
				jen.If(jen.Err().Op(":=").Qual("encoding/json", "Unmarshal").Call(jen.Id("parameters"), jen.Id("params")), jen.Err().Op("!=").Nil()).Block(
					jen.Return(jen.True(), jen.Err()),
				),
			),
			jen.Id("e").Dot("Name").Op("=").Id("name"),
			jen.Id("e").Dot(goName(e.Name)).Op("=").Id("params"),
			jen.Return(jen.True(), jen.Nil()),
		))
	}
	cases = append(cases, jen.Default().Block(jen.Return(jen.False(), jen.Nil())))

	f.Func().Params(jen.Id("e").Op("*").Id(typeName)).Id("UnmarshalVarlinkError").
		Params(jen.Id("name").String(), jen.Id("parameters").Qual("encoding/json", "RawMessage")).
		Params(jen.Id("ok").Bool(), jen.Err().Error()).
		Block(
			jen.Switch(jen.Id("name")).Block(cases...),
		)
}

// genClient emits a typed Client wrapping *zlink.Proxy, one method per
// varlink method, following cmd/certification/client.go's calling
// convention with a leading context:
// c.MethodName(ctx, in) (*MethodNameOut, error).
func (g *generator) genClient(f *jen.File) {
	f.Type().Id("Client").Struct(
		jen.Op("*").Qual(zlinkPkg, "Proxy"),
	)

	f.Func().Id("NewClient").Params(jen.Id("proxy").Op("*").Qual(zlinkPkg, "Proxy")).Op("*").Id("Client").Block(
		jen.Return(jen.Op("&").Id("Client").Values(jen.Dict{jen.Id("Proxy"): jen.Id("proxy")})),
	)

	for _, m := range g.iface.Methods {
		full := g.iface.Name + "." + m.Name
		outName := goName(m.Name) + "Out"
		f.Func().Params(jen.Id("c").Op("*").Id("Client")).Id(goName(m.Name)).
			Params(jen.Id("ctx").Qual("context", "Context"), jen.Id("in").Op("*").Id(goName(m.Name)+"In")).
			Params(jen.Op("*").Id(outName), jen.Error()).
			Block(
				jen.List(jen.Id("outcome"), jen.Err()).Op(":=").Id("c").Dot("Proxy").Dot("Do").Call(jen.Id("ctx"), jen.Lit(full), jen.Id("in")),
				jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
				jen.If(jen.Id("outcome").Dot("IsError").Call()).Block(
					jen.Id("wireErr").Op(":=").Op("&").Id("Error").Values(),
					jen.List(jen.Id("matched"), jen.Err()).Op(":=").Id("outcome").Dot("As").Call(jen.Id("wireErr")),
					jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
					jen.If(jen.Id("matched")).Block(jen.Return(jen.Nil(), jen.Id("wireErr"))),
					jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(jen.Lit("%s: %s"), jen.Lit(full), jen.Id("outcome").Dot("ErrorName").Call())),
				),
				jen.Id("out").Op(":=").New(jen.Id(outName)),
				jen.If(jen.Err().Op(":=").Id("outcome").Dot("DecodeParams").Call(jen.Id("out")), jen.Err().Op("!=").Nil()).Block(
					jen.Return(jen.Nil(), jen.Err()),
				),
				jen.Return(jen.Id("out"), jen.Nil()),
			)
	}
}
