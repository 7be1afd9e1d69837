package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render prints s as SDL. Builtin types and directives are left out; the rest
// are written in name order, types first.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	renderSchemaDefinition(&b, s)

	for _, name := range sortedKeys(s.Types, isBuiltinType) {
		renderType(&b, s.Types[name])
	}
	for _, name := range sortedKeys(s.Directives, isBuiltinDirective) {
		renderDirective(&b, s.Directives[name])
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sortedKeys[V any](m map[string]V, skip func(string) bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !skip(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// renderSchemaDefinition emits a schema block only when the root types differ
// from the conventional names.
func renderSchemaDefinition(b *strings.Builder, s *Schema) {
	conventional := s.QueryType == "Query" &&
		(s.MutationType == "" || s.MutationType == "Mutation") &&
		(s.SubscriptionType == "" || s.SubscriptionType == "Subscription")
	if conventional && s.Description == "" {
		return
	}
	renderDescription(b, s.Description)
	b.WriteString("schema {\n")
	for _, op := range [][2]string{
		{"query", s.QueryType},
		{"mutation", s.MutationType},
		{"subscription", s.SubscriptionType},
	} {
		if op[1] != "" {
			fmt.Fprintf(b, "  %s: %s\n", op[0], op[1])
		}
	}
	b.WriteString("}\n\n")
}

func renderType(b *strings.Builder, t *Type) {
	renderDescription(b, t.Description)
	switch t.Kind {
	case TypeKindScalar:
		b.WriteString("scalar " + t.Name)
		if t.SpecifiedByURL != nil {
			fmt.Fprintf(b, " @specifiedBy(url: %q)", *t.SpecifiedByURL)
		}
		b.WriteString("\n\n")
	case TypeKindUnion:
		b.WriteString("union " + t.Name + " = " + strings.Join(t.PossibleTypes, " | ") + "\n\n")
	case TypeKindEnum:
		b.WriteString("enum " + t.Name + " {\n")
		for _, v := range t.EnumValues {
			renderDescription(b, v.Description)
			b.WriteString("  " + v.Name)
			renderDeprecated(b, v.IsDeprecated, v.DeprecationReason)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	case TypeKindInputObject:
		b.WriteString("input " + t.Name)
		if t.OneOf {
			b.WriteString(" @oneOf")
		}
		b.WriteString(" {\n")
		for _, in := range t.InputFields {
			renderDescription(b, in.Description)
			b.WriteString("  ")
			renderInputValue(b, in)
			renderDeprecated(b, in.IsDeprecated, in.DeprecationReason)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if t.Kind == TypeKindInterface {
			keyword = "interface "
		}
		b.WriteString(keyword + t.Name)
		if len(t.Interfaces) > 0 {
			b.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
		}
		renderApplied(b, t.Directives)
		if len(t.Fields) == 0 {
			b.WriteString("\n\n")
			return
		}
		b.WriteString(" {\n")
		for _, f := range t.Fields {
			renderDescription(b, f.Description)
			b.WriteString("  " + f.Name)
			renderArguments(b, f.Arguments)
			b.WriteString(": " + renderTypeRef(f.Type))
			renderApplied(b, f.Directives)
			renderDeprecated(b, f.IsDeprecated, f.DeprecationReason)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	}
}

func renderDirective(b *strings.Builder, d *Directive) {
	renderDescription(b, d.Description)
	b.WriteString("directive @" + d.Name)
	renderArguments(b, d.Arguments)
	if d.IsRepeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

func renderArguments(b *strings.Builder, args []*InputValue) {
	if len(args) == 0 {
		return
	}
	b.WriteString("(")
	for i, in := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		renderInputValue(b, in)
	}
	b.WriteString(")")
}

func renderInputValue(b *strings.Builder, in *InputValue) {
	b.WriteString(in.Name + ": " + renderTypeRef(in.Type))
	if in.DefaultValue != nil {
		b.WriteString(" = " + renderValue(in.DefaultValue))
	}
}

func renderApplied(b *strings.Builder, dirs []*AppliedDirective) {
	for _, d := range dirs {
		b.WriteString(" @" + d.Name)
		if len(d.Args) == 0 {
			continue
		}
		parts := make([]string, 0, len(d.Args))
		for _, name := range sortedKeys(d.Args, func(string) bool { return false }) {
			parts = append(parts, name+": "+renderValue(d.Args[name]))
		}
		b.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
}

func renderDeprecated(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		fmt.Fprintf(b, "(reason: %s)", strconv.Quote(reason))
	}
}

func renderDescription(b *strings.Builder, desc string) {
	if desc != "" {
		b.WriteString(`"""` + "\n" + strings.ReplaceAll(desc, `"""`, `\"""`) + "\n" + `"""` + "\n")
	}
}

func renderTypeRef(t *TypeRef) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindList:
		return "[" + renderTypeRef(t.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(t.OfType) + "!"
	}
	return t.Named
}

// renderValue prints a converted argument or default value as a GraphQL
// literal.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case EnumLiteral:
		return string(v)
	case string:
		return strconv.Quote(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, renderValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(v))
		for _, k := range sortedKeys(v, func(string) bool { return false }) {
			parts = append(parts, k+": "+renderValue(v[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	// ints and bools print the same way in Go and GraphQL
	return fmt.Sprint(value)
}
