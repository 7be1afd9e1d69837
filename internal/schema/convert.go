package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	directive "github.com/hanpama/cardgraph/internal/directive"
	language "github.com/hanpama/cardgraph/internal/language"
)

func buildTypeRef(t *language.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		ref = NonNullType(ref)
	}
	return ref
}

func buildDirective(def *language.DirectiveDefinition) (*Directive, error) {
	d := &Directive{Name: def.Name, Description: def.Description, IsRepeatable: def.IsRepeatable}
	for _, loc := range def.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, ad := range def.Arguments {
		in, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, fmt.Errorf("directive @%s: %w", def.Name, err)
		}
		d.Arguments = append(d.Arguments, in)
	}
	return d, nil
}

func buildInputValue(name, desc string, typ *language.Type, defaultValue *language.Value, dirs language.DirectiveList) (*InputValue, error) {
	in := &InputValue{Name: name, Description: desc, Type: buildTypeRef(typ)}
	if defaultValue != nil {
		v, err := defaultValue.Value(nil)
		if err != nil {
			return nil, fmt.Errorf("default value of %s: %w", name, err)
		}
		in.DefaultValue = v
	}
	in.IsDeprecated, in.DeprecationReason = deprecation(dirs)
	return in, nil
}

func deprecation(dirs language.DirectiveList) (bool, string) {
	d := dirs.ForName(deprecatedDirective.Name)
	if d == nil {
		return false, ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, defaultDeprecationReason
}

// explicitArgs converts the arguments written on a usage, keeping enum values
// as EnumLiteral. Values that cannot be converted without variables are kept
// as their raw text.
func explicitArgs(dir *language.Directive) map[string]any {
	if len(dir.Arguments) == 0 {
		return nil
	}
	out := make(map[string]any, len(dir.Arguments))
	for _, arg := range dir.Arguments {
		out[arg.Name] = literal(arg.Value)
	}
	return out
}

func literal(v *language.Value) any {
	switch v.Kind {
	case language.EnumValue:
		return EnumLiteral(v.Raw)
	case language.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			out = append(out, literal(c.Value))
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			out[c.Name] = literal(c.Value)
		}
		return out
	}
	x, err := v.Value(nil)
	if err != nil {
		return v.Raw
	}
	return x
}

// directiveArgs validates a usage against its declaration and returns the
// arguments with declared defaults filled in.
func directiveArgs(dir *language.Directive, decl *Directive) (map[string]any, error) {
	args := make(map[string]any, len(decl.Arguments)+len(dir.Arguments))
	for _, arg := range dir.Arguments {
		if !decl.loose && decl.argument(arg.Name) == nil {
			return nil, fmt.Errorf("unknown argument %q", arg.Name)
		}
		v, err := arg.Value.Value(nil)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		args[arg.Name] = v
	}
	for _, in := range decl.Arguments {
		if _, ok := args[in.Name]; ok {
			continue
		}
		switch {
		case in.DefaultValue != nil:
			args[in.Name] = in.DefaultValue
		case in.Type.IsNonNull():
			return nil, fmt.Errorf("missing required argument %q", in.Name)
		}
	}
	return args, nil
}

func (d *Directive) argument(name string) *InputValue {
	for _, in := range d.Arguments {
		if in.Name == name {
			return in
		}
	}
	return nil
}

func defaultResolver(field string) directive.Resolver {
	return func(_ context.Context, p directive.ResolveParams) (any, error) {
		return lookupField(p.Source, field)
	}
}

// lookupField reads field off a map or a struct. Structs are decoded to maps
// first, nested ones included. Keys are matched exactly, then
// case-insensitively so that Go field names line up with camelCase GraphQL
// names.
func lookupField(source any, field string) (any, error) {
	var m map[string]any
	switch src := source.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		m = src
	default:
		if err := mapstructure.Decode(source, &m); err != nil {
			return nil, fmt.Errorf("read field %q: %w", field, err)
		}
	}
	if v, ok := m[field]; ok {
		return v, nil
	}
	for k, v := range m {
		if strings.EqualFold(k, field) {
			return v, nil
		}
	}
	return nil, nil
}
