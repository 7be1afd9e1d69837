package directive

import (
	"context"

	language "github.com/hanpama/cardgraph/internal/language"
)

// Resolver produces the runtime value of a field.
type Resolver func(ctx context.Context, p ResolveParams) (any, error)

// ResolveParams is the input of a single field resolution.
type ResolveParams struct {
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments.
	Args map[string]any
}

// FieldDefinition is the static view of a schema field handed to a Wiring.
type FieldDefinition struct {
	// ParentType is the name of the object or interface declaring the field.
	ParentType string
	// Name is the field name.
	Name string
	// NamedType is the innermost named return type, e.g. "String" for [String!]!.
	NamedType string
	NonNull   bool
	List      bool
	// Args holds the arguments of the directive usage being wired, converted to
	// Go values. Defaults declared on the directive definition are applied.
	Args map[string]any
	// Position points at the directive usage in the schema document.
	Position *language.Position
}

// Wiring rewrites or wraps the runtime behavior of a field.
//
// WireField receives the field's static definition and the resolver built so
// far (the base resolver or the result of earlier directives on the same
// field) and returns the resolver to use instead. Returning an error aborts
// schema assembly.
type Wiring interface {
	WireField(def FieldDefinition, next Resolver) (Resolver, error)
}

// WiringFunc adapts a function to Wiring.
type WiringFunc func(def FieldDefinition, next Resolver) (Resolver, error)

func (f WiringFunc) WireField(def FieldDefinition, next Resolver) (Resolver, error) {
	return f(def, next)
}

// Declarer is implemented by wirings that can describe their own SDL
// declaration, e.g. `directive @upper on FIELD_DEFINITION`. Assembly uses it
// for registered directives the schema document does not declare.
type Declarer interface {
	Declaration() string
}

// Binding pairs a directive name with its wiring.
type Binding struct {
	Name   string
	Wiring Wiring
}
