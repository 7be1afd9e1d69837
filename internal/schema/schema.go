package schema

import (
	"context"
	"fmt"

	directive "github.com/hanpama/cardgraph/internal/directive"
)

// Schema is an assembled GraphQL schema whose fields carry wired resolvers.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name
	Directives       map[string]*Directive
	Description      string
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the root subscription type (may be nil if absent)
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// ResolveField runs the resolver wired for typeName.fieldName.
func (s *Schema) ResolveField(ctx context.Context, typeName, fieldName string, source any, args map[string]any) (any, error) {
	t := s.Types[typeName]
	if t == nil {
		return nil, fmt.Errorf("unknown type %q", typeName)
	}
	f := t.Field(fieldName)
	if f == nil {
		return nil, fmt.Errorf("type %q has no field %q", typeName, fieldName)
	}
	if f.resolve == nil {
		return nil, fmt.Errorf("field %s.%s has no resolver", typeName, fieldName)
	}
	if args == nil {
		args = map[string]any{}
	}
	return f.resolve(ctx, directive.ResolveParams{Source: source, Args: args})
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name           string
	Kind           TypeKind
	Description    string
	Fields         []*Field      // For OBJECT and INTERFACE
	Interfaces     []string      // For OBJECT and INTERFACE (implemented/extended)
	PossibleTypes  []string      // For INTERFACE and UNION
	EnumValues     []*EnumValue  // For ENUM
	InputFields    []*InputValue // For INPUT_OBJECT
	Directives     []*AppliedDirective
	SpecifiedByURL *string
	OneOf          bool
}

// Field returns the field called name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Field represents a field on an object or interface
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Directives        []*AppliedDirective
	IsDeprecated      bool
	DeprecationReason string

	resolve directive.Resolver
}

// AppliedDirective records a directive usage kept on the assembled schema so
// that rendering reproduces it.
type AppliedDirective struct {
	Name string
	Args map[string]any
}

// EnumLiteral is an enum value written as a directive argument. Render emits
// it unquoted.
type EnumLiteral string

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) IsList() bool {
	if t.Kind == TypeRefKindList {
		return true
	}
	if t.Kind == TypeRefKindNonNull && t.OfType != nil {
		return t.OfType.Kind == TypeRefKindList
	}
	return false
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool

	// loose marks a directive with no known declaration; its arguments are
	// passed through unchecked.
	loose bool
}

// AllowedOn reports whether the directive may be used at location.
func (d *Directive) AllowedOn(location string) bool {
	for _, l := range d.Locations {
		if l == location {
			return true
		}
	}
	return false
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
