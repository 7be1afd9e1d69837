package schema_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	directive "github.com/hanpama/cardgraph/internal/directive"
	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
	language "github.com/hanpama/cardgraph/internal/language"
	schema "github.com/hanpama/cardgraph/internal/schema"
)

// tagWiring appends its tag to string results, so the resolved value shows the
// order in which wrappers were applied.
type tagWiring struct {
	tag  string
	defs []directive.FieldDefinition
}

func (w *tagWiring) WireField(def directive.FieldDefinition, next directive.Resolver) (directive.Resolver, error) {
	w.defs = append(w.defs, def)
	return func(ctx context.Context, p directive.ResolveParams) (any, error) {
		v, err := next(ctx, p)
		if err != nil {
			return nil, err
		}
		return v.(string) + "|" + w.tag, nil
	}, nil
}

type declaredWiring struct {
	tagWiring
	decl string
}

func (w *declaredWiring) Declaration() string { return w.decl }

func parse(t *testing.T, src string) *language.SchemaDocument {
	t.Helper()
	doc, err := language.ParseSchema("schema.graphql", src)
	require.NoError(t, err)
	return doc
}

func registry(t *testing.T, bindings ...directive.Binding) *directive.Registry {
	t.Helper()
	reg := directive.NewRegistry()
	for _, b := range bindings {
		require.NoError(t, reg.Register(b))
	}
	return reg
}

func TestAssemble_WiresInSourceOrder(t *testing.T) {
	a, b, c := &tagWiring{tag: "a"}, &tagWiring{tag: "b"}, &tagWiring{tag: "c"}
	reg := registry(t,
		directive.Binding{Name: "a", Wiring: a},
		directive.Binding{Name: "b", Wiring: b},
		directive.Binding{Name: "c", Wiring: c},
	)
	doc := parse(t, `
type Query @c {
  greeting: String! @b @a
}
`)
	s, err := schema.Assemble(context.Background(), doc, reg)
	require.NoError(t, err)
	require.Equal(t, directive.Sealed, reg.State())

	got, err := s.ResolveField(context.Background(), "Query", "greeting", map[string]any{"greeting": "hi"}, nil)
	require.NoError(t, err)
	require.Equal(t, "hi|b|a|c", got)

	require.Len(t, b.defs, 1)
	def := b.defs[0]
	require.Equal(t, "Query", def.ParentType)
	require.Equal(t, "greeting", def.Name)
	require.Equal(t, "String", def.NamedType)
	require.True(t, def.NonNull)
	require.False(t, def.List)
	require.Equal(t, 3, def.Position.Line)
}

func TestAssemble_UnknownDirectiveFailsFast(t *testing.T) {
	first := &tagWiring{tag: "first"}
	reg := registry(t, directive.Binding{Name: "first", Wiring: first})
	doc := parse(t, `
type Query {
  a: String @missing
  b: String @first
}
`)
	_, err := schema.Assemble(context.Background(), doc, reg)
	require.Error(t, err)

	var unknown *directive.UnknownDirectiveError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "missing", unknown.Name)
	require.ErrorIs(t, err, directive.ErrUnknownDirective)

	var aerr *schema.AssemblyError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, "Query", aerr.Type)
	require.Equal(t, "a", aerr.Field)
	require.True(t, strings.HasPrefix(err.Error(), "schema.graphql:3:"), err.Error())
	require.Empty(t, first.defs, "assembly must stop at the first failure")
}

func TestAssemble_UnknownDirectiveOnEnum(t *testing.T) {
	doc := parse(t, `
type Query { a: String }
enum Brand { VISA @network MASTER }
`)
	_, err := schema.Assemble(context.Background(), doc, directive.NewRegistry())
	require.ErrorIs(t, err, directive.ErrUnknownDirective)
}

func TestAssemble_RegisteredDirectiveOnEnumIsMisplaced(t *testing.T) {
	reg := registry(t, directive.Binding{Name: "upper", Wiring: &tagWiring{tag: "u"}})
	doc := parse(t, `
type Query { a: String }
enum Brand @upper { VISA }
`)
	_, err := schema.Assemble(context.Background(), doc, reg)
	require.ErrorIs(t, err, schema.ErrMisplacedDirective)
}

func TestAssemble_UnknownDirectiveOutsideFields(t *testing.T) {
	for _, tt := range []struct {
		name     string
		src      string
		typeName string
	}{
		{"schema", "schema @bogus { query: Query }\ntype Query { a: String }", "schema"},
		{"schema extension", "type Query { a: String }\nextend schema @bogus", "schema"},
		{"directive argument", "type Query { a: String }\ndirective @other(x: Int @bogus) on FIELD_DEFINITION", "@other"},
		{"object without fields", "type Query { a: String }\ntype Empty @bogus", "Empty"},
		{"interface without fields", "type Query { a: String }\ninterface Node @bogus", "Node"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Assemble(context.Background(), parse(t, tt.src), directive.NewRegistry())
			require.ErrorIs(t, err, directive.ErrUnknownDirective)

			var aerr *schema.AssemblyError
			require.ErrorAs(t, err, &aerr)
			require.Equal(t, "bogus", aerr.Directive)
			require.Equal(t, tt.typeName, aerr.Type)
		})
	}
}

func TestAssemble_TypeWithoutFields(t *testing.T) {
	reg := registry(t, directive.Binding{Name: "tag", Wiring: &tagWiring{tag: "t"}})
	s, err := schema.Assemble(context.Background(), parse(t, "type Query { a: String }\ntype Empty @tag"), reg)
	require.NoError(t, err)
	require.Equal(t, []*schema.AppliedDirective{{Name: "tag"}}, s.Types["Empty"].Directives)

	reg = registry(t, directive.Binding{Name: "fieldOnly", Wiring: &declaredWiring{
		tagWiring: tagWiring{tag: "f"},
		decl:      "directive @fieldOnly on FIELD_DEFINITION",
	}})
	_, err = schema.Assemble(context.Background(), parse(t, "type Query { a: String }\ntype Empty @fieldOnly"), reg)
	require.ErrorIs(t, err, schema.ErrMisplacedDirective)
}

func TestAssemble_RegisteredDirectiveOnSchemaIsMisplaced(t *testing.T) {
	reg := registry(t, directive.Binding{Name: "upper", Wiring: &tagWiring{tag: "u"}})
	_, err := schema.Assemble(context.Background(), parse(t, "schema @upper { query: Query }\ntype Query { a: String }"), reg)
	require.ErrorIs(t, err, schema.ErrMisplacedDirective)
}

func TestAssemble_ListFieldDefinition(t *testing.T) {
	w := &tagWiring{tag: "w"}
	reg := registry(t, directive.Binding{Name: "w", Wiring: w})
	doc := parse(t, `
type Query {
  tags: [String!] @w
  ids: [ID]! @w
}
`)
	_, err := schema.Assemble(context.Background(), doc, reg)
	require.NoError(t, err)

	require.Len(t, w.defs, 2)
	require.Equal(t, "String", w.defs[0].NamedType)
	require.True(t, w.defs[0].List)
	require.False(t, w.defs[0].NonNull)
	require.Equal(t, "ID", w.defs[1].NamedType)
	require.True(t, w.defs[1].List)
	require.True(t, w.defs[1].NonNull)
}

func TestAssemble_DeclaredLocationIsEnforced(t *testing.T) {
	reg := registry(t, directive.Binding{Name: "fieldOnly", Wiring: &declaredWiring{
		tagWiring: tagWiring{tag: "f"},
		decl:      "directive @fieldOnly on FIELD_DEFINITION",
	}})
	doc := parse(t, `type Query @fieldOnly { a: String }`)
	_, err := schema.Assemble(context.Background(), doc, reg)
	require.ErrorIs(t, err, schema.ErrMisplacedDirective)
}

func TestAssemble_ArgumentsFromDeclaration(t *testing.T) {
	w := &declaredWiring{
		tagWiring: tagWiring{tag: "m"},
		decl:      `directive @mask(keep: Int = 4, with: String = "*") on FIELD_DEFINITION`,
	}
	reg := registry(t, directive.Binding{Name: "mask", Wiring: w})
	doc := parse(t, `
type Query {
  a: String @mask
  b: String @mask(keep: 2)
}
`)
	_, err := schema.Assemble(context.Background(), doc, reg)
	require.NoError(t, err)

	require.Len(t, w.defs, 2)
	if diff := cmp.Diff(map[string]any{"keep": int64(4), "with": "*"}, w.defs[0].Args); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"keep": int64(2), "with": "*"}, w.defs[1].Args); diff != "" {
		t.Fatalf("explicit args mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_ArgumentErrors(t *testing.T) {
	decl := `directive @auth(requires: String!) on FIELD_DEFINITION`
	tests := []struct {
		name  string
		field string
		msg   string
	}{
		{"missing required", `a: String @auth`, `missing required argument "requires"`},
		{"unknown argument", `a: String @auth(requires: "x", role: "y")`, `unknown argument "role"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry(t, directive.Binding{Name: "auth", Wiring: &declaredWiring{tagWiring: tagWiring{tag: "x"}, decl: decl}})
			_, err := schema.Assemble(context.Background(), parse(t, "type Query { "+tt.field+" }"), reg)
			require.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestAssemble_NonRepeatable(t *testing.T) {
	reg := registry(t, directive.Binding{Name: "a", Wiring: &declaredWiring{
		tagWiring: tagWiring{tag: "a"},
		decl:      "directive @a on FIELD_DEFINITION",
	}})
	_, err := schema.Assemble(context.Background(), parse(t, "type Query { x: String @a @a }"), reg)
	require.ErrorContains(t, err, "not repeatable")
}

func TestAssemble_WiringErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	reg := registry(t, directive.Binding{Name: "fail", Wiring: directive.WiringFunc(func(directive.FieldDefinition, directive.Resolver) (directive.Resolver, error) {
		return nil, boom
	})})
	_, err := schema.Assemble(context.Background(), parse(t, "type Query { x: String @fail }"), reg)
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "@fail on Query.x")
}

func TestAssemble_Extensions(t *testing.T) {
	w := &tagWiring{tag: "ext"}
	reg := registry(t, directive.Binding{Name: "ext", Wiring: w})
	doc := parse(t, `
type Query { a: String }
extend type Query { b: String @ext }
`)
	s, err := schema.Assemble(context.Background(), doc, reg)
	require.NoError(t, err)
	require.NotNil(t, s.GetQueryType().Field("b"))

	got, err := s.ResolveField(context.Background(), "Query", "b", map[string]any{"b": "v"}, nil)
	require.NoError(t, err)
	require.Equal(t, "v|ext", got)
	require.Len(t, doc.Definitions[0].Fields, 1, "the parsed document must not be modified")
}

type contact struct {
	Message        string
	ContactDetails struct{ Name string }
}

func TestAssemble_BaseResolvers(t *testing.T) {
	doc := parse(t, `
type Query { contactInfo: ContactInfo version: String }
type ContactInfo { message: String contactDetails: Details }
type Details { name: String }
`)
	src := contact{Message: "call us"}
	src.ContactDetails.Name = "Card Team"

	s, err := schema.Assemble(context.Background(), doc, directive.NewRegistry(),
		schema.WithResolver("Query", "contactInfo", func(context.Context, directive.ResolveParams) (any, error) {
			return src, nil
		}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	info, err := s.ResolveField(ctx, "Query", "contactInfo", nil, nil)
	require.NoError(t, err)

	msg, err := s.ResolveField(ctx, "ContactInfo", "message", info, nil)
	require.NoError(t, err)
	require.Equal(t, "call us", msg)

	details, err := s.ResolveField(ctx, "ContactInfo", "contactDetails", info, nil)
	require.NoError(t, err)
	name, err := s.ResolveField(ctx, "Details", "name", details, nil)
	require.NoError(t, err)
	require.Equal(t, "Card Team", name)

	v, err := s.ResolveField(ctx, "Query", "version", nil, nil)
	require.NoError(t, err)
	require.Nil(t, v)

	_, err = s.ResolveField(ctx, "Query", "nope", nil, nil)
	require.Error(t, err)
}

func TestAssemble_NoQueryType(t *testing.T) {
	_, err := schema.Assemble(context.Background(), parse(t, "type Card { a: String }"), directive.NewRegistry())
	require.ErrorContains(t, err, "no query type")
}

func TestAssemble_Events(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	var resolved []events.DirectiveResolved
	var finish events.SchemaAssemblyFinish
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.DirectiveResolved) { resolved = append(resolved, e) })
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.SchemaAssemblyFinish) { finish = e })

	reg := registry(t,
		directive.Binding{Name: "used", Wiring: &tagWiring{tag: "u"}},
		directive.Binding{Name: "idle", Wiring: &tagWiring{tag: "i"}},
	)
	_, err := schema.Assemble(context.Background(), parse(t, "type Query { a: String @used }"), reg)
	require.NoError(t, err)

	require.Equal(t, []events.DirectiveResolved{{Name: "used", Type: "Query", Field: "a"}}, resolved)
	require.NoError(t, finish.Err)
	require.Equal(t, []string{"idle"}, finish.Unused)
}

func TestRender(t *testing.T) {
	reg := registry(t,
		directive.Binding{Name: "mask", Wiring: &declaredWiring{
			tagWiring: tagWiring{tag: "m"},
			decl:      `directive @mask(keep: Int = 4) on FIELD_DEFINITION`,
		}},
		directive.Binding{Name: "loose", Wiring: &tagWiring{tag: "l"}},
	)
	doc := parse(t, `
type Query {
  card(id: ID!): Card
}

type Card {
  number: String @mask(keep: 2)
  brand: Brand @deprecated
}

enum Brand { VISA MASTER }
`)
	s, err := schema.Assemble(context.Background(), doc, reg)
	require.NoError(t, err)

	want := `enum Brand {
  VISA
  MASTER
}

type Card {
  number: String @mask(keep: 2)
  brand: Brand @deprecated(reason: "No longer supported")
}

type Query {
  card(id: ID!): Card
}

directive @loose on FIELD_DEFINITION | OBJECT | INTERFACE

directive @mask(keep: Int = 4) on FIELD_DEFINITION
`
	if diff := cmp.Diff(want, schema.Render(s)); diff != "" {
		t.Fatalf("render mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_UndeclaredDirectiveArguments(t *testing.T) {
	reg := registry(t, directive.Binding{Name: "tier", Wiring: &tagWiring{tag: "t"}})
	doc := parse(t, `
type Query {
  card: Card @tier(level: GOLD, limit: 3, tags: ["a"])
}

type Card {
  number: String @tier(limit: 1)
}

enum Level { GOLD SILVER }
`)
	s, err := schema.Assemble(context.Background(), doc, reg)
	require.NoError(t, err)

	want := `type Card {
  number: String @tier(limit: 1)
}

enum Level {
  GOLD
  SILVER
}

type Query {
  card: Card @tier(level: GOLD, limit: 3, tags: ["a"])
}

directive @tier(level: Level, limit: Int, tags: [String]) on FIELD_DEFINITION | OBJECT | INTERFACE
`
	out := schema.Render(s)
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("render mismatch (-want +got):\n%s", diff)
	}

	// the rendered SDL declares what it applies, so it assembles on its own
	again := registry(t, directive.Binding{Name: "tier", Wiring: &tagWiring{tag: "t"}})
	_, err = schema.Assemble(context.Background(), parse(t, out), again)
	require.NoError(t, err)
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"query.graphql":      {Data: []byte("type Query { card: Card }")},
		"types/card.graphql": {Data: []byte("type Card { number: String }")},
		"README.md":          {Data: []byte("not a schema")},
	}
	doc, err := schema.LoadFS(fsys)
	require.NoError(t, err)

	var names []string
	for _, def := range doc.Definitions {
		names = append(names, def.Name+"@"+def.Position.Src.Name)
	}
	require.Equal(t, []string{"Query@query.graphql", "Card@types/card.graphql"}, names)
}

func TestLoadFS_Empty(t *testing.T) {
	_, err := schema.LoadFS(fstest.MapFS{"README.md": {Data: []byte("x")}})
	require.ErrorContains(t, err, "no .graphql files")
}
