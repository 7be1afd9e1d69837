package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	directive "github.com/hanpama/cardgraph/internal/directive"
	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
	language "github.com/hanpama/cardgraph/internal/language"
)

// ErrMisplacedDirective is wrapped by AssemblyError when a registered
// directive is used where its declaration or its wiring does not allow it.
var ErrMisplacedDirective = errors.New("directive not allowed at this location")

// AssemblyError locates a directive failure inside the schema document.
type AssemblyError struct {
	Directive string
	Type      string
	Field     string
	Position  *language.Position
	Err       error
}

func (e *AssemblyError) Error() string {
	loc := ""
	if e.Position != nil && e.Position.Src != nil {
		loc = fmt.Sprintf("%s:%d:%d: ", e.Position.Src.Name, e.Position.Line, e.Position.Column)
	}
	target := e.Type
	if e.Field != "" {
		target += "." + e.Field
	}
	return fmt.Sprintf("%s@%s on %s: %v", loc, e.Directive, target, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// Option configures Assemble.
type Option func(*assembleOptions)

type fieldKey struct{ typ, field string }

type assembleOptions struct {
	resolvers map[fieldKey]directive.Resolver
}

// WithResolver sets the base resolver of typeName.fieldName. Directives on the
// field wrap it. Fields without one read the value off their source.
func WithResolver(typeName, fieldName string, r directive.Resolver) Option {
	return func(o *assembleOptions) { o.resolvers[fieldKey{typeName, fieldName}] = r }
}

type assembler struct {
	ctx    context.Context
	doc    *language.SchemaDocument
	reg    *directive.Registry
	opts   assembleOptions
	schema *Schema
	defs   []*language.Definition
	used   mapset.Set[string]
}

// Assemble turns doc into an executable schema, resolving every directive
// usage against reg.
//
// The registry is sealed first so nothing can be registered once the schema
// has consumed it. Every registered directive gets a declaration on the
// schema, referenced or not. For each field, directive usages on the field
// and then on its parent type are resolved and wired over the base resolver
// in source order, so the last usage ends up outermost. The first directive
// that cannot be resolved or wired aborts assembly with an *AssemblyError.
func Assemble(ctx context.Context, doc *language.SchemaDocument, reg *directive.Registry, opts ...Option) (s *Schema, err error) {
	o := assembleOptions{resolvers: make(map[fieldKey]directive.Resolver)}
	for _, f := range opts {
		f(&o)
	}
	reg.Seal()

	a := &assembler{
		ctx:    ctx,
		doc:    doc,
		reg:    reg,
		opts:   o,
		schema: &Schema{Types: make(map[string]*Type), Directives: make(map[string]*Directive)},
		used:   mapset.NewThreadUnsafeSet[string](),
	}

	start := time.Now()
	eventbus.Publish(ctx, events.SchemaAssemblyStart{Types: len(doc.Definitions)})
	defer func() {
		unused := mapset.NewThreadUnsafeSet(reg.Names()...).Difference(a.used).ToSlice()
		sort.Strings(unused)
		eventbus.Publish(ctx, events.SchemaAssemblyFinish{
			Types:    len(a.schema.Types),
			Unused:   unused,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	if err := a.run(); err != nil {
		return nil, err
	}
	return a.schema, nil
}

func (a *assembler) run() error {
	if err := a.declareDirectives(); err != nil {
		return err
	}
	if err := a.mergeDefinitions(); err != nil {
		return err
	}
	for _, t := range builtinTypes {
		a.schema.Types[t.Name] = t
	}
	for _, def := range a.defs {
		t, err := a.buildType(def)
		if err != nil {
			return err
		}
		a.schema.Types[def.Name] = t
	}
	a.linkPossibleTypes()
	return a.setRootTypes()
}

func (a *assembler) declareDirectives() error {
	for _, d := range builtinDirectives {
		a.schema.Directives[d.Name] = d
	}
	for _, def := range a.doc.Directives {
		if _, ok := a.schema.Directives[def.Name]; ok {
			return fmt.Errorf("directive @%s is declared more than once", def.Name)
		}
		d, err := buildDirective(def)
		if err != nil {
			return err
		}
		for _, ad := range def.Arguments {
			if err := a.rejectCustom(ad.Directives, "@"+def.Name, ad.Name); err != nil {
				return err
			}
		}
		a.schema.Directives[def.Name] = d
	}

	// one pass over every registered directive, referenced or not
	for b := range a.reg.All() {
		if _, ok := a.schema.Directives[b.Name]; ok {
			continue
		}
		d, err := declarationOf(b)
		if err != nil {
			return err
		}
		a.schema.Directives[b.Name] = d
	}
	return nil
}

func declarationOf(b directive.Binding) (*Directive, error) {
	decl, ok := b.Wiring.(directive.Declarer)
	if !ok {
		return &Directive{Name: b.Name, Locations: []string{"FIELD_DEFINITION", "OBJECT", "INTERFACE"}, loose: true}, nil
	}
	doc, err := language.ParseSchema("@"+b.Name, decl.Declaration())
	if err != nil {
		return nil, fmt.Errorf("declaration of @%s: %w", b.Name, err)
	}
	if len(doc.Directives) != 1 || doc.Directives[0].Name != b.Name {
		return nil, fmt.Errorf("declaration of @%s must declare exactly that directive", b.Name)
	}
	return buildDirective(doc.Directives[0])
}

// mergeDefinitions folds type extensions into copies of their base
// definitions; the caller's document is left untouched.
func (a *assembler) mergeDefinitions() error {
	byName := make(map[string]*language.Definition, len(a.doc.Definitions))
	for _, def := range a.doc.Definitions {
		if _, ok := byName[def.Name]; ok || isBuiltinType(def.Name) {
			return fmt.Errorf("type %s is defined more than once", def.Name)
		}
		c := *def
		c.Fields = slices.Clone(def.Fields)
		c.Directives = slices.Clone(def.Directives)
		c.Interfaces = slices.Clone(def.Interfaces)
		c.Types = slices.Clone(def.Types)
		c.EnumValues = slices.Clone(def.EnumValues)
		byName[def.Name] = &c
		a.defs = append(a.defs, &c)
	}
	for _, ext := range a.doc.Extensions {
		base, ok := byName[ext.Name]
		if !ok {
			return fmt.Errorf("cannot extend undefined type %s", ext.Name)
		}
		if base.Kind != ext.Kind {
			return fmt.Errorf("cannot extend %s %s as %s", base.Kind, ext.Name, ext.Kind)
		}
		base.Fields = append(base.Fields, ext.Fields...)
		base.Directives = append(base.Directives, ext.Directives...)
		base.Interfaces = append(base.Interfaces, ext.Interfaces...)
		base.Types = append(base.Types, ext.Types...)
		base.EnumValues = append(base.EnumValues, ext.EnumValues...)
	}
	return nil
}

func (a *assembler) buildType(def *language.Definition) (*Type, error) {
	t := &Type{Name: def.Name, Description: def.Description}
	switch def.Kind {
	case language.Object, language.Interface:
		t.Kind = TypeKindObject
		location := "OBJECT"
		if def.Kind == language.Interface {
			t.Kind = TypeKindInterface
			location = "INTERFACE"
		}
		t.Interfaces = slices.Clone(def.Interfaces)
		for _, dir := range def.Directives {
			if isBuiltinDirective(dir.Name) {
				continue
			}
			t.Directives = append(t.Directives, &AppliedDirective{Name: dir.Name, Args: explicitArgs(dir)})
		}
		if len(def.Fields) == 0 {
			// no field to wire into, but the usages still have to resolve
			if err := a.resolveTypeDirectives(def, location); err != nil {
				return nil, err
			}
		}
		for _, fd := range def.Fields {
			f, err := a.buildField(def, fd, location)
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, f)
		}
	case language.Union:
		t.Kind = TypeKindUnion
		t.PossibleTypes = slices.Clone(def.Types)
		if err := a.rejectCustom(def.Directives, def.Name, ""); err != nil {
			return nil, err
		}
	case language.Enum:
		t.Kind = TypeKindEnum
		if err := a.rejectCustom(def.Directives, def.Name, ""); err != nil {
			return nil, err
		}
		for _, ev := range def.EnumValues {
			if err := a.rejectCustom(ev.Directives, def.Name, ev.Name); err != nil {
				return nil, err
			}
			v := &EnumValue{Name: ev.Name, Description: ev.Description}
			v.IsDeprecated, v.DeprecationReason = deprecation(ev.Directives)
			t.EnumValues = append(t.EnumValues, v)
		}
	case language.InputObject:
		t.Kind = TypeKindInputObject
		t.OneOf = def.Directives.ForName(oneOfDirective.Name) != nil
		if err := a.rejectCustom(def.Directives, def.Name, ""); err != nil {
			return nil, err
		}
		for _, fd := range def.Fields {
			if err := a.rejectCustom(fd.Directives, def.Name, fd.Name); err != nil {
				return nil, err
			}
			in, err := buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives)
			if err != nil {
				return nil, err
			}
			t.InputFields = append(t.InputFields, in)
		}
	case language.Scalar:
		t.Kind = TypeKindScalar
		if err := a.rejectCustom(def.Directives, def.Name, ""); err != nil {
			return nil, err
		}
		if d := def.Directives.ForName(specifiedByDirective.Name); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
	default:
		return nil, fmt.Errorf("unsupported definition kind %s for %s", def.Kind, def.Name)
	}
	return t, nil
}

func (a *assembler) buildField(parent *language.Definition, fd *language.FieldDefinition, parentLocation string) (*Field, error) {
	f := &Field{Name: fd.Name, Description: fd.Description, Type: buildTypeRef(fd.Type)}
	f.IsDeprecated, f.DeprecationReason = deprecation(fd.Directives)
	for _, ad := range fd.Arguments {
		if err := a.rejectCustom(ad.Directives, parent.Name, fd.Name); err != nil {
			return nil, err
		}
		in, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, err
		}
		f.Arguments = append(f.Arguments, in)
	}

	next, ok := a.opts.resolvers[fieldKey{parent.Name, fd.Name}]
	if !ok {
		next = defaultResolver(fd.Name)
	}

	type usage struct {
		dir      *language.Directive
		location string
	}
	var usages []usage
	for _, dir := range fd.Directives {
		if !isBuiltinDirective(dir.Name) {
			usages = append(usages, usage{dir, "FIELD_DEFINITION"})
			f.Directives = append(f.Directives, &AppliedDirective{Name: dir.Name, Args: explicitArgs(dir)})
		}
	}
	for _, dir := range parent.Directives {
		if !isBuiltinDirective(dir.Name) {
			usages = append(usages, usage{dir, parentLocation})
		}
	}

	seen := make(map[string]int)
	for _, u := range usages {
		fail := func(err error) error {
			eventbus.Publish(a.ctx, events.DirectiveResolved{Name: u.dir.Name, Type: parent.Name, Field: fd.Name, Err: err})
			return &AssemblyError{Directive: u.dir.Name, Type: parent.Name, Field: fd.Name, Position: u.dir.Position, Err: err}
		}

		b, err := a.reg.Resolve(u.dir.Name)
		if err != nil {
			return nil, fail(err)
		}
		decl := a.schema.Directives[u.dir.Name]
		if !decl.AllowedOn(u.location) {
			return nil, fail(fmt.Errorf("%w: %s", ErrMisplacedDirective, u.location))
		}
		key := u.location + "/" + u.dir.Name
		if seen[key]++; seen[key] > 1 && !decl.IsRepeatable {
			return nil, fail(errors.New("directive is not repeatable"))
		}
		args, err := directiveArgs(u.dir, decl)
		if err != nil {
			return nil, fail(err)
		}
		if decl.loose {
			a.declareObserved(decl, u.dir)
		}

		wired, err := b.Wiring.WireField(directive.FieldDefinition{
			ParentType: parent.Name,
			Name:       fd.Name,
			NamedType:  f.Type.GetNamedType(),
			NonNull:    f.Type.IsNonNull(),
			List:       f.Type.IsList(),
			Args:       args,
			Position:   u.dir.Position,
		}, next)
		if err != nil {
			return nil, fail(err)
		}
		if wired == nil {
			return nil, fail(errors.New("wiring returned no resolver"))
		}
		next = wired
		a.used.Add(u.dir.Name)
		eventbus.Publish(a.ctx, events.DirectiveResolved{Name: u.dir.Name, Type: parent.Name, Field: fd.Name})
	}
	f.resolve = next
	return f, nil
}

// rejectCustom checks directive usages on elements that carry no resolver.
// Unknown names fail like anywhere else; registered ones cannot be wired here.
func (a *assembler) rejectCustom(dirs language.DirectiveList, typeName, fieldName string) error {
	for _, dir := range dirs {
		if isBuiltinDirective(dir.Name) {
			continue
		}
		var err error = fmt.Errorf("%w: only fields and object types can be wired", ErrMisplacedDirective)
		if _, rerr := a.reg.Resolve(dir.Name); rerr != nil {
			err = rerr
		}
		eventbus.Publish(a.ctx, events.DirectiveResolved{Name: dir.Name, Type: typeName, Field: fieldName, Err: err})
		return &AssemblyError{Directive: dir.Name, Type: typeName, Field: fieldName, Position: dir.Position, Err: err}
	}
	return nil
}

func (a *assembler) resolveTypeDirectives(def *language.Definition, location string) error {
	for _, dir := range def.Directives {
		if isBuiltinDirective(dir.Name) {
			continue
		}
		_, err := a.reg.Resolve(dir.Name)
		decl := a.schema.Directives[dir.Name]
		if err == nil && !decl.AllowedOn(location) {
			err = fmt.Errorf("%w: %s", ErrMisplacedDirective, location)
		}
		eventbus.Publish(a.ctx, events.DirectiveResolved{Name: dir.Name, Type: def.Name, Err: err})
		if err != nil {
			return &AssemblyError{Directive: dir.Name, Type: def.Name, Position: dir.Position, Err: err}
		}
		if decl.loose {
			a.declareObserved(decl, dir)
		}
		a.used.Add(dir.Name)
	}
	return nil
}

// declareObserved adds the arguments of a usage to a directive that has no
// declaration of its own, so the rendered schema declares what it applies.
// Arguments whose type cannot be told from the value are left out.
func (a *assembler) declareObserved(decl *Directive, dir *language.Directive) {
	for _, arg := range dir.Arguments {
		if decl.argument(arg.Name) != nil {
			continue
		}
		if ref := a.inferType(arg.Value); ref != nil {
			decl.Arguments = append(decl.Arguments, &InputValue{Name: arg.Name, Type: ref})
		}
	}
}

func (a *assembler) inferType(v *language.Value) *TypeRef {
	switch v.Kind {
	case language.IntValue:
		return NamedType("Int")
	case language.FloatValue:
		return NamedType("Float")
	case language.StringValue, language.BlockValue:
		return NamedType("String")
	case language.BooleanValue:
		return NamedType("Boolean")
	case language.EnumValue:
		for _, def := range a.defs {
			if def.Kind == language.Enum && def.EnumValues.ForName(v.Raw) != nil {
				return NamedType(def.Name)
			}
		}
	case language.ListValue:
		for _, c := range v.Children {
			if ref := a.inferType(c.Value); ref != nil {
				return ListType(ref)
			}
		}
	}
	return nil
}

func (a *assembler) linkPossibleTypes() {
	for _, def := range a.defs {
		if def.Kind != language.Object {
			continue
		}
		for _, name := range def.Interfaces {
			if iface := a.schema.Types[name]; iface != nil && iface.Kind == TypeKindInterface {
				iface.PossibleTypes = append(iface.PossibleTypes, def.Name)
			}
		}
	}
	for _, t := range a.schema.Types {
		if t.Kind == TypeKindInterface {
			sort.Strings(t.PossibleTypes)
		}
	}
}

func (a *assembler) setRootTypes() error {
	s := a.schema
	for _, sd := range append(slices.Clone(a.doc.Schema), a.doc.SchemaExtension...) {
		if err := a.rejectCustom(sd.Directives, "schema", ""); err != nil {
			return err
		}
		for _, op := range sd.OperationTypes {
			switch op.Operation {
			case language.Query:
				s.QueryType = op.Type
			case language.Mutation:
				s.MutationType = op.Type
			case language.Subscription:
				s.SubscriptionType = op.Type
			}
		}
		if sd.Description != "" {
			s.Description = sd.Description
		}
	}
	if s.QueryType == "" && s.Types["Query"] != nil {
		s.QueryType = "Query"
	}
	if s.MutationType == "" && s.Types["Mutation"] != nil {
		s.MutationType = "Mutation"
	}
	if s.SubscriptionType == "" && s.Types["Subscription"] != nil {
		s.SubscriptionType = "Subscription"
	}

	if s.QueryType == "" {
		return errors.New("schema has no query type")
	}
	for _, root := range []struct {
		name string
		typ  *Type
	}{
		{s.QueryType, s.GetQueryType()},
		{s.MutationType, s.GetMutationType()},
		{s.SubscriptionType, s.GetSubscriptionType()},
	} {
		if root.name == "" {
			continue
		}
		if root.typ == nil || root.typ.Kind != TypeKindObject {
			return fmt.Errorf("root type %s must be a defined object type", root.name)
		}
	}
	return nil
}

func isBuiltinType(name string) bool {
	for _, t := range builtinTypes {
		if t.Name == name {
			return true
		}
	}
	return false
}
