// Package directives holds the directive wirings the card service ships with
// and builds registry bindings for the ones enabled by configuration.
package directives

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	config "github.com/hanpama/cardgraph/internal/config"
	directive "github.com/hanpama/cardgraph/internal/directive"
)

const (
	Upper = "upper"
	Lower = "lower"
	Mask  = "mask"
	Auth  = "auth"
)

// Known lists every built-in directive name.
var Known = []string{Auth, Lower, Mask, Upper}

// FromConfig constructs a binding per entry of cfg.Enabled, in order. Names
// are not deduplicated here; a repeated name is rejected by the registry.
func FromConfig(cfg config.Directives) ([]directive.Binding, error) {
	unknown := mapset.NewThreadUnsafeSet(cfg.Enabled...).Difference(mapset.NewThreadUnsafeSet(Known...)).ToSlice()
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("unknown built-in directives %v (known: %v)", unknown, Known)
	}

	bindings := make([]directive.Binding, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		var w directive.Wiring
		switch name {
		case Upper:
			w = NewUpper()
		case Lower:
			w = NewLower()
		case Mask:
			w = NewMask(cfg.Mask.Keep, cfg.Mask.With)
		case Auth:
			w = NewAuth()
		}
		bindings = append(bindings, directive.Binding{Name: name, Wiring: w})
	}
	return bindings, nil
}

// Register adds bindings to reg in order and stops at the first failure.
func Register(reg *directive.Registry, bindings ...directive.Binding) error {
	for _, b := range bindings {
		if err := reg.Register(b); err != nil {
			return fmt.Errorf("register @%s: %w", b.Name, err)
		}
	}
	return nil
}

func requireStringField(name string, def directive.FieldDefinition) error {
	switch def.NamedType {
	case "String", "ID":
		return nil
	}
	return fmt.Errorf("@%s applies to String or ID fields, %s.%s returns %s", name, def.ParentType, def.Name, def.NamedType)
}

// mapStrings applies fn to a string result or to every string of a list
// result. Other values pass through unchanged.
func mapStrings(v any, fn func(string) string) any {
	switch v := v.(type) {
	case string:
		return fn(v)
	case *string:
		if v == nil {
			return v
		}
		s := fn(*v)
		return &s
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = fn(s)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = mapStrings(e, fn)
		}
		return out
	}
	return v
}
