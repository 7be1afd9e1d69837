package directives

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	directive "github.com/hanpama/cardgraph/internal/directive"
)

type caseWiring struct {
	name string
	fn   func(string) string
}

// NewUpper returns the wiring of @upper, which upper-cases string results.
func NewUpper() directive.Wiring { return &caseWiring{name: Upper, fn: strings.ToUpper} }

// NewLower returns the wiring of @lower, which lower-cases string results.
func NewLower() directive.Wiring { return &caseWiring{name: Lower, fn: strings.ToLower} }

func (w *caseWiring) Declaration() string {
	return fmt.Sprintf("directive @%s on FIELD_DEFINITION | OBJECT", w.name)
}

func (w *caseWiring) WireField(def directive.FieldDefinition, next directive.Resolver) (directive.Resolver, error) {
	if err := requireStringField(w.name, def); err != nil {
		return nil, err
	}
	return func(ctx context.Context, p directive.ResolveParams) (any, error) {
		v, err := next(ctx, p)
		if err != nil {
			return nil, err
		}
		return mapStrings(v, w.fn), nil
	}, nil
}

type maskWiring struct {
	keep int
	with string
}

// NewMask returns the wiring of @mask. keep and with are the declared
// defaults of its arguments; a usage can override both.
func NewMask(keep int, with string) directive.Wiring {
	if with == "" {
		with = "*"
	}
	return &maskWiring{keep: max(keep, 0), with: with}
}

func (w *maskWiring) Declaration() string {
	return fmt.Sprintf("directive @mask(keep: Int = %d, with: String = %q) on FIELD_DEFINITION", w.keep, w.with)
}

func (w *maskWiring) WireField(def directive.FieldDefinition, next directive.Resolver) (directive.Resolver, error) {
	if err := requireStringField(Mask, def); err != nil {
		return nil, err
	}
	keep := w.keep
	if v, ok := def.Args["keep"]; ok && v != nil {
		n, ok := v.(int64)
		if !ok || n < 0 {
			return nil, fmt.Errorf("@mask keep must be a non-negative Int, got %v", v)
		}
		keep = int(n)
	}
	with := w.with
	if v, ok := def.Args["with"]; ok && v != nil {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("@mask with must be a non-empty String, got %v", v)
		}
		with = s
	}

	mask := func(s string) string { return maskString(s, keep, with) }
	return func(ctx context.Context, p directive.ResolveParams) (any, error) {
		v, err := next(ctx, p)
		if err != nil {
			return nil, err
		}
		return mapStrings(v, mask), nil
	}, nil
}

// maskString replaces every rune but the last keep with the mask string.
func maskString(s string, keep int, with string) string {
	n := utf8.RuneCountInString(s)
	if n <= keep {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + (n-keep)*(len(with)-1))
	i := 0
	for _, r := range s {
		if i < n-keep {
			b.WriteString(with)
		} else {
			b.WriteRune(r)
		}
		i++
	}
	return b.String()
}
