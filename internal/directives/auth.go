package directives

import (
	"context"
	"errors"
	"fmt"
	"slices"

	directive "github.com/hanpama/cardgraph/internal/directive"
)

// ErrForbidden is returned by fields guarded with @auth when the caller lacks
// the required role.
var ErrForbidden = errors.New("forbidden")

type rolesKey struct{}

// WithRoles attaches the caller's roles to ctx.
func WithRoles(ctx context.Context, roles ...string) context.Context {
	return context.WithValue(ctx, rolesKey{}, slices.Clone(roles))
}

// RolesFrom returns the roles attached by WithRoles.
func RolesFrom(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey{}).([]string)
	return roles
}

type authWiring struct{}

// NewAuth returns the wiring of @auth(requires:). The guarded resolver only
// runs when the context carries the required role.
func NewAuth() directive.Wiring { return authWiring{} }

func (authWiring) Declaration() string {
	return "directive @auth(requires: String!) on FIELD_DEFINITION | OBJECT"
}

func (authWiring) WireField(def directive.FieldDefinition, next directive.Resolver) (directive.Resolver, error) {
	role, _ := def.Args["requires"].(string)
	if role == "" {
		return nil, fmt.Errorf("@auth requires a non-empty role")
	}
	field := def.ParentType + "." + def.Name
	return func(ctx context.Context, p directive.ResolveParams) (any, error) {
		if !slices.Contains(RolesFrom(ctx), role) {
			return nil, fmt.Errorf("%w: %s requires role %q", ErrForbidden, field, role)
		}
		return next(ctx, p)
	}, nil
}
