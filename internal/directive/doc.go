// Package directive holds the named-directive registry used during schema
// assembly.
//
// A Registry maps directive names (as written after '@' in a schema document)
// to Bindings. Each Binding carries a Wiring, the behavior that rewrites or
// wraps a field's runtime Resolver given the field's static definition.
//
// Lifecycle
//
// A Registry starts in the Building state where Register is permitted. Seal
// moves it to Sealed exactly once; from then on Register fails with
// *RegistryClosedError and the contents are immutable. Resolve and All are
// permitted in both states and are safe for concurrent use once sealed.
// Reloading a schema means constructing a new Registry; a sealed registry is
// never reopened.
//
// Resolution
//
// Resolve is a direct key lookup. There is no precedence, no inheritance
// between directives and no partial matching, so registration order never
// changes a resolution outcome. A name that was never registered fails with
// *UnknownDirectiveError; there are no implicit directives.
package directive
