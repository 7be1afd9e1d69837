package events

import "time"

// DirectiveRegistered is emitted after a binding is added to a registry.
type DirectiveRegistered struct {
	Name string
}

// RegistrySealed is emitted once when a registry leaves the Building state.
type RegistrySealed struct {
	Directives int
}

// DirectiveResolved is emitted for every directive usage looked up during
// schema assembly. Err is non-nil when resolution or wiring failed.
type DirectiveResolved struct {
	Name  string
	Type  string
	Field string
	Err   error
}

// SchemaAssemblyStart is emitted before a schema document is assembled.
type SchemaAssemblyStart struct {
	Types int
}

// SchemaAssemblyFinish is emitted after assembly, successful or not.
type SchemaAssemblyFinish struct {
	Types int
	// Unused lists registered directives that no schema element references.
	Unused   []string
	Err      error
	Duration time.Duration
}
