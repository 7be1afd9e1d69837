package directive

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateDirective matches any *DuplicateDirectiveError via errors.Is.
	ErrDuplicateDirective = errors.New("duplicate directive")
	// ErrUnknownDirective matches any *UnknownDirectiveError via errors.Is.
	ErrUnknownDirective = errors.New("unknown directive")
	// ErrRegistryClosed matches any *RegistryClosedError via errors.Is.
	ErrRegistryClosed = errors.New("directive registry is sealed")
	// ErrInvalidBinding is returned for bindings with an invalid name or no wiring.
	ErrInvalidBinding = errors.New("invalid directive binding")
)

// DuplicateDirectiveError reports a registration whose name is already bound.
type DuplicateDirectiveError struct {
	Name string
}

func (e *DuplicateDirectiveError) Error() string {
	return fmt.Sprintf("directive @%s is already registered", e.Name)
}

func (e *DuplicateDirectiveError) Is(target error) bool { return target == ErrDuplicateDirective }

// UnknownDirectiveError reports a reference to a directive that was never registered.
type UnknownDirectiveError struct {
	Name string
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("directive @%s is not registered", e.Name)
}

func (e *UnknownDirectiveError) Is(target error) bool { return target == ErrUnknownDirective }

// RegistryClosedError reports a registration attempted after Seal.
type RegistryClosedError struct {
	Name string
}

func (e *RegistryClosedError) Error() string {
	return fmt.Sprintf("cannot register directive @%s: registry is sealed", e.Name)
}

func (e *RegistryClosedError) Is(target error) bool { return target == ErrRegistryClosed }
