package plugins

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryUnavailable is returned when the plugins directory is missing and cannot be created
	ErrDirectoryUnavailable = errors.New("plugins directory unavailable")

	// ErrMalformedUnit is returned when package bytes cannot be loaded into a loading boundary
	ErrMalformedUnit = errors.New("malformed unit")

	// ErrDuplicateDefinition is returned when a type name is defined twice in one boundary
	ErrDuplicateDefinition = errors.New("duplicate definition")

	// ErrUnresolvedName is returned when neither a boundary nor its parent can resolve a type name
	ErrUnresolvedName = errors.New("unresolved name")

	// ErrManifestMissing is returned when a package has no usable manifest
	ErrManifestMissing = errors.New("manifest missing")

	// ErrInvalidManifest is returned when a manifest fails validation or targets an incompatible host API
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrEntryPointMissing is returned when the manifest names no valid entry type
	ErrEntryPointMissing = errors.New("entry point missing")

	// ErrDuplicateIdentifier is returned when a plugin ID is already registered
	ErrDuplicateIdentifier = errors.New("duplicate plugin identifier")

	// ErrUnknownPluginID is returned when a lifecycle call names an unregistered plugin
	ErrUnknownPluginID = errors.New("unknown plugin id")

	// ErrLifecycleInvocation is returned when a plugin's own lifecycle logic fails
	ErrLifecycleInvocation = errors.New("lifecycle invocation failed")

	// ErrPackageUninstalled is returned when a package whose unit was uninstalled is loaded again
	ErrPackageUninstalled = errors.New("package was uninstalled")

	// ErrInvalidLifecycleTransition is returned when a lifecycle call does not match the unit's state
	ErrInvalidLifecycleTransition = errors.New("invalid lifecycle transition")
)

// LifecycleError wraps a failure raised by a plugin's entry point.
type LifecycleError struct {
	ID    string
	Phase Phase
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("plugin %s: %s failed: %v", e.ID, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() []error {
	return []error{ErrLifecycleInvocation, e.Err}
}

// TransitionError reports a lifecycle call made from the wrong state or
// while another call on the same unit is still running.
type TransitionError struct {
	ID      string
	Phase   Phase
	From    State
	Running Phase
}

func (e *TransitionError) Error() string {
	if e.Running != "" {
		return fmt.Sprintf("plugin %s: cannot %s while %s is running", e.ID, e.Phase, e.Running)
	}
	return fmt.Sprintf("plugin %s: cannot %s from state %s", e.ID, e.Phase, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidLifecycleTransition
}

// DefinitionError carries the type name a boundary failed on.
type DefinitionError struct {
	Name string
	Kind error
	Err  error
}

func (e *DefinitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Name, e.Err)
}

func (e *DefinitionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unknownID(id string) error {
	return fmt.Errorf("%w: %s", ErrUnknownPluginID, id)
}
