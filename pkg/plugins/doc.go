// Package plugins discovers plugin packages, loads each one into its own
// loading boundary and drives the plugin lifecycle.
//
// # Packages
//
// A plugin package is a tar archive, optionally gzip-compressed, named with the
// registry extension (".plugin" by default):
//
//	plugin.yaml          manifest: id, name, version, api_version, main, ...
//	types/<name>.yaml    unit definitions: extends, properties
//
// # Boundaries
//
// Every unit owns a Boundary. Types defined by the package live in the boundary's
// private namespace; names it does not define are resolved through the parent
// namespace, normally the host's HostNamespace. Two packages may define the same
// type name without seeing each other's definition.
//
// The manifest's main type must reach a host type through its extends chain. The
// host type's Factory builds the Entrypoint with the properties merged along the chain.
//
// # Lifecycle
//
//	constructed --Init--> initialized --OnInitialization--> active --OnUninstall--> uninstalled
//
// Calls out of order fail with ErrInvalidLifecycleTransition. Failures and panics
// raised by plugin code fail with ErrLifecycleInvocation and leave the state unchanged.
//
// # Registry
//
//	host := plugins.NewHostNamespace()
//	builtin.Register(host, logger)
//
//	registry := plugins.NewRegistry("./plugins", host, plugins.WithLogger(logger))
//	if err := registry.Bootstrap(ctx); err != nil {
//		logger.WithError(err).Warn("some plugins failed to initialize")
//	}
//	err := registry.ActivateAll(ctx)
//
// Registration is first-wins: a second unit with a taken ID is rejected with
// ErrDuplicateIdentifier. Fan-out operations visit units in registration order
// and never stop at a failing unit; the failures are joined in the returned error.
package plugins
