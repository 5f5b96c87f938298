// Package api provides the admin HTTP API of the brace plugin host.
//
// The API is built on gorilla/mux and exposes the registry of the running host:
//
//	GET  /api/v1/plugins                       registered plugins, registration order
//	GET  /api/v1/plugins/{id}                  one plugin
//	POST /api/v1/plugins/{id}/init             Init
//	POST /api/v1/plugins/{id}/activate         OnInitialization
//	POST /api/v1/plugins/{id}/uninstall        OnUninstall (removes the plugin on success)
//	POST /api/v1/plugins/scan[?register=false] scan the plugins directory
//	GET  /api/v1/candidates                    offline inspection of every candidate package
//	GET  /api/v1/events                        lifecycle journal (?plugin= &phase= &failed= &since= &limit=)
//	GET  /health/live, /health/ready
//	GET  /metrics
//
// Lifecycle errors map to status codes: an unknown plugin ID is 404, a call
// made from the wrong state is 409 and a failure inside the plugin is 500.
//
//	server := api.NewServer(registry,
//		api.WithInspector(inspector),
//		api.WithJournal(journal),
//		api.WithHealth(health),
//	)
//	http.ListenAndServe(":8081", server.Handler())
package api
