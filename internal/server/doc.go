// Package server hosts the Fiber diagnostics service for configured cache
// stores: the request middleware chain, the store registry built from config,
// and the app constructor that cmd wiring and tests reuse. All routes live
// under the /-/ prefix; anything else answers 404. Keep exports narrow and
// accept explicit dependencies.
package server
