// Package pkg provides the core libraries of fsm, the federated software
// package manager.
//
// # Overview
//
// fsm merges package metadata from independent repositories into one
// dependency graph, resolves requested operations into ordered plans, and
// applies those plans transactionally. The pkg directory is organized along
// that flow:
//
//	Repository manifests (local or HTTP)
//	         ↓
//	    [pkgrepo] package (concurrent indexing, provenance checks)
//	         ↓
//	    [graph] package (symbols, typed edges, topological order)
//	         ↓
//	    [resolver] package (closure expansion, conflicts, plans)
//	         ↓
//	    [transaction] package (apply with undo tokens and rollback)
//	         ↓
//	    [state] package (persisted installed set)
//
// # Main Packages
//
// [pkg] - Canonical identities, versions, constraints and operations. A
// package is addressed as format:name@repo; version comparison follows the
// epoch:upstream-release convention of rpm and dpkg.
//
// [pkgrepo] - Repository sources (local YAML manifests, remote HTTP
// mirrors, cached wrappers) and the index run that merges them into a graph
// snapshot, degrading unreachable sources instead of failing.
//
// [graph] - The federated dependency graph. Names and virtual capabilities
// are one symbol namespace resolved through a provider table; edges are
// typed (depends, conflicts, provides).
//
// [resolver] - Turns requests into ordered, conflict-free plans. No
// backtracking: unsatisfiable or conflicting requests fail fast naming the
// packages implicated.
//
// [transaction] - Applies plans step by step, collecting undo tokens, and
// rolls back in strict reverse order when a step fails.
//
// [backend] - Appliers that execute operations per package format, either
// in memory or by shelling out to native tooling.
//
// # Infrastructure
//
// [cache] - Listing caches (file, Redis, none) behind one interface.
//
// [state] - The installed set, persisted in SQLite.
//
// [journal] - Transaction event history (MongoDB or no-op).
//
// [config] - TOML configuration for repositories, cache, state, journal and
// backends.
//
// [errors] - Structured errors with machine-readable codes; every failure
// names the packages it implicates.
//
// [httputil] - Retry with backoff for remote repository clients.
//
// [pkg]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/pkg
// [pkgrepo]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/pkgrepo
// [graph]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/graph
// [resolver]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/resolver
// [transaction]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/transaction
// [backend]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/backend
// [cache]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/cache
// [state]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/state
// [journal]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/journal
// [config]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/config
// [errors]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/errors
// [httputil]: https://pkg.go.dev/github.com/fsmtools/fsm/pkg/httputil
package pkg
