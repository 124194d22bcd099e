// Package metadata provides the registry that holds declarative REST client
// annotations.
//
// # Overview
//
// Client types are declared once at startup through the builders in
// pkg/rest. Every builder records its annotation in a Store under a
// (Site, Category) pair:
//
//   - ScopeClass sites hold class-wide annotations (base URL, headers,
//     query parameters, error handler).
//   - ScopeProperty sites hold values bound to fields of the client type.
//   - ScopeMember sites hold everything declared on a single method: its HTTP
//     verb and path template, parameter bindings, response type and cache
//     policy.
//
// Values accumulate in definition order. The only overwrite primitives are
// Replace, for single-valued categories such as the error handler, and the
// boolean cache invalidation flag managed with SetFlag and TakeFlag.
//
// # Example Usage
//
//	store := metadata.NewStore()
//	site := metadata.MemberSite("UserAPI", "GetUser")
//	store.Define(metadata.CategoryPath, site, "id")
//	values := store.Read(metadata.CategoryPath, site)
//
// The process-wide Default store is used unless a client type is declared
// against its own store.
package metadata
