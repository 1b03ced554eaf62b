// Package chunkgrid provides a dynamic task-graph scheduler with explicit
// data placement and movement.
//
// Work is expressed as tasks spawned eagerly against a single controller;
// dependencies are derived from tagged arguments (task refs, data chunks,
// shards) and from declared mutations, which chain writers so that each
// chunk generation has exactly one consumer. The controller places every
// task according to its scope and the residence of its mutable inputs,
// moving read-only data on demand.
//
// End-users typically interact through the high-level Service façade and
// its Runtime:
//
//	srv, _ := chunkgrid.New()
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	h, _ := rt.Spawn(ctx, add, []interface{}{1, 2})
//	out, _ := h.Fetch(ctx)
//
// For distributed dense arrays see the darray sub-package.
package chunkgrid
