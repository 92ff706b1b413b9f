// Package incmark implement an incremental, generational garbage
// collector over a simulated address space, along with the allocators
// and tools it is built from.
//
// api:
//
// Types and interfaces shared by the collector, its allocators and the
// collaborators supplied by a runtime, type layout and root walker.
//
// gc:
//
// The collector. Young objects are bump allocated in a nursery and
// evacuated by minor collections, old objects never move and are
// reclaimed by an incremental mark and sweep interleaved with minor
// collections. Supports pinning, identity hashes, weak references,
// light and ordered finalizers, and card marking for large arrays.
//
// layout:
//
// A registry of object types implementing api.TypeLayout.
//
// lib:
//
// Convinience functions and containers that can be used by other
// packages. Package shall not import packages other than golang's
// standard packages.
//
// malloc:
//
// Memory management for the old generation. Simulated address space,
// size classed arenas swept in bulk, raw allocations with card bytes.
//
// roots:
//
// A shadow stack of root slots.
package incmark
