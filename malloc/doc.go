// Package malloc supplies memory management for the collector's old
// generation, with a limited scope:
//
//  * Types and Functions exported by this package are not thread safe.
//  * Memory is obtained from a Space, a simulated flat address space
//    that maps and unmaps regions like anonymous OS memory. Freshly
//    mapped memory is zero filled, unmapped addresses are never reused.
//  * ArenaCollection serves small chunks from pages, each page holding
//    chunks of one size class. Pages are grouped into arenas, arenas
//    are mapped on demand and given back once all their pages are free.
//  * Chunks are not freed individually, instead the collection is
//    swept, possibly incrementally, with a callback deciding which
//    chunks survive.
//  * Rawmalloc serves large requests, one region per allocation,
//    optionally with card bytes prepended.
//  * Memory handed out by this package is always 64-bit aligned.
package malloc
