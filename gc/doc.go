// Package gc implement an incremental generational garbage collector.
//
// Objects are allocated in a nursery by bumping a pointer. When the
// nursery is full, a minor collection copies the live young objects,
// found from the roots and the remembered set, to the old generation
// and the nursery is reused. Old objects never move.
//
// The old generation is collected by an incremental mark and sweep.
// Each major step runs right after a minor collection, so that marking
// never sees a young object, and progresses through the states:
//
//	SCANNING -> MARKING -> SWEEPING -> FINALIZING -> SCANNING
//
// While marking, old objects modified by the mutator are greyed again
// by the write barrier, see Writebarrier. Large arrays of references
// are tracked by card marking rather than as a whole.
//
// Nursery objects may be pinned, in which case minor collections leave
// them in place and allocation flows around them. Taking the id or
// identity hash of a nursery object reserves old space for it ahead of
// time, so that the id survives the object's promotion.
//
// GC is not thread safe. Mutator and collector share a single thread,
// finalizers run on that thread too and may allocate.
package gc
