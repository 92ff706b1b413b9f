package api

// Mallocer interface implemented by old generation allocators. Memory
// returned is zero filled and always word aligned.
type Mallocer interface {
	// Malloc allocate a chunk of `n` bytes.
	Malloc(n int64) (Addr, error)

	// Release all memory held by the allocator.
	Release()

	// Info of memory accounting for this allocator.
	Info() (capacity, heap, alloc, overhead int64)

	// Utilization map of slab-size and its utilization
	Utilization() ([]int, []float64)
}
