// Package api define types and interfaces shared by the collector,
// its allocators and the collaborators supplied by a runtime: type
// layout queries and root enumeration.
package api

// Addr is an address inside a malloc.Space. Objects are referred to
// by the address just past their header word.
type Addr uint64

// NULL address, never mapped.
const NULL = Addr(0)

// Typeid identifies an object's type, stored in the low half of the
// header word.
type Typeid uint16

// Slotcallback is called once per reference slot. The slot itself is an
// address, collector may load and overwrite the reference stored there.
type Slotcallback func(slot Addr)

// Finalizer is called with the address of a dead object.
type Finalizer func(obj Addr)

// TypeLayout answers static questions about types. All methods are
// pure and are called from inside the collector, they shall never
// allocate from the collector.
type TypeLayout interface {
	// Fixedsize return the size of the fixed part of objects of this
	// type, excluding header.
	Fixedsize(typeid Typeid) int64

	// Isvarsize return true if objects of this type carry a
	// variable-length part.
	Isvarsize(typeid Typeid) bool

	// Varsize return the size of an item in the variable part, the
	// offset of the length field and offset of the first item.
	Varsize(typeid Typeid) (itemsize, lengthofs, itemsofs int64)

	// Ptroffsets return offsets, in the fixed part, holding references.
	Ptroffsets(typeid Typeid) []int64

	// Varptroffsets return offsets, relative to each item, holding
	// references.
	Varptroffsets(typeid Typeid) []int64

	// Haspointers return true if the type has any reference, in
	// the fixed part or in its items.
	Haspointers(typeid Typeid) bool

	// Hasvarpointers return true if items hold references.
	Hasvarpointers(typeid Typeid) bool

	// Weakptroffset return offset of weak reference field, -1 if type
	// is not a weakref.
	Weakptroffset(typeid Typeid) int64

	// Lightfinalizer return finalizer that shall not resurrect the
	// object nor allocate, nil if none.
	Lightfinalizer(typeid Typeid) Finalizer

	// Finalizer return an ordered finalizer, nil if none.
	Finalizer(typeid Typeid) Finalizer
}

// RootWalker enumerate roots held by the mutator.
type RootWalker interface {
	// Walkroots call `callback` for every live root slot.
	Walkroots(callback Slotcallback)
}
