package api

import "errors"

// ErrorOutofMemory allocation cannot be satisfied, either the
// underlying memory is exhausted or heap has grown past its ceiling.
// Mutator can recover from this error.
var ErrorOutofMemory = errors.New("incmark.outofmemory")

// ErrorInvalidTypeid type is not known to layout.
var ErrorInvalidTypeid = errors.New("incmark.invalidtypeid")

// ErrorNotInNursery operation is applicable only on young objects.
var ErrorNotInNursery = errors.New("incmark.notinnursery")

// ErrorUnmapped address does not belong to any mapped region.
var ErrorUnmapped = errors.New("incmark.unmapped")

// WORD size of a machine word, in bytes.
const WORD = int64(8)
