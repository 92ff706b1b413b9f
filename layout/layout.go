// Package layout supplies a type registry implementing api.TypeLayout,
// for runtimes, tools and tests that describe their object types at
// startup.
package layout

import "fmt"

import "github.com/bnclabs/incmark/api"

// Typeinfo describes a type. Offsets are relative to object's address,
// which is the address just past its header. For var-sized types the
// length is a signed word at Lengthofs, inside the fixed part, and
// items start at Itemsofs, right after the fixed part.
type Typeinfo struct {
	Name      string
	Fixedsize int64
	Ptrofs    []int64

	// var-sized part
	Varsize    bool
	Itemsize   int64
	Lengthofs  int64
	Itemsofs   int64
	Itemptrofs []int64

	// weak reference field, -1 if none
	Weakptrofs int64

	Lightfinalizer api.Finalizer
	Finalizer      api.Finalizer
}

// Registry of types, typeids are handed out in registration order
// starting from 1.
type Registry struct {
	types []*Typeinfo
}

// NewRegistry return an empty registry.
func NewRegistry() *Registry {
	// typeid 0 is never valid
	return &Registry{types: []*Typeinfo{nil}}
}

// Register a new type and return its typeid.
func (reg *Registry) Register(info Typeinfo) api.Typeid {
	if err := validate(&info); err != nil {
		panic(err)
	} else if len(reg.types) > 0xffff {
		panic(fmt.Errorf("too many types"))
	}
	reg.types = append(reg.types, &info)
	return api.Typeid(len(reg.types) - 1)
}

// Struct register a fixed size type with `nptrs` leading reference
// fields followed by `nwords` non-reference words.
func (reg *Registry) Struct(name string, nptrs, nwords int64) api.Typeid {
	info := Typeinfo{
		Name:       name,
		Fixedsize:  (nptrs + nwords) * api.WORD,
		Weakptrofs: -1,
	}
	for i := int64(0); i < nptrs; i++ {
		info.Ptrofs = append(info.Ptrofs, i*api.WORD)
	}
	return reg.Register(info)
}

// Array register a var-sized type with a length word followed by
// items of `itemsize` bytes, if `ptritems` is true items are single
// references.
func (reg *Registry) Array(name string, itemsize int64, ptritems bool) api.Typeid {
	info := Typeinfo{
		Name:       name,
		Fixedsize:  api.WORD,
		Varsize:    true,
		Itemsize:   itemsize,
		Lengthofs:  0,
		Itemsofs:   api.WORD,
		Weakptrofs: -1,
	}
	if ptritems {
		info.Itemsize, info.Itemptrofs = api.WORD, []int64{0}
	}
	return reg.Register(info)
}

// Weakref register a type holding a single weak reference.
func (reg *Registry) Weakref(name string) api.Typeid {
	return reg.Register(Typeinfo{
		Name: name, Fixedsize: api.WORD, Weakptrofs: 0,
	})
}

// Info return the registered description of typeid.
func (reg *Registry) Info(typeid api.Typeid) *Typeinfo {
	if int(typeid) <= 0 || int(typeid) >= len(reg.types) {
		panic(fmt.Errorf("%v: %v", api.ErrorInvalidTypeid, typeid))
	}
	return reg.types[typeid]
}

// Valid return true if typeid is registered.
func (reg *Registry) Valid(typeid api.Typeid) bool {
	return int(typeid) > 0 && int(typeid) < len(reg.types)
}

// Fixedsize implement api.TypeLayout{} interface.
func (reg *Registry) Fixedsize(typeid api.Typeid) int64 {
	return reg.Info(typeid).Fixedsize
}

// Isvarsize implement api.TypeLayout{} interface.
func (reg *Registry) Isvarsize(typeid api.Typeid) bool {
	return reg.Info(typeid).Varsize
}

// Varsize implement api.TypeLayout{} interface.
func (reg *Registry) Varsize(typeid api.Typeid) (itemsize, lengthofs, itemsofs int64) {
	info := reg.Info(typeid)
	return info.Itemsize, info.Lengthofs, info.Itemsofs
}

// Ptroffsets implement api.TypeLayout{} interface.
func (reg *Registry) Ptroffsets(typeid api.Typeid) []int64 {
	return reg.Info(typeid).Ptrofs
}

// Varptroffsets implement api.TypeLayout{} interface.
func (reg *Registry) Varptroffsets(typeid api.Typeid) []int64 {
	return reg.Info(typeid).Itemptrofs
}

// Haspointers implement api.TypeLayout{} interface.
func (reg *Registry) Haspointers(typeid api.Typeid) bool {
	info := reg.Info(typeid)
	return len(info.Ptrofs) > 0 || len(info.Itemptrofs) > 0
}

// Hasvarpointers implement api.TypeLayout{} interface.
func (reg *Registry) Hasvarpointers(typeid api.Typeid) bool {
	return len(reg.Info(typeid).Itemptrofs) > 0
}

// Weakptroffset implement api.TypeLayout{} interface.
func (reg *Registry) Weakptroffset(typeid api.Typeid) int64 {
	return reg.Info(typeid).Weakptrofs
}

// Lightfinalizer implement api.TypeLayout{} interface.
func (reg *Registry) Lightfinalizer(typeid api.Typeid) api.Finalizer {
	return reg.Info(typeid).Lightfinalizer
}

// Finalizer implement api.TypeLayout{} interface.
func (reg *Registry) Finalizer(typeid api.Typeid) api.Finalizer {
	return reg.Info(typeid).Finalizer
}

func validate(info *Typeinfo) error {
	aligned := func(ofs int64) bool { return ofs >= 0 && ofs%api.WORD == 0 }
	if info.Fixedsize < 0 {
		return fmt.Errorf("type %q: negative fixedsize", info.Name)
	}
	for _, ofs := range info.Ptrofs {
		if !aligned(ofs) || ofs+api.WORD > info.Fixedsize {
			return fmt.Errorf("type %q: bad reference offset %v", info.Name, ofs)
		}
	}
	if info.Weakptrofs >= 0 {
		if !aligned(info.Weakptrofs) || info.Weakptrofs+api.WORD > info.Fixedsize {
			fmsg := "type %q: bad weak reference offset %v"
			return fmt.Errorf(fmsg, info.Name, info.Weakptrofs)
		} else if info.Varsize {
			return fmt.Errorf("type %q: var-sized weakref", info.Name)
		}
	}
	if info.Varsize {
		if info.Itemsize <= 0 {
			return fmt.Errorf("type %q: itemsize %v", info.Name, info.Itemsize)
		} else if !aligned(info.Lengthofs) || info.Lengthofs+api.WORD > info.Fixedsize {
			return fmt.Errorf("type %q: bad length offset", info.Name)
		} else if info.Itemsofs != info.Fixedsize {
			return fmt.Errorf("type %q: items shall follow fixed part", info.Name)
		}
		for _, ofs := range info.Itemptrofs {
			if !aligned(ofs) || ofs+api.WORD > info.Itemsize {
				fmsg := "type %q: bad item reference offset %v"
				return fmt.Errorf(fmsg, info.Name, ofs)
			}
		}
	} else if len(info.Itemptrofs) > 0 {
		return fmt.Errorf("type %q: item references on fixed type", info.Name)
	}
	return nil
}
