package main

import "fmt"
import "math/rand"
import "runtime/debug"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/gc"
import "github.com/bnclabs/incmark/layout"
import "github.com/bnclabs/incmark/lib"
import "github.com/bnclabs/incmark/malloc"
import "github.com/bnclabs/incmark/roots"
import s "github.com/bnclabs/gosettings"

// mutator drives a collector through a fixed window of root slots,
// every operation names its slots by index.
type mutator struct {
	g     *gc.GC
	space *malloc.Space
	reg   *layout.Registry
	stack *roots.Shadowstack
	types map[string]api.Typeid
	names []string

	nfinalized int64
	nlight     int64
	stats      map[string]int64
}

func newmutator(nroots int64, setts s.Settings) (*mutator, error) {
	m := &mutator{
		reg:   layout.NewRegistry(),
		types: make(map[string]api.Typeid),
		stats: make(map[string]int64),
	}
	m.types["node"] = m.reg.Struct("node", 2, 1)
	m.types["leaf"] = m.reg.Struct("leaf", 0, 2)
	m.types["bytes"] = m.reg.Array("bytes", 1, false)
	m.types["ptrs"] = m.reg.Array("ptrs", 0, true)
	m.types["weak"] = m.reg.Weakref("weak")
	m.types["fin"] = m.reg.Register(layout.Typeinfo{
		Name: "fin", Fixedsize: 16, Weakptrofs: -1,
		Finalizer: func(obj api.Addr) { m.nfinalized++ },
	})
	m.types["light"] = m.reg.Register(layout.Typeinfo{
		Name: "light", Fixedsize: 16, Weakptrofs: -1,
		Lightfinalizer: func(obj api.Addr) { m.nlight++ },
	})
	for name := range m.types {
		m.names = append(m.names, name)
	}

	m.space = malloc.NewSpace(setts.Section("space").Trim("space."))
	stack, err := roots.NewShadowstack(m.space, nroots)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < nroots; i++ {
		stack.Push(api.NULL)
	}
	m.stack = stack
	if m.g, err = gc.NewGC("gcstress", m.space, m.reg, stack, setts); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *mutator) slot(n int64) int64 {
	if n < 0 {
		n = -n
	}
	return n % m.stack.Len()
}

// safeapply is apply, converting a panic into an error along with the
// stack trace.
func (m *mutator) safeapply(cmd []interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := lib.GetStacktrace(2, debug.Stack())
			err = fmt.Errorf("panic: %v\n%s", r, stack)
		}
	}()
	return m.apply(cmd)
}

// apply a single operation, cmd[0] is the operation name.
func (m *mutator) apply(cmd []interface{}) error {
	name := cmd[0].(string)
	m.stats[name]++
	arg := func(i int) int64 {
		if i < len(cmd) {
			switch v := cmd[i].(type) {
			case float64:
				return int64(v)
			case int64:
				return v
			case int:
				return int64(v)
			}
		}
		return 0
	}

	switch name {
	case "alloc":
		typename, ok := cmd[1].(string)
		if !ok {
			return fmt.Errorf("alloc: invalid type %v", cmd[1])
		}
		return m.alloc(m.slot(arg(2)), typename, arg(3))
	case "link":
		m.link(m.slot(arg(1)), m.slot(arg(2)), arg(3))
	case "unlink":
		m.link(m.slot(arg(1)), -1, arg(2))
	case "drop":
		m.stack.Set(m.slot(arg(1)), api.NULL)
	case "pin":
		m.pin(m.slot(arg(1)))
	case "unpin":
		if obj := m.stack.Get(m.slot(arg(1))); m.g.Ispinned(obj) {
			m.g.Unpin(obj)
		}
	case "weak":
		return m.weak(m.slot(arg(1)), m.slot(arg(2)))
	case "id":
		if obj := m.stack.Get(m.slot(arg(1))); obj != api.NULL {
			m.g.Identityhash(obj)
		}
	case "collect":
		return m.g.Collect(int(arg(1)))
	case "step":
		return m.g.Debuggcstep(int(arg(1)))
	case "pressure":
		m.g.Memorypressure(arg(1))
	default:
		return fmt.Errorf("unknown operation %q", name)
	}
	return nil
}

func (m *mutator) alloc(slot int64, typename string, length int64) error {
	typeid, ok := m.types[typename]
	if !ok {
		return fmt.Errorf("unknown type %q", typename)
	}
	obj, err := m.g.Malloc(typeid, length)
	if err != nil {
		return err
	}
	m.stack.Set(slot, obj)
	return nil
}

// link store the object at slot `to` into the object at slot `from`,
// field or item `n`. A negative `to` stores NULL.
func (m *mutator) link(from, to int64, n int64) {
	obj := m.stack.Get(from)
	if obj == api.NULL {
		return
	}
	value := api.NULL
	if to >= 0 {
		value = m.stack.Get(to)
	}
	if n < 0 {
		n = -n
	}
	switch m.g.Typeidof(obj) {
	case m.types["node"]:
		m.g.Setfield(obj, (n%2)*api.WORD, value)
	case m.types["ptrs"]:
		if length := m.g.Length(obj); length > 0 {
			m.g.Setitem(obj, n%length, 0, value)
		}
	}
}

func (m *mutator) pin(slot int64) {
	obj := m.stack.Get(slot)
	if obj != api.NULL && m.g.Pin(obj) {
		m.stats["pinned"]++
	}
}

// weak create a weakref at slot `at` to the object at slot `to`.
func (m *mutator) weak(at, to int64) error {
	w, err := m.g.Malloc(m.types["weak"], 0)
	if err != nil {
		return err
	}
	m.space.Setaddr(w, m.stack.Get(to))
	m.stack.Set(at, w)
	return nil
}

// randomop generate an operation for load runs.
func (m *mutator) randomop(rnd *rand.Rand) []interface{} {
	n := m.stack.Len()
	switch x := rnd.Intn(100); {
	case x < 40:
		typename := m.names[rnd.Intn(len(m.names))]
		length := int64(0)
		switch typename {
		case "bytes":
			length = rnd.Int63n(4096)
		case "ptrs":
			length = rnd.Int63n(512)
		}
		return []interface{}{"alloc", typename, rnd.Int63n(n), length}
	case x < 70:
		return []interface{}{"link", rnd.Int63n(n), rnd.Int63n(n), rnd.Int63()}
	case x < 80:
		return []interface{}{"unlink", rnd.Int63n(n), rnd.Int63()}
	case x < 92:
		return []interface{}{"drop", rnd.Int63n(n)}
	case x < 94:
		return []interface{}{"pin", rnd.Int63n(n)}
	case x < 96:
		return []interface{}{"unpin", rnd.Int63n(n)}
	case x < 98:
		return []interface{}{"weak", rnd.Int63n(n), rnd.Int63n(n)}
	}
	return []interface{}{"id", rnd.Int63n(n)}
}
