package main

import "fmt"
import "flag"
import "strconv"
import "io/ioutil"

import "github.com/prataprc/goparsec"
import "github.com/prataprc/monster"
import mcommon "github.com/prataprc/monster/common"

var monsteropts struct {
	n        int
	nroots   int
	seed     int
	bagdir   string
	prodfile string
	nursery  string
	maxheap  string
	capacity string
	check    bool
	pprof    string
}

func parseMonsteropts(args []string) {
	f := flag.NewFlagSet("monster", flag.ExitOnError)

	f.IntVar(&monsteropts.n, "n", 1000,
		"number of op sequences to generate and apply")
	f.IntVar(&monsteropts.nroots, "roots", 1024,
		"number of root slots")
	f.IntVar(&monsteropts.seed, "seed", 1,
		"random seed")
	f.StringVar(&monsteropts.bagdir, "bagdir", "",
		"bag directory for monster sample data.")
	f.StringVar(&monsteropts.prodfile, "prodfile", "gcstress.prod",
		"monster production file")
	f.StringVar(&monsteropts.nursery, "nursery", "",
		"nursery size, like 4MB, default from gc settings")
	f.StringVar(&monsteropts.maxheap, "maxheap", "",
		"bound the heap, like 1GB, default unbounded")
	f.StringVar(&monsteropts.capacity, "capacity", "4GB",
		"capacity of the simulated address space")
	f.BoolVar(&monsteropts.check, "check", true,
		"check heap consistency after every sequence")
	f.StringVar(&monsteropts.pprof, "pprof", "",
		"dump cpu-profile to file")
	f.Parse(args)

	fmt.Printf("seed: %v\n", monsteropts.seed)
}

func doMonster(args []string) {
	parseMonsteropts(args)
	defer takeCPUProfile(monsteropts.pprof)()

	setts, err := stresssettings(
		monsteropts.nursery, monsteropts.maxheap, monsteropts.capacity)
	if err != nil {
		fmt.Printf("invalid settings: %v\n", err)
		return
	}
	m, err := newmutator(int64(monsteropts.nroots), setts)
	if err != nil {
		fmt.Printf("newmutator: %v\n", err)
		return
	}
	defer m.g.Destroy()

	opch := make(chan string, 1000)
	go generate(monsteropts.n, monsteropts.prodfile, opch)

	parser, count := opsparser(), 0
	for text := range opch {
		node, _ := parser(parsec.NewScanner([]byte(text)))
		cmds, ok := node.([]parsec.ParsecNode)
		if !ok {
			fmt.Printf("invalid sequence %q\n", text)
			return
		}
		for _, cmd := range cmds {
			if err := m.safeapply(cmd.([]interface{})); err != nil {
				fmt.Printf("sequence %v %v: %v\n", count, cmd, err)
				return
			}
		}
		if monsteropts.check {
			if err := m.fullcollect(true); err != nil {
				fmt.Printf("sequence %v: %v\n", count, err)
				return
			}
		}
		count++
	}
	fmt.Printf("applied %v sequences\n", count)
	m.report()
}

// opsparser parse a sequence of operations separated by ";", each
// operation is a name followed by integer or identifier arguments:
//
//	alloc node 3 0; link 3 7 1; collect 0
func opsparser() parsec.Parser {
	first := func(ns []parsec.ParsecNode) parsec.ParsecNode { return ns[0] }
	arg := parsec.OrdChoice(first, parsec.Int(), parsec.Ident())
	op := parsec.And(nodifyop, parsec.Ident(), parsec.Kleene(nil, arg))
	return parsec.Kleene(nil, op, parsec.Atom(";", "SEMI"))
}

func nodifyop(ns []parsec.ParsecNode) parsec.ParsecNode {
	cmd := []interface{}{ns[0].(*parsec.Terminal).Value}
	for _, n := range ns[1].([]parsec.ParsecNode) {
		t := n.(*parsec.Terminal)
		if v, err := strconv.ParseInt(t.Value, 10, 64); err == nil {
			cmd = append(cmd, v)
			continue
		}
		cmd = append(cmd, t.Value)
	}
	return cmd
}

//--------
// monster
//--------

func generate(repeat int, prodfile string, opch chan<- string) {
	defer close(opch)

	text, err := ioutil.ReadFile(prodfile)
	if err != nil {
		fmt.Printf("reading %v: %v\n", prodfile, err)
		return
	}
	root := compile(parsec.NewScanner(text)).(mcommon.Scope)
	seed, bagdir := uint64(monsteropts.seed), monsteropts.bagdir
	scope := monster.BuildContext(root, seed, bagdir, prodfile)
	nterms := scope["_nonterminals"].(mcommon.NTForms)
	for i := 0; i < repeat; i++ {
		scope = scope.RebuildContext()
		val := evaluate("root", scope, nterms["s"])
		if text, ok := val.(string); ok {
			opch <- text
		}
	}
}

func compile(s parsec.Scanner) parsec.ParsecNode {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("%v at %v", r, s.GetCursor())
		}
	}()
	root, _ := monster.Y(s)
	return root
}

func evaluate(
	name string, scope mcommon.Scope, forms []*mcommon.Form) interface{} {

	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("%v", r)
		}
	}()
	return monster.EvalForms(name, scope, forms)
}
