package main

import "fmt"
import "os"
import "runtime/pprof"

import "github.com/bnclabs/incmark/gc"
import "github.com/bnclabs/incmark/malloc"
import "github.com/bnclabs/golog"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	setts := map[string]interface{}{
		"log.level":      "info",
		"log.colorfatal": "red",
		"log.colorerror": "hired",
		"log.colorwarn":  "yellow",
	}
	log.SetLogger(nil, setts)
	gc.LogComponents("all")
	malloc.LogComponents("all")

	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "load":
		doLoad(args)
	case "monster":
		doMonster(args)
	case "sizes":
		doSizes(args)
	default:
		fmt.Printf("unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: gcstress load|monster|sizes [options]")
}

func takeCPUProfile(filename string) func() {
	if filename == "" {
		return func() {}
	}
	fd, err := os.Create(filename)
	if err != nil {
		fmt.Printf("unable to create %q: %v\n", filename, err)
		return func() {}
	}
	pprof.StartCPUProfile(fd)
	return func() {
		pprof.StopCPUProfile()
		fd.Close()
	}
}

func takeMEMProfile(filename string) bool {
	if filename == "" {
		return false
	}
	fd, err := os.Create(filename)
	if err != nil {
		fmt.Printf("unable to create %q: %v\n", filename, err)
		return false
	}
	defer fd.Close()
	pprof.WriteHeapProfile(fd)
	return true
}
