// Command debug dumps the parse tree of a DBC file and, with -plan, the bit
// layout the generator will use for each message.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/robert-at-pretension-io/dbcc/internal/builder"
	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
	"github.com/robert-at-pretension-io/dbcc/internal/parser"
)

func main() {
	plan := flag.Bool("plan", false, "print the per-message bit layout instead of the parse tree")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: debug [-plan] <file.dbc>")
		os.Exit(1)
	}
	file := flag.Arg(0)

	root, err := parser.ParseFile(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !*plan {
		if err := root.Dump(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	db, err := builder.Build(root, builder.Options{File: file})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, p := range layout.PlanDatabase(db) {
		printPlan(p)
	}
}

func printPlan(p *layout.Plan) {
	m := p.Message
	fmt.Printf("%s id=0x%x dlc=%d accumulators=[motorola:%v intel:%v]\n",
		m.Name, m.ID, m.DLC, p.Uses[model.Motorola], p.Uses[model.Intel])
	for i, f := range p.Fields {
		s := f.Signal
		fmt.Printf("  [%d] %-24s %-8s start=%-2d phys=%-2d len=%-2d shift=%-2d mask=0x%x width=%d",
			i, s.Name, s.Endianness, s.StartBit, s.PhysicalBit, s.Length, f.Shift, f.Mask, f.Width)
		if f.SignMask != 0 {
			fmt.Printf(" sign=0x%x", f.SignMask)
		}
		if s.MuxRole != model.MuxNone {
			fmt.Printf(" mux=%s", s.MuxRole)
			if s.MuxRole == model.MuxMultiplexed {
				fmt.Printf("(%d)", s.SwitchValue)
			}
		}
		fmt.Println()
	}
	for _, arm := range p.Arms() {
		fmt.Printf("  case %d:", arm.Value)
		for _, f := range arm.Fields {
			fmt.Printf(" %s", f.Signal.Name)
		}
		fmt.Println()
	}
}
