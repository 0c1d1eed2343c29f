// Package output binds per-message C fragments into a header and source
// unit with per-database dispatch tables.
package output

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/dbcc/internal/codegen"
	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

// Options controls unit assembly.
type Options struct {
	// Print emits print routines and the print dispatch table.
	Print bool
	// Banner is written as a comment at the top of both files.
	Banner string
}

// Unit is a generated header/source pair.
type Unit struct {
	HeaderName string
	SourceName string
	Header     string
	Source     string
	// Functions lists every non-static function the source defines.
	Functions []string
}

// MessageName is the symbol prefix of a message: <db>_0x<hex-id>_<name>.
func MessageName(db string, msg *model.Message) string {
	return fmt.Sprintf("%s_0x%03x_%s", db, msg.ID, msg.Name)
}

// Generate plans every message of db and assembles the unit. The planner
// reorders signals in place.
func Generate(db *model.Database, opts Options) (*Unit, error) {
	plans := layout.PlanDatabase(db)
	prefix := strings.ToUpper(db.Name)
	gopts := codegen.Options{Codes: codegen.CodesFor(prefix), Print: opts.Print}

	frags := make([]*codegen.Fragment, 0, len(plans))
	for _, p := range plans {
		f, err := codegen.Message(MessageName(db.Name, p.Message), p, gopts)
		if err != nil {
			return nil, fmt.Errorf("generating %s: %w", p.Message.Name, err)
		}
		frags = append(frags, f)
	}

	u := &Unit{
		HeaderName: db.Name + ".h",
		SourceName: db.Name + ".c",
	}
	u.Header = header(db, prefix, frags, opts)
	u.Source = source(db, u.HeaderName, plans, frags, opts)
	u.Functions = functions(db, plans, frags, opts)
	return u, nil
}

func banner(w *codegen.Writer, opts Options) {
	if opts.Banner != "" {
		w.P("/* %s */", opts.Banner)
		w.P("")
	}
}

func header(db *model.Database, prefix string, frags []*codegen.Fragment, opts Options) string {
	var w codegen.Writer
	banner(&w, opts)
	guard := prefix + "_H"
	w.P("#ifndef %s", guard)
	w.P("#define %s", guard)
	w.P("")
	w.P("#include <stdint.h>")
	w.P("#include <stdio.h>")
	w.P("")
	w.P("#ifdef __cplusplus")
	w.P(`extern "C" {`)
	w.P("#endif")
	w.P("")
	if db.Comment != "" {
		w.P("/* %s */", strings.Join(strings.Fields(strings.ReplaceAll(db.Comment, "*/", "* /")), " "))
		w.P("")
	}
	w.P("enum {")
	w.In()
	w.P("%s_OK = 0,", prefix)
	w.P("%s_UNKNOWN_ID = -1,", prefix)
	w.P("%s_UNPACK_LENGTH_TOO_SHORT = -2,", prefix)
	w.P("%s_UNMATCHED_MULTIPLEX_VALUE = -3,", prefix)
	w.Out()
	w.P("};")
	w.P("")

	var b strings.Builder
	b.WriteString(w.String())
	for _, f := range frags {
		b.WriteString(f.Header)
	}

	var tail codegen.Writer
	tail.P("int pack_%s_message(unsigned id, uint64_t *data);", db.Name)
	tail.P("int unpack_%s_message(unsigned id, uint64_t data, uint8_t dlc);", db.Name)
	if opts.Print {
		tail.P("int print_%s_message(unsigned id, FILE *output);", db.Name)
	}
	tail.P("")
	tail.P("#ifdef __cplusplus")
	tail.P("}")
	tail.P("#endif")
	tail.P("")
	tail.P("#endif")
	b.WriteString(tail.String())
	return b.String()
}

func source(db *model.Database, headerName string, plans []*layout.Plan, frags []*codegen.Fragment, opts Options) string {
	var w codegen.Writer
	banner(&w, opts)
	w.P(`#include "%s"`, headerName)
	if db.UseFloat {
		w.P("#include <string.h>")
	}
	w.P("")

	var b strings.Builder
	b.WriteString(w.String())
	b.WriteString(codegen.Prelude(db))
	for _, f := range frags {
		b.WriteString(f.Source)
		b.WriteString("\n")
	}

	prefix := strings.ToUpper(db.Name)
	var d codegen.Writer
	dispatch(&d, db, plans, frags, "pack", "uint64_t *data", "data", prefix)
	d.P("")
	dispatch(&d, db, plans, frags, "unpack", "uint64_t data, uint8_t dlc", "data, dlc", prefix)
	if opts.Print {
		d.P("")
		dispatch(&d, db, plans, frags, "print", "FILE *output", "output", prefix)
	}
	b.WriteString(d.String())
	return b.String()
}

// dispatch writes a switch over message identifiers routing to the
// per-message routine with its record global. The switch takes a bare
// numeric identifier, so a standard and an extended frame with the same
// number share one label. Identifiers already seen get a comment in place
// of a second label.
func dispatch(w *codegen.Writer, db *model.Database, plans []*layout.Plan, frags []*codegen.Fragment, verb, params, args, prefix string) {
	w.P("int %s_%s_message(unsigned id, %s)", verb, db.Name, params)
	w.P("{")
	w.In()
	if len(frags) == 0 {
		for _, a := range strings.Split(args, ", ") {
			w.P("(void)%s;", a)
		}
		w.P("(void)id;")
		w.P("return %s_UNKNOWN_ID;", prefix)
		w.Out()
		w.P("}")
		return
	}
	seen := make(map[uint32]string)
	w.P("switch (id) {")
	for i, f := range frags {
		id := plans[i].Message.ID
		if first, ok := seen[id]; ok {
			w.P("/* %s shares 0x%03x with %s; call %s_%s directly */", f.Name, id, first, verb, f.Name)
			continue
		}
		seen[id] = f.Name
		w.P("case 0x%03xu:", id)
		w.In()
		w.P("return %s_%s(&%s_data, %s);", verb, f.Name, f.Name, args)
		w.Out()
	}
	w.P("default:")
	w.In()
	w.P("break;")
	w.Out()
	w.P("}")
	w.P("return %s_UNKNOWN_ID;", prefix)
	w.Out()
	w.P("}")
}

func functions(db *model.Database, plans []*layout.Plan, frags []*codegen.Fragment, opts Options) []string {
	var out []string
	for i, f := range frags {
		out = append(out, "pack_"+f.Name, "unpack_"+f.Name)
		for _, fl := range plans[i].Fields {
			out = append(out, "decode_"+f.Name+"_"+fl.Signal.Name, "encode_"+f.Name+"_"+fl.Signal.Name)
		}
		if opts.Print {
			out = append(out, "print_"+f.Name)
		}
	}
	out = append(out, "pack_"+db.Name+"_message", "unpack_"+db.Name+"_message")
	if opts.Print {
		out = append(out, "print_"+db.Name+"_message")
	}
	return out
}
