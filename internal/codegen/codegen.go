// Package codegen emits the C pack, unpack, scaling and print routines of a
// planned message.
package codegen

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

// Accumulator variable names, indexed by byte ordering.
var accumulators = [model.NumOrderings]string{
	model.Motorola: "m",
	model.Intel:    "i",
}

// ReturnCodes names the C enumerators the generated routines return.
type ReturnCodes struct {
	OK        string
	TooShort  string
	Unmatched string
}

// CodesFor derives return code names from an upper-case prefix.
func CodesFor(prefix string) ReturnCodes {
	return ReturnCodes{
		OK:        prefix + "_OK",
		TooShort:  prefix + "_UNPACK_LENGTH_TOO_SHORT",
		Unmatched: prefix + "_UNMATCHED_MULTIPLEX_VALUE",
	}
}

// Options controls fragment generation.
type Options struct {
	Codes ReturnCodes
	// Print emits a print_<name> routine per message.
	Print bool
}

// Fragment is the generated text of one message.
type Fragment struct {
	Name string
	Type string
	// Header holds the struct typedef and prototypes.
	Header string
	// Source holds the record global and function bodies.
	Source string
}

type generator struct {
	plan  *layout.Plan
	name  string
	typ   string
	opts  Options
	ctype map[string]string
	stype map[string]string
}

// Message generates the fragment for one planned message. name is the
// database-qualified message identifier used as a prefix on every symbol.
func Message(name string, plan *layout.Plan, opts Options) (*Fragment, error) {
	g := &generator{
		plan:  plan,
		name:  name,
		typ:   name + "_t",
		opts:  opts,
		ctype: make(map[string]string),
		stype: make(map[string]string),
	}
	for _, f := range plan.Fields {
		t, err := CType(f.Signal)
		if err != nil {
			if se, ok := err.(*model.SemanticError); ok {
				se.Message = plan.Message.Name
			}
			return nil, err
		}
		g.ctype[f.Signal.Name] = t
		if g.stype[f.Signal.Name], err = ScaledType(f.Signal); err != nil {
			return nil, err
		}
	}

	var h, c Writer
	g.header(&h)
	c.P("%s %s_data;", g.typ, g.name)
	c.P("")
	g.pack(&c)
	c.P("")
	g.unpack(&c)
	for _, f := range plan.Fields {
		c.P("")
		g.decode(&c, f.Signal)
		c.P("")
		g.encode(&c, f.Signal)
	}
	if opts.Print {
		c.P("")
		g.print(&c)
	}
	return &Fragment{Name: name, Type: g.typ, Header: h.String(), Source: c.String()}, nil
}

func (g *generator) header(w *Writer) {
	msg := g.plan.Message
	if msg.Comment != "" {
		w.P("/* %s */", comment(msg.Comment))
	}
	w.P("typedef struct {")
	w.In()
	if len(g.plan.Storage) == 0 {
		w.P("uint8_t reserved_; /* no signals */")
	}
	for _, sig := range g.plan.Storage {
		w.P("%s %s; /* %s */", g.ctype[sig.Name], sig.Name, describe(sig))
	}
	w.Out()
	w.P("} %s;", g.typ)
	w.P("")
	w.P("extern %s %s_data;", g.typ, g.name)
	w.P("int pack_%s(const %s *pack, uint64_t *data);", g.name, g.typ)
	w.P("int unpack_%s(%s *unpack, uint64_t data, uint8_t dlc);", g.name, g.typ)
	for _, f := range g.plan.Fields {
		s := f.Signal
		w.P("%s decode_%s_%s(const %s *record);", g.stype[s.Name], g.name, s.Name, g.typ)
		w.P("int encode_%s_%s(%s *record, %s value);", g.name, s.Name, g.typ, g.stype[s.Name])
	}
	if g.opts.Print {
		w.P("int print_%s(const %s *print, FILE *output);", g.name, g.typ)
	}
	w.P("")
}

func describe(sig *model.Signal) string {
	parts := []string{
		fmt.Sprintf("start %d", sig.StartBit),
		fmt.Sprintf("length %d", sig.Length),
		sig.Endianness.String(),
		fmt.Sprintf("scaling %s", Literal(sig.Scaling)),
		fmt.Sprintf("offset %s", Literal(sig.Offset)),
	}
	if sig.Units != "" {
		parts = append(parts, "units "+comment(sig.Units))
	}
	switch sig.MuxRole {
	case model.MuxMultiplexor:
		parts = append(parts, "multiplexor")
	case model.MuxMultiplexed:
		parts = append(parts, fmt.Sprintf("multiplexed on %d", sig.SwitchValue))
	}
	return strings.Join(parts, ", ")
}

func comment(s string) string {
	s = strings.ReplaceAll(s, "*/", "* /")
	return strings.Join(strings.Fields(s), " ")
}

func (g *generator) pack(w *Writer) {
	w.P("int pack_%s(const %s *pack, uint64_t *data)", g.name, g.typ)
	w.P("{")
	w.In()
	if len(g.plan.Fields) == 0 {
		w.P("(void)pack;")
		w.P("*data = 0;")
		w.P("return %s;", g.opts.Codes.OK)
		w.Out()
		w.P("}")
		return
	}
	w.P("uint64_t x;")
	for e, used := range g.plan.Uses {
		if used {
			w.P("uint64_t %s = 0;", accumulators[e])
		}
	}
	for _, f := range g.plan.Unconditional() {
		g.packField(w, f)
	}
	if mux, ok := g.plan.Multiplexor(); ok {
		if arms := g.plan.Arms(); len(arms) > 0 {
			w.P("switch (pack->%s) {", mux.Signal.Name)
			for _, arm := range arms {
				w.P("case %du:", arm.Value)
				w.In()
				for _, f := range arm.Fields {
					g.packField(w, f)
				}
				w.P("break;")
				w.Out()
			}
			w.P("default:")
			w.In()
			w.P("break;")
			w.Out()
			w.P("}")
		}
	}
	w.P("*data = %s;", g.combine())
	w.P("return %s;", g.opts.Codes.OK)
	w.Out()
	w.P("}")
}

func (g *generator) combine() string {
	var terms []string
	if g.plan.Uses[model.Motorola] {
		terms = append(terms, "reverse_byte_order(m)")
	}
	if g.plan.Uses[model.Intel] {
		terms = append(terms, "i")
	}
	return strings.Join(terms, " | ")
}

func (g *generator) packField(w *Writer, f layout.Field) {
	s := f.Signal
	w.P("/* %s: %s */", s.Name, describe(s))
	switch s.Float {
	case model.Single:
		w.P("x = float_to_bits(pack->%s) & %s;", s.Name, Hex(f.Mask))
	case model.Double:
		w.P("x = double_to_bits(pack->%s) & %s;", s.Name, Hex(f.Mask))
	default:
		w.P("x = ((uint64_t)(%s)(pack->%s)) & %s;", UintType(f.Width), s.Name, Hex(f.Mask))
	}
	if f.Shift != 0 {
		w.P("x <<= %d;", f.Shift)
	}
	w.P("%s |= x;", accumulators[f.Accumulator])
}

func (g *generator) unpack(w *Writer) {
	msg := g.plan.Message
	w.P("int unpack_%s(%s *unpack, uint64_t data, uint8_t dlc)", g.name, g.typ)
	w.P("{")
	w.In()
	if msg.DLC > 0 {
		w.P("if (dlc < %d)", msg.DLC)
		w.In()
		w.P("return %s;", g.opts.Codes.TooShort)
		w.Out()
	} else {
		w.P("(void)dlc;")
	}
	if len(g.plan.Fields) == 0 {
		w.P("(void)unpack;")
		w.P("(void)data;")
		w.P("return %s;", g.opts.Codes.OK)
		w.Out()
		w.P("}")
		return
	}
	w.P("uint64_t x;")
	if g.plan.Uses[model.Motorola] {
		w.P("const uint64_t m = reverse_byte_order(data);")
	}
	if g.plan.Uses[model.Intel] {
		w.P("const uint64_t i = data;")
	}
	for _, f := range g.plan.Unconditional() {
		g.unpackField(w, f)
	}
	if mux, ok := g.plan.Multiplexor(); ok {
		if arms := g.plan.Arms(); len(arms) > 0 {
			w.P("switch (unpack->%s) {", mux.Signal.Name)
			for _, arm := range arms {
				w.P("case %du:", arm.Value)
				w.In()
				for _, f := range arm.Fields {
					g.unpackField(w, f)
				}
				w.P("break;")
				w.Out()
			}
			w.P("default:")
			w.In()
			w.P("return %s;", g.opts.Codes.Unmatched)
			w.Out()
			w.P("}")
		}
	}
	w.P("return %s;", g.opts.Codes.OK)
	w.Out()
	w.P("}")
}

func (g *generator) unpackField(w *Writer, f layout.Field) {
	s := f.Signal
	w.P("/* %s: %s */", s.Name, describe(s))
	if f.Shift != 0 {
		w.P("x = (%s >> %d) & %s;", accumulators[f.Accumulator], f.Shift, Hex(f.Mask))
	} else {
		w.P("x = %s & %s;", accumulators[f.Accumulator], Hex(f.Mask))
	}
	switch s.Float {
	case model.Single:
		w.P("unpack->%s = bits_to_float(x);", s.Name)
	case model.Double:
		w.P("unpack->%s = bits_to_double(x);", s.Name)
	default:
		if f.SignMask != 0 {
			w.P("x = (x & %s) ? (x | %s) : x;", Hex(f.TopBit), Hex(f.SignMask))
		}
		w.P("unpack->%s = (%s)x;", s.Name, g.ctype[s.Name])
	}
}

func (g *generator) decode(w *Writer, sig *model.Signal) {
	w.P("%s decode_%s_%s(const %s *record)", g.stype[sig.Name], g.name, sig.Name, g.typ)
	w.P("{")
	w.In()
	if sig.IsIdentity() {
		w.P("return record->%s;", sig.Name)
	} else {
		w.P("double rval = (double)(record->%s);", sig.Name)
		if sig.Scaling != 1.0 {
			w.P("rval *= %s;", Literal(sig.Scaling))
		}
		if sig.Offset != 0.0 {
			w.P("rval += %s;", Literal(sig.Offset))
		}
		w.P("return rval;")
	}
	w.Out()
	w.P("}")
}

func (g *generator) encode(w *Writer, sig *model.Signal) {
	w.P("int encode_%s_%s(%s *record, %s value)", g.name, sig.Name, g.typ, g.stype[sig.Name])
	w.P("{")
	w.In()
	if !sig.IsIdentity() {
		if sig.Offset != 0.0 {
			w.P("value -= %s;", Literal(sig.Offset))
		}
		if sig.Scaling != 1.0 {
			w.P("value /= %s;", Literal(sig.Scaling))
		}
	}
	switch {
	case sig.IsIdentity():
		w.P("record->%s = value;", sig.Name)
	case sig.IsFloat():
		w.P("record->%s = (%s)value;", sig.Name, g.ctype[sig.Name])
	default:
		w.P("record->%s = (%s)(value + (value < 0 ? -0.5 : 0.5));", sig.Name, g.ctype[sig.Name])
	}
	w.P("return %s;", g.opts.Codes.OK)
	w.Out()
	w.P("}")
}

func (g *generator) print(w *Writer) {
	w.P("int print_%s(const %s *print, FILE *output)", g.name, g.typ)
	w.P("{")
	w.In()
	if len(g.plan.Fields) == 0 {
		w.P("(void)print;")
		w.P("(void)output;")
		w.P("return %s;", g.opts.Codes.OK)
		w.Out()
		w.P("}")
		return
	}
	w.P("int r = 0;")
	for _, f := range g.plan.Fields {
		s := f.Signal
		switch {
		case s.IsIdentity() && !s.IsFloat():
			// Printed as integers so 64-bit fields keep every digit.
			format, cast := "%llu", "unsigned long long"
			if s.Signed {
				format, cast = "%lld", "long long"
			}
			w.P(`r = fprintf(output, "%s = %s.000 (wire: %s)\n", (%s)decode_%s_%s(print), (%s)(print->%s));`,
				s.Name, format, format, cast, g.name, s.Name, cast, s.Name)
		default:
			wire := "%.0f"
			if s.IsFloat() {
				wire = "%f"
			}
			w.P(`r = fprintf(output, "%s = %%.3f (wire: %s)\n", (double)decode_%s_%s(print), (double)(print->%s));`,
				s.Name, wire, g.name, s.Name, s.Name)
		}
		w.P("if (r < 0)")
		w.In()
		w.P("return r;")
		w.Out()
	}
	w.P("return %s;", g.opts.Codes.OK)
	w.Out()
	w.P("}")
}

// Prelude returns the static helpers the fragments of db rely on: the
// byte-order reversal and IEEE-754 bit reinterpretation.
func Prelude(db *model.Database) string {
	var motorola, single, double bool
	for _, m := range db.Messages {
		for _, s := range m.Signals {
			if s.Endianness == model.Motorola {
				motorola = true
			}
			switch s.Float {
			case model.Single:
				single = true
			case model.Double:
				double = true
			}
		}
	}

	var w Writer
	if motorola {
		w.P("static inline uint64_t reverse_byte_order(uint64_t x)")
		w.P("{")
		w.In()
		w.P("x = (x & 0x00000000ffffffffull) << 32 | (x & 0xffffffff00000000ull) >> 32;")
		w.P("x = (x & 0x0000ffff0000ffffull) << 16 | (x & 0xffff0000ffff0000ull) >> 16;")
		w.P("x = (x & 0x00ff00ff00ff00ffull) << 8  | (x & 0xff00ff00ff00ff00ull) >> 8;")
		w.P("return x;")
		w.Out()
		w.P("}")
		w.P("")
	}
	if single {
		w.P("static inline uint64_t float_to_bits(float f)")
		w.P("{")
		w.In()
		w.P("uint32_t u;")
		w.P("memcpy(&u, &f, sizeof u);")
		w.P("return u;")
		w.Out()
		w.P("}")
		w.P("")
		w.P("static inline float bits_to_float(uint64_t x)")
		w.P("{")
		w.In()
		w.P("const uint32_t u = (uint32_t)x;")
		w.P("float f;")
		w.P("memcpy(&f, &u, sizeof f);")
		w.P("return f;")
		w.Out()
		w.P("}")
		w.P("")
	}
	if double {
		w.P("static inline uint64_t double_to_bits(double d)")
		w.P("{")
		w.In()
		w.P("uint64_t u;")
		w.P("memcpy(&u, &d, sizeof u);")
		w.P("return u;")
		w.Out()
		w.P("}")
		w.P("")
		w.P("static inline double bits_to_double(uint64_t x)")
		w.P("{")
		w.In()
		w.P("double d;")
		w.P("memcpy(&d, &x, sizeof d);")
		w.P("return d;")
		w.Out()
		w.P("}")
		w.P("")
	}
	return w.String()
}
