package codegen

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Writer accumulates tab-indented lines of C.
type Writer struct {
	buf    bytes.Buffer
	indent int
}

// P writes one formatted line at the current indent. An empty format writes
// a blank line.
func (w *Writer) P(format string, args ...any) {
	if format == "" {
		w.buf.WriteString("\n")
		return
	}
	for i := 0; i < w.indent; i++ {
		w.buf.WriteString("\t")
	}
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteString("\n")
}

func (w *Writer) In()  { w.indent++ }
func (w *Writer) Out() { w.indent-- }

func (w *Writer) String() string { return w.buf.String() }

// Literal renders a float64 as the shortest C constant that round-trips.
func Literal(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "0.0"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return s
		}
	}
	return s + ".0"
}

// Hex renders an unsigned constant with a suffix wide enough for uint64_t.
func Hex(v uint64) string {
	if v > math.MaxUint32 {
		return fmt.Sprintf("0x%xull", v)
	}
	return fmt.Sprintf("0x%xu", v)
}
