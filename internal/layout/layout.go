package layout

import (
	"sort"

	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

// PhysicalBit maps a stored start bit to its index in the normalized frame
// word. Motorola start bits count within byte-reversed bytes; Intel start
// bits are already physical.
func PhysicalBit(e model.Endianness, start int) int {
	if e == model.Motorola {
		return 8*(7-start/8) + start%8
	}
	return start
}

// Shift is the accumulator position of the field's least significant bit.
// A Motorola start bit names the field's most significant bit, so the field
// occupies PhysicalBit down to PhysicalBit-(Length-1) of the byte-reversed
// accumulator. For one-bit fields the shift equals the physical bit index.
func Shift(sig *model.Signal) int {
	if sig.Endianness == model.Motorola {
		return PhysicalBit(model.Motorola, sig.StartBit) - (sig.Length - 1)
	}
	return sig.StartBit
}

// Fits reports whether the signal lies entirely inside a 64-bit frame.
func Fits(sig *model.Signal) bool {
	if sig.StartBit < 0 || sig.StartBit > 63 || sig.Length < 1 || sig.Length > 64 {
		return false
	}
	sh := Shift(sig)
	return sh >= 0 && sh+sig.Length <= 64
}

// Mask returns length low bits set; 64 yields all ones.
func Mask(length int) uint64 {
	if length >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(length)) - 1
}

// NativeWidth is the narrowest of 8/16/32/64 bits holding length bits.
func NativeWidth(length int) int {
	switch {
	case length <= 8:
		return 8
	case length <= 16:
		return 16
	case length <= 32:
		return 32
	}
	return 64
}

// Field is the per-signal recipe shared by the C generator and the Go codec.
type Field struct {
	Signal      *model.Signal
	Accumulator model.Endianness
	Shift       int
	Mask        uint64
	Width       int
	// SignMask is the complement of Mask narrowed to Width. Zero when the
	// signal is unsigned, floating, or already fills its native width.
	SignMask uint64
	TopBit   uint64
}

// FieldFor computes the field recipe of one signal.
func FieldFor(sig *model.Signal) Field {
	f := Field{
		Signal:      sig,
		Accumulator: sig.Endianness,
		Shift:       Shift(sig),
		Mask:        Mask(sig.Length),
		Width:       NativeWidth(sig.Length),
		TopBit:      uint64(1) << uint(sig.Length-1),
	}
	if sig.Signed && !sig.IsFloat() {
		f.SignMask = ^f.Mask & Mask(f.Width)
	}
	return f
}

// Arm is the set of fields selected by one multiplexor value.
type Arm struct {
	Value  uint64
	Fields []Field
}

// Plan is the planned layout of one message.
type Plan struct {
	Message *model.Message
	// Fields holds every signal in processing order (ascending start bit).
	Fields []Field
	// Storage orders signals by descending bit length for struct layout.
	Storage []*model.Signal
	// Uses marks which accumulators the message touches.
	Uses [model.NumOrderings]bool
}

// PlanMessage sorts the message's signals by start bit, records each
// signal's physical bit index, and derives field recipes.
func PlanMessage(msg *model.Message) *Plan {
	sort.SliceStable(msg.Signals, func(i, j int) bool {
		return msg.Signals[i].StartBit < msg.Signals[j].StartBit
	})
	p := &Plan{Message: msg}
	for _, sig := range msg.Signals {
		sig.PhysicalBit = PhysicalBit(sig.Endianness, sig.StartBit)
		p.Fields = append(p.Fields, FieldFor(sig))
		p.Uses[sig.Endianness] = true
	}
	p.Storage = append([]*model.Signal(nil), msg.Signals...)
	sort.SliceStable(p.Storage, func(i, j int) bool {
		return p.Storage[i].Length > p.Storage[j].Length
	})
	return p
}

// PlanDatabase plans every message in order.
func PlanDatabase(db *model.Database) []*Plan {
	plans := make([]*Plan, 0, len(db.Messages))
	for _, m := range db.Messages {
		plans = append(plans, PlanMessage(m))
	}
	return plans
}

// Unconditional returns fields packed regardless of multiplexing.
func (p *Plan) Unconditional() []Field {
	var out []Field
	for _, f := range p.Fields {
		if f.Signal.MuxRole != model.MuxMultiplexed {
			out = append(out, f)
		}
	}
	return out
}

// Multiplexor returns the multiplexor field, if the message has one.
func (p *Plan) Multiplexor() (Field, bool) {
	for _, f := range p.Fields {
		if f.Signal.MuxRole == model.MuxMultiplexor {
			return f, true
		}
	}
	return Field{}, false
}

// Arms groups linked multiplexed fields by switch value, ascending.
func (p *Plan) Arms() []Arm {
	mux, ok := p.Multiplexor()
	if !ok {
		return nil
	}
	var arms []Arm
	for _, v := range p.Message.SwitchValues(mux.Signal.Name) {
		arm := Arm{Value: v}
		for _, f := range p.Fields {
			s := f.Signal
			if s.MuxRole == model.MuxMultiplexed && s.SwitchValue == v && p.Message.Linked(s.Name) {
				arm.Fields = append(arm.Fields, f)
			}
		}
		arms = append(arms, arm)
	}
	return arms
}

// Bits lists the frame bit positions (byte*8 + bit, byte 0 first) a signal
// occupies, used by lint rules.
func Bits(sig *model.Signal) []int {
	sh := Shift(sig)
	out := make([]int, 0, sig.Length)
	for i := 0; i < sig.Length; i++ {
		pos := sh + i
		if sig.Endianness == model.Motorola {
			// Accumulator is byte-reversed relative to the frame.
			pos = 8*(7-pos/8) + pos%8
		}
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}
