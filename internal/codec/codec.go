// Package codec evaluates a planned message layout in Go. It produces the
// same frames and values as the generated C routines and backs the decode
// command and the codec property tests.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

// Record maps signal names to raw bit patterns of their native width, the
// Go counterpart of a generated message struct.
type Record map[string]uint64

// Pack folds the record into a frame word. Multiplexed signals are packed
// only when the multiplexor selects them; an unmatched switch value packs
// the unconditional signals alone.
func Pack(msg *model.Message, rec Record) uint64 {
	plan := layout.PlanMessage(msg)
	var acc [model.NumOrderings]uint64
	put := func(f layout.Field) {
		x := rec[f.Signal.Name] & f.Mask
		acc[f.Accumulator] |= x << uint(f.Shift)
	}
	for _, f := range plan.Unconditional() {
		put(f)
	}
	if mux, ok := plan.Multiplexor(); ok {
		sw := rec[mux.Signal.Name]
		for _, arm := range plan.Arms() {
			if arm.Value != sw {
				continue
			}
			for _, f := range arm.Fields {
				put(f)
			}
			break
		}
	}
	return bits.ReverseBytes64(acc[model.Motorola]) | acc[model.Intel]
}

// Unpack extracts every selected signal of msg from frame. length is the
// caller's data length code, checked against a non-zero declared DLC before
// anything is decoded.
func Unpack(msg *model.Message, frame uint64, length int) (Record, error) {
	if msg.DLC > 0 && length < msg.DLC {
		return nil, fmt.Errorf("%s: data length %d below declared %d: %w",
			msg.Name, length, msg.DLC, model.ErrUnpackLengthTooShort)
	}
	plan := layout.PlanMessage(msg)
	acc := [model.NumOrderings]uint64{
		model.Motorola: bits.ReverseBytes64(frame),
		model.Intel:    frame,
	}
	rec := make(Record, len(plan.Fields))
	get := func(f layout.Field) {
		x := (acc[f.Accumulator] >> uint(f.Shift)) & f.Mask
		if f.SignMask != 0 && x&f.TopBit != 0 {
			x |= f.SignMask
		}
		rec[f.Signal.Name] = x
	}
	for _, f := range plan.Unconditional() {
		get(f)
	}
	mux, ok := plan.Multiplexor()
	if !ok {
		return rec, nil
	}
	arms := plan.Arms()
	if len(arms) == 0 {
		return rec, nil
	}
	sw := rec[mux.Signal.Name]
	for _, arm := range arms {
		if arm.Value == sw {
			for _, f := range arm.Fields {
				get(f)
			}
			return rec, nil
		}
	}
	return rec, fmt.Errorf("%s: multiplexor %s value %d: %w",
		msg.Name, mux.Signal.Name, sw, model.ErrUnmatchedMultiplexValue)
}

// Exact reports whether the engineering value of sig is its stored integer,
// with no floating-point step in between.
func Exact(sig *model.Signal) bool {
	return sig.IsIdentity() && !sig.IsFloat()
}

// Int is the exact integer a native C integer field holds. I is meaningful
// for signed signals, U otherwise.
type Int struct {
	Signed bool
	I      int64
	U      uint64
}

// String formats the integer in decimal.
func (n Int) String() string {
	if n.Signed {
		return strconv.FormatInt(n.I, 10)
	}
	return strconv.FormatUint(n.U, 10)
}

// WireInt returns the stored integer of an integral signal, sign-extended
// from its native width when signed.
func WireInt(sig *model.Signal, raw uint64) Int {
	width := layout.NativeWidth(sig.Length)
	if sig.Signed {
		shift := uint(64 - width)
		return Int{Signed: true, I: int64(raw<<shift) >> shift}
	}
	return Int{U: raw & layout.Mask(width)}
}

// DecodeRaw is the decode of an unscaled integral signal: the stored
// integer itself. ok is false for scaled or floating signals, which go
// through Decode.
func DecodeRaw(sig *model.Signal, raw uint64) (Int, bool) {
	if !Exact(sig) {
		return Int{}, false
	}
	return WireInt(sig, raw), true
}

// EncodeRaw stores an exact integer into an unscaled integral signal,
// truncated to the native width the way the C assignment is.
func EncodeRaw(sig *model.Signal, v Int) uint64 {
	mask := layout.Mask(layout.NativeWidth(sig.Length))
	if v.Signed {
		return uint64(v.I) & mask
	}
	return v.U & mask
}

// Wire interprets a raw native-width pattern as the number the storage type
// holds: the IEEE-754 value for floats, a two's complement integer for
// signed signals. Integers wider than 53 bits are rounded; use WireInt for
// the exact value.
func Wire(sig *model.Signal, raw uint64) float64 {
	switch sig.Float {
	case model.Single:
		return float64(math.Float32frombits(uint32(raw)))
	case model.Double:
		return math.Float64frombits(raw)
	}
	n := WireInt(sig, raw)
	if n.Signed {
		return float64(n.I)
	}
	return float64(n.U)
}

// Decode converts a raw pattern to engineering units: raw*scaling+offset.
func Decode(sig *model.Signal, raw uint64) float64 {
	v := Wire(sig, raw)
	if sig.IsIdentity() {
		return v
	}
	if sig.Scaling != 1.0 {
		v *= sig.Scaling
	}
	if sig.Offset != 0.0 {
		v += sig.Offset
	}
	return v
}

// Encode converts an engineering value to a raw pattern:
// (value-offset)/scaling, rounded half away from zero for integral signals.
// Values outside the int64/uint64 range saturate.
func Encode(sig *model.Signal, value float64) uint64 {
	if !sig.IsIdentity() {
		if sig.Offset != 0.0 {
			value -= sig.Offset
		}
		if sig.Scaling != 1.0 {
			value /= sig.Scaling
		}
	}
	switch sig.Float {
	case model.Single:
		return uint64(math.Float32bits(float32(value)))
	case model.Double:
		return math.Float64bits(value)
	}
	mask := layout.Mask(layout.NativeWidth(sig.Length))
	r := math.Round(value)
	switch {
	case math.IsNaN(r):
		return 0
	case r >= 0x1p64:
		return mask
	case r >= 0x1p63:
		return uint64(r) & mask
	case r < -0x1p63:
		return uint64(1<<63) & mask
	}
	return uint64(int64(r)) & mask
}

// FrameFromBytes assembles up to eight payload bytes into a frame word,
// byte 0 least significant.
func FrameFromBytes(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// FrameBytes returns the first dlc bytes of a frame word.
func FrameBytes(frame uint64, dlc int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], frame)
	if dlc < 0 {
		dlc = 0
	}
	if dlc > 8 {
		dlc = 8
	}
	return append([]byte(nil), buf[:dlc]...)
}

// Format renders the record the way the generated print routine does.
// Signals absent from rec print as zero.
func Format(msg *model.Message, rec Record) string {
	var b strings.Builder
	for _, f := range layout.PlanMessage(msg).Fields {
		s := f.Signal
		raw := rec[s.Name]
		switch {
		case Exact(s):
			n := WireInt(s, raw)
			fmt.Fprintf(&b, "%s = %s.000 (wire: %s)\n", s.Name, n, n)
		case s.IsFloat():
			fmt.Fprintf(&b, "%s = %.3f (wire: %f)\n", s.Name, Decode(s, raw), Wire(s, raw))
		default:
			fmt.Fprintf(&b, "%s = %.3f (wire: %.0f)\n", s.Name, Decode(s, raw), Wire(s, raw))
		}
	}
	return b.String()
}

// Number is a decoded value written exactly: integers in full and floats
// in their shortest round-trip form. Non-finite floats marshal as JSON
// strings.
type Number string

func floatNumber(v float64) Number {
	return Number(strconv.FormatFloat(v, 'g', -1, 64))
}

// Float parses the number, rounding integers wider than 53 bits.
func (n Number) Float() float64 {
	f, _ := strconv.ParseFloat(string(n), 64)
	return f
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	switch n {
	case "NaN", "+Inf", "-Inf":
		return json.Marshal(string(n))
	case "":
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	*n = Number(data)
	return nil
}

// Value is one decoded signal.
type Value struct {
	Signal   string `json:"signal"`
	Raw      uint64 `json:"raw"`
	Wire     Number `json:"wire"`
	Physical Number `json:"physical"`
	Units    string `json:"units,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Values lists the signals present in rec in planned order, with value
// table labels resolved.
func Values(msg *model.Message, rec Record) []Value {
	var out []Value
	for _, f := range layout.PlanMessage(msg).Fields {
		s := f.Signal
		raw, ok := rec[s.Name]
		if !ok {
			continue
		}
		v := Value{Signal: s.Name, Raw: raw, Units: s.Units}
		switch {
		case s.IsFloat():
			v.Wire, v.Physical = floatNumber(Wire(s, raw)), floatNumber(Decode(s, raw))
		default:
			n := WireInt(s, raw)
			v.Wire = Number(n.String())
			if Exact(s) {
				v.Physical = v.Wire
			} else {
				v.Physical = floatNumber(Decode(s, raw))
			}
			if n.Signed {
				v.Label, _ = s.ValueTable.Lookup(n.I)
			} else {
				v.Label, _ = s.ValueTable.Lookup(int64(n.U))
			}
		}
		out = append(out, v)
	}
	return out
}
