package codec

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

func sig(name string, start, length int, e model.Endianness) *model.Signal {
	return &model.Signal{Name: name, StartBit: start, Length: length, Endianness: e, Scaling: 1}
}

// startBits lists stored start bits that place a field of length bits at
// the bottom, top and middle of the frame.
func startBits(e model.Endianness, length int) []int {
	if e == model.Intel {
		return []int{0, (64 - length) / 2, 64 - length}
	}
	// PhysicalBit is its own inverse, so a physical MSB position maps
	// straight back to a start bit.
	var out []int
	for _, msb := range []int{length - 1, (length - 1 + 63) / 2, 63} {
		out = append(out, layout.PhysicalBit(model.Motorola, msb))
	}
	return out
}

func TestRoundTripIdentity(t *testing.T) {
	for _, e := range []model.Endianness{model.Intel, model.Motorola} {
		for length := 1; length <= 64; length++ {
			for _, signed := range []bool{false, true} {
				for _, start := range startBits(e, length) {
					s := sig("X", start, length, e)
					s.Signed = signed
					if !layout.Fits(s) {
						t.Fatalf("%s start %d length %d does not fit", e, start, length)
					}
					roundTrip(t, s)
				}
			}
		}
	}
}

func roundTrip(t *testing.T, s *model.Signal) {
	t.Helper()
	msg := &model.Message{Name: "M", DLC: 8, Signals: []*model.Signal{s}}
	name := fmt.Sprintf("%s start %d length %d signed %v", s.Endianness, s.StartBit, s.Length, s.Signed)

	all := layout.Mask(s.Length)
	field := Pack(msg, Record{"X": all})
	if bits.OnesCount64(field) != s.Length {
		t.Fatalf("%s: field covers %d frame bits", name, bits.OnesCount64(field))
	}
	for _, frame := range []uint64{0, ^uint64(0), 0x0123456789abcdef, 0xfedcba9876543210} {
		rec, err := Unpack(msg, frame, 8)
		if err != nil {
			t.Fatalf("%s: unpack: %v", name, err)
		}
		if got := Pack(msg, rec); got != frame&field {
			t.Fatalf("%s: pack(unpack(%#x)) = %#x, want %#x", name, frame, got, frame&field)
		}
	}

	for _, raw := range []uint64{0, 1, all / 2, all/2 + 1, all - 1, all} {
		raw &= all
		frame := Pack(msg, Record{"X": raw})
		rec, err := Unpack(msg, frame, 8)
		if err != nil {
			t.Fatalf("%s: unpack: %v", name, err)
		}
		stored := rec["X"]
		if stored&all != raw {
			t.Fatalf("%s: raw %#x came back as %#x", name, raw, stored)
		}
		n, ok := DecodeRaw(s, stored)
		if !ok {
			t.Fatalf("%s: identity signal should decode exactly", name)
		}
		if got := EncodeRaw(s, n); got != stored {
			t.Fatalf("%s: exact decode/encode of %#x gave %#x (via %s)", name, stored, got, n)
		}
		if s.Length <= 53 {
			if got := Encode(s, Decode(s, stored)); got != stored {
				t.Fatalf("%s: decode/encode of %#x gave %#x", name, stored, got)
			}
		}
	}
}

func TestExact64BitIdentity(t *testing.T) {
	u := sig("X", 0, 64, model.Intel)
	for _, raw := range []uint64{0x20000000000001, 0x8000000000000001, ^uint64(0)} {
		n, ok := DecodeRaw(u, raw)
		if !ok || n.U != raw {
			t.Fatalf("DecodeRaw(%#x) = %+v, %v", raw, n, ok)
		}
		if got := EncodeRaw(u, n); got != raw {
			t.Fatalf("EncodeRaw(DecodeRaw(%#x)) = %#x", raw, got)
		}
	}

	msg := &model.Message{Name: "M", DLC: 8, Signals: []*model.Signal{u}}
	want := "X = 18446744073709551615.000 (wire: 18446744073709551615)\n"
	if got := Format(msg, Record{"X": ^uint64(0)}); got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
	vals := Values(msg, Record{"X": 0x20000000000001})
	if len(vals) != 1 || vals[0].Physical != "9007199254740993" || vals[0].Wire != "9007199254740993" {
		t.Fatalf("Values = %+v", vals)
	}

	s := sig("S", 0, 64, model.Intel)
	s.Signed = true
	n, _ := DecodeRaw(s, 0x8000000000000001)
	if !n.Signed || n.I != math.MinInt64+1 {
		t.Fatalf("signed DecodeRaw = %+v", n)
	}
	if got := Format(&model.Message{Name: "M", Signals: []*model.Signal{s}}, Record{"S": ^uint64(0)}); got != "S = -1.000 (wire: -1)\n" {
		t.Fatalf("signed Format = %q", got)
	}

	if got := Encode(u, 0x1p64); got != ^uint64(0) {
		t.Fatalf("Encode(2^64) should saturate, got %#x", got)
	}
	if got := Encode(s, -0x1p64); got != 1<<63 {
		t.Fatalf("Encode(-2^64) should saturate to MinInt64, got %#x", got)
	}
}

func TestMotorolaStartBitZero(t *testing.T) {
	s := sig("B", 0, 8, model.Motorola)
	msg := &model.Message{Name: "M", DLC: 8, Signals: []*model.Signal{s}}
	frame := Pack(msg, Record{"B": 0xff})
	if frame != 0xfe01 {
		t.Fatalf("frame = %#x, want 0xfe01", frame)
	}
	if diff := cmp.Diff([]byte{0x01, 0xfe}, FrameBytes(frame, 2)); diff != "" {
		t.Fatalf("bytes (-want +got):\n%s", diff)
	}
	rec, err := Unpack(msg, frame, 8)
	if err != nil || rec["B"] != 0xff {
		t.Fatalf("unpack = %v, %v", rec, err)
	}
}

func TestSignExtension(t *testing.T) {
	signed := sig("S", 0, 4, model.Intel)
	signed.Signed = true
	msg := &model.Message{Name: "M", DLC: 1, Signals: []*model.Signal{signed}}

	rec, err := Unpack(msg, 0x8, 1)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := Decode(signed, rec["S"]); got != -8 {
		t.Fatalf("signed 0b1000 decoded to %v, want -8", got)
	}
	if Pack(msg, rec) != 0x8 {
		t.Fatalf("sign extension leaked outside the field")
	}

	unsigned := sig("U", 0, 4, model.Intel)
	msg = &model.Message{Name: "M", DLC: 1, Signals: []*model.Signal{unsigned}}
	rec, err = Unpack(msg, 0x8, 1)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := Decode(unsigned, rec["U"]); got != 8 {
		t.Fatalf("unsigned 0b1000 decoded to %v, want 8", got)
	}

	full := sig("F", 0, 8, model.Intel)
	full.Signed = true
	if f := layout.FieldFor(full); f.SignMask != 0 {
		t.Fatalf("full-width signed field should need no extension, got %#x", f.SignMask)
	}
	if got := Decode(full, 0xff); got != -1 {
		t.Fatalf("0xff as int8 = %v, want -1", got)
	}
}

func TestMotorolaPlacement(t *testing.T) {
	s := sig("B", 7, 8, model.Motorola)
	msg := &model.Message{Name: "M", DLC: 8, Signals: []*model.Signal{s}}
	if got := Pack(msg, Record{"B": 0xab}); got != 0xab {
		t.Fatalf("start 7 length 8 should fill byte 0, got %#x", got)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6, 7}, layout.Bits(s)); diff != "" {
		t.Fatalf("bits (-want +got):\n%s", diff)
	}

	word := sig("W", 7, 16, model.Motorola)
	msg = &model.Message{Name: "M", DLC: 8, Signals: []*model.Signal{word}}
	frame := Pack(msg, Record{"W": 0x1234})
	if diff := cmp.Diff([]byte{0x12, 0x34}, FrameBytes(frame, 2)); diff != "" {
		t.Fatalf("big-endian word bytes (-want +got):\n%s", diff)
	}

	if got := layout.PhysicalBit(model.Motorola, 0); got != 56 {
		t.Fatalf("start bit 0 maps to %d, want 56", got)
	}
}

func TestScaling(t *testing.T) {
	s := sig("Speed", 0, 16, model.Intel)
	s.Scaling = 0.1
	s.Offset = 5.0
	if got := Decode(s, 100); math.Abs(got-15.0) > 1e-9 {
		t.Fatalf("decode(100) = %v, want 15", got)
	}
	if got := Encode(s, 15.0); got != 100 {
		t.Fatalf("encode(15) = %d, want 100", got)
	}
	if got := Encode(s, 4.0); got != 0xfff6 {
		t.Fatalf("encode(4) = %#x, want the 16-bit pattern of -10", got)
	}
}

func TestDLCGate(t *testing.T) {
	s := sig("X", 0, 8, model.Intel)
	msg := &model.Message{Name: "M", DLC: 4, Signals: []*model.Signal{s}}
	rec, err := Unpack(msg, 0xff, 2)
	if !errors.Is(err, model.ErrUnpackLengthTooShort) {
		t.Fatalf("expected ErrUnpackLengthTooShort, got %v", err)
	}
	if rec != nil {
		t.Fatalf("no fields should be decoded, got %v", rec)
	}
	if model.KindOf(err) != model.UnpackLengthTooShort {
		t.Fatalf("KindOf = %v", model.KindOf(err))
	}

	msg.DLC = 0
	if _, err := Unpack(msg, 0xff, 0); err != nil {
		t.Fatalf("DLC 0 should skip the length check: %v", err)
	}
}

func TestZeroSignalMessage(t *testing.T) {
	msg := &model.Message{Name: "Empty", DLC: 2}
	if got := Pack(msg, Record{"ignored": 1}); got != 0 {
		t.Fatalf("pack of empty message = %#x", got)
	}
	rec, err := Unpack(msg, 0xdead, 2)
	if err != nil || len(rec) != 0 {
		t.Fatalf("unpack of empty message: %v %v", rec, err)
	}
	if _, err := Unpack(msg, 0, 1); !errors.Is(err, model.ErrUnpackLengthTooShort) {
		t.Fatalf("empty message should still check DLC, got %v", err)
	}
}

func muxMessage() *model.Message {
	sel := sig("Sel", 0, 8, model.Intel)
	sel.MuxRole = model.MuxMultiplexor
	a := sig("A", 8, 8, model.Intel)
	a.MuxRole, a.SwitchValue = model.MuxMultiplexed, 1
	b := sig("B", 8, 16, model.Intel)
	b.MuxRole, b.SwitchValue = model.MuxMultiplexed, 2
	return &model.Message{
		Name:    "Mux",
		DLC:     8,
		Signals: []*model.Signal{sel, a, b},
		Muxed: []model.MuxLink{
			{Multiplexor: "Sel", Signal: "A", Range: model.MultiplexRange{Min: 1, Max: 1}},
			{Multiplexor: "Sel", Signal: "B", Range: model.MultiplexRange{Min: 2, Max: 2}},
		},
	}
}

func TestMultiplexing(t *testing.T) {
	msg := muxMessage()

	frame := Pack(msg, Record{"Sel": 2, "A": 0xff, "B": 0xbeef})
	if frame != 0xbeef02 {
		t.Fatalf("frame = %#x, want only B packed", frame)
	}
	rec, err := Unpack(msg, frame, 8)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if diff := cmp.Diff(Record{"Sel": 2, "B": 0xbeef}, rec); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}

	_, err = Unpack(msg, 0x7, 8)
	if !errors.Is(err, model.ErrUnmatchedMultiplexValue) {
		t.Fatalf("expected ErrUnmatchedMultiplexValue, got %v", err)
	}
	if Pack(msg, Record{"Sel": 7, "A": 1}) != 0x7 {
		t.Fatalf("unmatched switch should pack unconditional signals only")
	}
}

func TestFloats(t *testing.T) {
	f32 := sig("F", 0, 32, model.Intel)
	f32.Float = model.Single
	f64 := sig("D", 7, 64, model.Motorola)
	f64.Float = model.Double

	raw := Encode(f32, 1.5)
	if raw != uint64(math.Float32bits(1.5)) {
		t.Fatalf("single encode = %#x", raw)
	}
	msg := &model.Message{Name: "F", DLC: 4, Signals: []*model.Signal{f32}}
	rec, err := Unpack(msg, Pack(msg, Record{"F": raw}), 4)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := Decode(f32, rec["F"]); got != 1.5 {
		t.Fatalf("single decode = %v", got)
	}

	msg = &model.Message{Name: "D", DLC: 8, Signals: []*model.Signal{f64}}
	rec, err = Unpack(msg, Pack(msg, Record{"D": Encode(f64, -2.25)}), 8)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := Decode(f64, rec["D"]); got != -2.25 {
		t.Fatalf("double decode = %v", got)
	}
}

func TestFrameBytes(t *testing.T) {
	frame := FrameFromBytes([]byte{0x01, 0x02, 0x03})
	if frame != 0x030201 {
		t.Fatalf("frame = %#x", frame)
	}
	if diff := cmp.Diff([]byte{0x01, 0x02, 0x03, 0x00}, FrameBytes(frame, 4)); diff != "" {
		t.Fatalf("bytes (-want +got):\n%s", diff)
	}
	if len(FrameBytes(frame, 12)) != 8 {
		t.Fatalf("frame bytes should cap at 8")
	}
}

func TestFormatAndValues(t *testing.T) {
	temp := sig("Temp", 0, 8, model.Intel)
	temp.Signed = true
	temp.Offset = -40
	temp.Units = "degC"
	temp.ValueTable = &model.ValueTable{Entries: []model.ValueEntry{{Value: -1, Name: "Invalid"}}}
	msg := &model.Message{Name: "M", DLC: 1, Signals: []*model.Signal{temp}}

	rec, err := Unpack(msg, 0xff, 1)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got, want := Format(msg, rec), "Temp = -41.000 (wire: -1)\n"; got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
	want := []Value{{Signal: "Temp", Raw: 0xff, Wire: "-1", Physical: "-41", Units: "degC", Label: "Invalid"}}
	if diff := cmp.Diff(want, Values(msg, rec)); diff != "" {
		t.Fatalf("values (-want +got):\n%s", diff)
	}
}
