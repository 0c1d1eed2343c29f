package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

func TestPhysicalBit(t *testing.T) {
	tests := []struct {
		endian model.Endianness
		start  int
		want   int
	}{
		{model.Motorola, 7, 63},
		{model.Motorola, 0, 56},
		{model.Motorola, 15, 55},
		{model.Motorola, 63, 7},
		{model.Intel, 0, 0},
		{model.Intel, 37, 37},
	}
	for _, tt := range tests {
		if got := PhysicalBit(tt.endian, tt.start); got != tt.want {
			t.Fatalf("PhysicalBit(%s, %d) = %d, want %d", tt.endian, tt.start, got, tt.want)
		}
	}
}

func TestMotorolaByteZeroOccupiesFrameBitsZeroToSeven(t *testing.T) {
	sig := &model.Signal{Name: "S", StartBit: 7, Length: 8, Endianness: model.Motorola}
	want := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if diff := cmp.Diff(want, Bits(sig)); diff != "" {
		t.Fatalf("bits mismatch (-want +got):\n%s", diff)
	}

	low := &model.Signal{Name: "L", StartBit: 0, Length: 1, Endianness: model.Motorola}
	if Shift(low) != 56 {
		t.Fatalf("expected start bit 0 to sit at accumulator bit 56, got %d", Shift(low))
	}
	if diff := cmp.Diff([]int{0}, Bits(low)); diff != "" {
		t.Fatalf("bits mismatch (-want +got):\n%s", diff)
	}
}

func TestMotorolaStartBitZeroLengthEight(t *testing.T) {
	sig := &model.Signal{Name: "S", StartBit: 0, Length: 8, Endianness: model.Motorola}
	if PhysicalBit(model.Motorola, sig.StartBit) != 56 {
		t.Fatalf("start bit 0 should map to physical bit 56")
	}
	// The MSB is byte 0 bit 0; the remaining seven bits fill byte 1 from
	// bit 7 down to bit 1.
	if got := Shift(sig); got != 49 {
		t.Fatalf("Shift = %d, want 49", got)
	}
	want := []int{0, 9, 10, 11, 12, 13, 14, 15}
	if diff := cmp.Diff(want, Bits(sig)); diff != "" {
		t.Fatalf("bits mismatch (-want +got):\n%s", diff)
	}
	if !Fits(sig) {
		t.Fatalf("start 0 length 8 should fit")
	}
}

func TestMotorolaSignalCrossesIntoNextByte(t *testing.T) {
	sig := &model.Signal{Name: "S", StartBit: 3, Length: 12, Endianness: model.Motorola}
	// MSB at byte 0 bit 3, continuing through byte 1.
	want := []int{0, 1, 2, 3, 8, 9, 10, 11, 12, 13, 14, 15}
	if diff := cmp.Diff(want, Bits(sig)); diff != "" {
		t.Fatalf("bits mismatch (-want +got):\n%s", diff)
	}
}

func TestFits(t *testing.T) {
	tests := []struct {
		name string
		sig  model.Signal
		want bool
	}{
		{"intel full frame", model.Signal{StartBit: 0, Length: 64, Endianness: model.Intel}, true},
		{"intel overflow", model.Signal{StartBit: 60, Length: 8, Endianness: model.Intel}, false},
		{"motorola last byte", model.Signal{StartBit: 63, Length: 8, Endianness: model.Motorola}, true},
		{"motorola underflow", model.Signal{StartBit: 56, Length: 2, Endianness: model.Motorola}, false},
		{"zero length", model.Signal{StartBit: 0, Length: 0, Endianness: model.Intel}, false},
		{"start past frame", model.Signal{StartBit: 64, Length: 1, Endianness: model.Intel}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fits(&tt.sig); got != tt.want {
				t.Fatalf("Fits = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFieldMasks(t *testing.T) {
	if Mask(64) != ^uint64(0) || Mask(4) != 0xF || Mask(1) != 1 {
		t.Fatalf("unexpected masks")
	}
	f := FieldFor(&model.Signal{Length: 4, Signed: true, Endianness: model.Intel})
	if f.Width != 8 || f.SignMask != 0xF0 || f.TopBit != 0x8 {
		t.Fatalf("unexpected signed field: %+v", f)
	}
	if f := FieldFor(&model.Signal{Length: 8, Signed: true}); f.SignMask != 0 {
		t.Fatalf("full-width signed field should need no extension, got %#x", f.SignMask)
	}
	if f := FieldFor(&model.Signal{Length: 12, Signed: false}); f.SignMask != 0 || f.Width != 16 {
		t.Fatalf("unexpected unsigned field: %+v", f)
	}
	if f := FieldFor(&model.Signal{Length: 32, Signed: true, Float: model.Single}); f.SignMask != 0 {
		t.Fatalf("float fields are never sign extended")
	}
	if f := FieldFor(&model.Signal{Length: 20, Signed: true}); f.SignMask != 0xFFF00000 || f.Width != 32 {
		t.Fatalf("unexpected 20-bit field: %+v", f)
	}
}

func TestPlanMessageOrdering(t *testing.T) {
	msg := &model.Message{
		Name: "M",
		Signals: []*model.Signal{
			{Name: "C", StartBit: 40, Length: 8, Endianness: model.Intel},
			{Name: "A", StartBit: 7, Length: 16, Endianness: model.Motorola},
			{Name: "B", StartBit: 24, Length: 16, Endianness: model.Intel},
			{Name: "D", StartBit: 48, Length: 1, Endianness: model.Intel},
		},
	}
	p := PlanMessage(msg)

	var order, storage []string
	for _, s := range msg.Signals {
		order = append(order, s.Name)
	}
	for _, s := range p.Storage {
		storage = append(storage, s.Name)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, order); diff != "" {
		t.Fatalf("processing order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, storage); diff != "" {
		t.Fatalf("storage order (-want +got):\n%s", diff)
	}
	if msg.Signals[0].PhysicalBit != 63 {
		t.Fatalf("expected physical bit 63 for A, got %d", msg.Signals[0].PhysicalBit)
	}
	if !p.Uses[model.Motorola] || !p.Uses[model.Intel] {
		t.Fatalf("expected both accumulators in use")
	}
}

func TestPlanArms(t *testing.T) {
	msg := &model.Message{
		Name: "M",
		Signals: []*model.Signal{
			{Name: "Sel", StartBit: 0, Length: 8, Endianness: model.Intel, MuxRole: model.MuxMultiplexor},
			{Name: "X", StartBit: 8, Length: 8, Endianness: model.Intel, MuxRole: model.MuxMultiplexed, SwitchValue: 2},
			{Name: "Y", StartBit: 8, Length: 16, Endianness: model.Intel, MuxRole: model.MuxMultiplexed, SwitchValue: 1},
			{Name: "Z", StartBit: 24, Length: 8, Endianness: model.Intel, MuxRole: model.MuxMultiplexed, SwitchValue: 2},
		},
		Muxed: []model.MuxLink{
			{Multiplexor: "Sel", Signal: "X"},
			{Multiplexor: "Sel", Signal: "Y"},
			{Multiplexor: "Sel", Signal: "Z"},
		},
	}
	p := PlanMessage(msg)
	if got := len(p.Unconditional()); got != 1 {
		t.Fatalf("expected only the multiplexor unconditional, got %d", got)
	}
	arms := p.Arms()
	if len(arms) != 2 || arms[0].Value != 1 || arms[1].Value != 2 {
		t.Fatalf("unexpected arms: %+v", arms)
	}
	if len(arms[1].Fields) != 2 || arms[1].Fields[0].Signal.Name != "X" || arms[1].Fields[1].Signal.Name != "Z" {
		t.Fatalf("unexpected arm 2 fields")
	}
}
