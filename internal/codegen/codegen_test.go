package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

var codes = CodesFor("CAN")

func intelMessage() *model.Message {
	return &model.Message{
		Name: "Engine",
		ID:   0x100,
		DLC:  8,
		Signals: []*model.Signal{
			{Name: "Temp", StartBit: 16, Length: 4, Endianness: model.Intel, Signed: true, Scaling: 1},
			{Name: "Speed", StartBit: 0, Length: 16, Endianness: model.Intel, Scaling: 0.1, Offset: 5, Units: "km/h"},
		},
	}
}

func generate(t *testing.T, msg *model.Message, print bool) *Fragment {
	t.Helper()
	frag, err := Message("can_0x100_"+msg.Name, layout.PlanMessage(msg), Options{Codes: codes, Print: print})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return frag
}

func mustContain(t *testing.T, text string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(text, w) {
			t.Fatalf("expected %q in:\n%s", w, text)
		}
	}
}

func TestIntelMessage(t *testing.T) {
	frag := generate(t, intelMessage(), true)

	mustContain(t, frag.Header,
		"typedef struct {",
		"uint16_t Speed;",
		"int8_t Temp;",
		"} can_0x100_Engine_t;",
		"extern can_0x100_Engine_t can_0x100_Engine_data;",
		"int pack_can_0x100_Engine(const can_0x100_Engine_t *pack, uint64_t *data);",
		"int unpack_can_0x100_Engine(can_0x100_Engine_t *unpack, uint64_t data, uint8_t dlc);",
		"double decode_can_0x100_Engine_Speed(const can_0x100_Engine_t *record);",
		"int8_t decode_can_0x100_Engine_Temp(const can_0x100_Engine_t *record);",
		"int encode_can_0x100_Engine_Speed(can_0x100_Engine_t *record, double value);",
		"int print_can_0x100_Engine(const can_0x100_Engine_t *print, FILE *output);",
	)
	if strings.Index(frag.Header, "uint16_t Speed;") > strings.Index(frag.Header, "int8_t Temp;") {
		t.Fatalf("struct fields should be ordered widest first:\n%s", frag.Header)
	}

	mustContain(t, frag.Source,
		"can_0x100_Engine_t can_0x100_Engine_data;",
		"uint64_t i = 0;",
		"x = ((uint64_t)(uint16_t)(pack->Speed)) & 0xffffu;",
		"x = ((uint64_t)(uint8_t)(pack->Temp)) & 0xfu;",
		"x <<= 16;",
		"*data = i;",
		"if (dlc < 8)",
		"return CAN_UNPACK_LENGTH_TOO_SHORT;",
		"x = (i >> 16) & 0xfu;",
		"x = (x & 0x8u) ? (x | 0xf0u) : x;",
		"unpack->Temp = (int8_t)x;",
		"rval *= 0.1;",
		"rval += 5.0;",
		"value -= 5.0;",
		"value /= 0.1;",
		"record->Speed = (uint16_t)(value + (value < 0 ? -0.5 : 0.5));",
		`"Speed = %.3f (wire: %.0f)\n"`,
		`r = fprintf(output, "Temp = %lld.000 (wire: %lld)\n", (long long)decode_can_0x100_Engine_Temp(print), (long long)(print->Temp));`,
	)
	for _, unwanted := range []string{"reverse_byte_order", "uint64_t m"} {
		if strings.Contains(frag.Source, unwanted) {
			t.Fatalf("intel-only message should not reference %q:\n%s", unwanted, frag.Source)
		}
	}
	if strings.Contains(frag.Source, "x = (x & 0x8000u)") {
		t.Fatalf("unsigned signal should not be sign extended")
	}
}

func TestMotorolaMessage(t *testing.T) {
	msg := &model.Message{
		Name: "Body",
		DLC:  2,
		Signals: []*model.Signal{
			{Name: "Rpm", StartBit: 7, Length: 16, Endianness: model.Motorola, Scaling: 1},
		},
	}
	frag := generate(t, msg, false)

	mustContain(t, frag.Source,
		"uint64_t m = 0;",
		"x <<= 48;",
		"m |= x;",
		"*data = reverse_byte_order(m);",
		"if (dlc < 2)",
		"const uint64_t m = reverse_byte_order(data);",
		"x = (m >> 48) & 0xffffu;",
		"return record->Rpm;",
		"record->Rpm = value;",
	)
	if strings.Contains(frag.Source, "uint64_t i") {
		t.Fatalf("motorola-only message should not declare the intel accumulator:\n%s", frag.Source)
	}
	if strings.Contains(frag.Source, "print_") || strings.Contains(frag.Header, "print_") {
		t.Fatalf("print routine should be omitted")
	}
}

func TestMultiplexedMessage(t *testing.T) {
	msg := &model.Message{
		Name: "Mux",
		DLC:  8,
		Signals: []*model.Signal{
			{Name: "Sel", StartBit: 0, Length: 8, Endianness: model.Intel, Scaling: 1, MuxRole: model.MuxMultiplexor},
			{Name: "A", StartBit: 8, Length: 8, Endianness: model.Intel, Scaling: 1, MuxRole: model.MuxMultiplexed, SwitchValue: 1},
			{Name: "B", StartBit: 8, Length: 16, Endianness: model.Intel, Scaling: 1, MuxRole: model.MuxMultiplexed, SwitchValue: 2},
		},
		Muxed: []model.MuxLink{
			{Multiplexor: "Sel", Signal: "A", Range: model.MultiplexRange{Min: 1, Max: 1}},
			{Multiplexor: "Sel", Signal: "B", Range: model.MultiplexRange{Min: 2, Max: 2}},
		},
	}
	frag := generate(t, msg, false)

	mustContain(t, frag.Source,
		"switch (pack->Sel) {",
		"switch (unpack->Sel) {",
		"case 1u:",
		"case 2u:",
		"return CAN_UNMATCHED_MULTIPLEX_VALUE;",
	)
	unpack := frag.Source[strings.Index(frag.Source, "int unpack_"):]
	if strings.Index(unpack, "unpack->Sel = ") > strings.Index(unpack, "switch (unpack->Sel)") {
		t.Fatalf("multiplexor must be unpacked before the switch:\n%s", unpack)
	}
	pack := frag.Source[:strings.Index(frag.Source, "int unpack_")]
	if strings.Contains(pack, "UNMATCHED") {
		t.Fatalf("pack should not fail on unmatched switch values:\n%s", pack)
	}
}

func TestEmptyMessage(t *testing.T) {
	frag := generate(t, &model.Message{Name: "Empty", DLC: 0}, true)
	mustContain(t, frag.Header, "uint8_t reserved_;")
	mustContain(t, frag.Source, "*data = 0;", "(void)dlc;", "(void)output;")
	if strings.Contains(frag.Source, "uint64_t x") {
		t.Fatalf("no scratch variable expected:\n%s", frag.Source)
	}
}

func TestFloatSignals(t *testing.T) {
	msg := &model.Message{
		Name: "F",
		DLC:  8,
		Signals: []*model.Signal{
			{Name: "Load", StartBit: 0, Length: 32, Endianness: model.Intel, Float: model.Single, Scaling: 1},
		},
	}
	frag := generate(t, msg, true)
	mustContain(t, frag.Header, "float Load;", "float decode_can_0x100_F_Load(")
	mustContain(t, frag.Source,
		"x = float_to_bits(pack->Load) & 0xffffffffu;",
		"unpack->Load = bits_to_float(x);",
		"(wire: %f)",
	)

	db := &model.Database{Messages: []*model.Message{msg}}
	pre := Prelude(db)
	mustContain(t, pre, "float_to_bits", "bits_to_float", "memcpy")
	if strings.Contains(pre, "double_to_bits") || strings.Contains(pre, "reverse_byte_order") {
		t.Fatalf("unused helpers emitted:\n%s", pre)
	}
}

func TestInvalidFloatWidth(t *testing.T) {
	msg := &model.Message{
		Name:    "Bad",
		DLC:     8,
		Signals: []*model.Signal{{Name: "X", Length: 16, Endianness: model.Intel, Float: model.Single, Scaling: 1}},
	}
	_, err := Message("bad", layout.PlanMessage(msg), Options{Codes: codes})
	if !errors.Is(err, model.ErrInvalidFloatWidth) {
		t.Fatalf("expected ErrInvalidFloatWidth, got %v", err)
	}
}

func TestLiteral(t *testing.T) {
	tests := map[float64]string{
		1:      "1.0",
		-40:    "-40.0",
		0.25:   "0.25",
		1e-05:  "1e-05",
		1234.5: "1234.5",
	}
	for in, want := range tests {
		if got := Literal(in); got != want {
			t.Fatalf("Literal(%v) = %q, want %q", in, got, want)
		}
	}
	if got := Hex(1 << 40); got != "0x10000000000ull" {
		t.Fatalf("Hex = %q", got)
	}
}
