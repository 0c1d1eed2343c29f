package output

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/robert-at-pretension-io/dbcc/internal/builder"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
	"github.com/robert-at-pretension-io/dbcc/internal/parser"
)

const bodyDBC = `VERSION ""
BU_: BCM

BO_ 257 Doors: 2 BCM
 SG_ Open : 0|4@1+ (1,0) [0|15] "" BCM

BO_ 2147483904 Lights: 8 BCM
 SG_ Level : 7|8@0+ (0.5,0) [0|127.5] "%" BCM
 SG_ Power : 8|32@1+ (1,0) [0|0] "W" BCM

SIG_VALTYPE_ 2147483904 Power : 1;
`

func buildBody(t *testing.T) *model.Database {
	t.Helper()
	root, err := parser.Parse([]byte(bodyDBC))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	db, err := builder.Build(root, builder.Options{File: "body.dbc"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return db
}

func TestMessageName(t *testing.T) {
	msg := &model.Message{Name: "Doors", ID: 0x1}
	if got := MessageName("body", msg); got != "body_0x001_Doors" {
		t.Fatalf("MessageName = %q", got)
	}
	msg.ID = 0x1abcd
	if got := MessageName("body", msg); got != "body_0x1abcd_Doors" {
		t.Fatalf("MessageName = %q", got)
	}
}

func TestGenerate(t *testing.T) {
	db := buildBody(t)
	u, err := Generate(db, Options{Print: true, Banner: "generated by dbcc"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if u.HeaderName != "body.h" || u.SourceName != "body.c" {
		t.Fatalf("unexpected file names %q %q", u.HeaderName, u.SourceName)
	}

	for _, want := range []string{
		"/* generated by dbcc */",
		"#ifndef BODY_H",
		"#define BODY_H",
		"#include <stdint.h>",
		"BODY_OK = 0,",
		"BODY_UNKNOWN_ID = -1,",
		"BODY_UNPACK_LENGTH_TOO_SHORT = -2,",
		"BODY_UNMATCHED_MULTIPLEX_VALUE = -3,",
		"} body_0x101_Doors_t;",
		"} body_0x100_Lights_t;",
		"int pack_body_message(unsigned id, uint64_t *data);",
		"int unpack_body_message(unsigned id, uint64_t data, uint8_t dlc);",
		"int print_body_message(unsigned id, FILE *output);",
	} {
		if !strings.Contains(u.Header, want) {
			t.Fatalf("header missing %q:\n%s", want, u.Header)
		}
	}

	for _, want := range []string{
		`#include "body.h"`,
		"#include <string.h>",
		"static inline uint64_t reverse_byte_order(uint64_t x)",
		"static inline float bits_to_float(uint64_t x)",
		"case 0x101u:",
		"return pack_body_0x101_Doors(&body_0x101_Doors_data, data);",
		"return unpack_body_0x100_Lights(&body_0x100_Lights_data, data, dlc);",
		"return print_body_0x100_Lights(&body_0x100_Lights_data, output);",
		"return BODY_UNKNOWN_ID;",
	} {
		if !strings.Contains(u.Source, want) {
			t.Fatalf("source missing %q:\n%s", want, u.Source)
		}
	}
	if strings.Contains(u.Source, "double_to_bits") {
		t.Fatalf("double helpers should not be emitted")
	}

	want := []string{
		"pack_body_0x101_Doors", "unpack_body_0x101_Doors",
		"decode_body_0x101_Doors_Open", "encode_body_0x101_Doors_Open",
		"print_body_0x101_Doors",
		"pack_body_0x100_Lights", "unpack_body_0x100_Lights",
		"decode_body_0x100_Lights_Level", "encode_body_0x100_Lights_Level",
		"decode_body_0x100_Lights_Power", "encode_body_0x100_Lights_Power",
		"print_body_0x100_Lights",
		"pack_body_message", "unpack_body_message", "print_body_message",
	}
	if diff := cmp.Diff(want, u.Functions); diff != "" {
		t.Fatalf("functions (-want +got):\n%s", diff)
	}
}

func TestGenerateWithoutPrint(t *testing.T) {
	db := buildBody(t)
	u, err := Generate(db, Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Contains(u.Header, "print_") || strings.Contains(u.Source, "print_") {
		t.Fatalf("print routines should be omitted")
	}
	if strings.HasPrefix(u.Header, "/*") {
		t.Fatalf("no banner expected")
	}
}

func TestGenerateEmptyDatabase(t *testing.T) {
	u, err := Generate(&model.Database{Name: "none"}, Options{Print: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, want := range []string{"(void)id;", "(void)dlc;", "(void)output;", "return NONE_UNKNOWN_ID;"} {
		if !strings.Contains(u.Source, want) {
			t.Fatalf("source missing %q:\n%s", want, u.Source)
		}
	}
	if strings.Contains(u.Source, "switch") {
		t.Fatalf("no dispatch switch expected")
	}
}

func TestDuplicateIdentifiersDispatchOnce(t *testing.T) {
	db := &model.Database{
		Name: "dup",
		Messages: []*model.Message{
			{Name: "A", ID: 5, DLC: 1},
			{Name: "B", ID: 5, DLC: 1, Extended: true},
		},
	}
	u, err := Generate(db, Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n := strings.Count(u.Source, "case 0x005u:"); n != 2 {
		t.Fatalf("expected one case per dispatch table, got %d", n)
	}
	for _, want := range []string{
		"/* dup_0x005_B shares 0x005 with dup_0x005_A; call pack_dup_0x005_B directly */",
		"/* dup_0x005_B shares 0x005 with dup_0x005_A; call unpack_dup_0x005_B directly */",
	} {
		if !strings.Contains(u.Source, want) {
			t.Fatalf("source missing %q:\n%s", want, u.Source)
		}
	}
}
