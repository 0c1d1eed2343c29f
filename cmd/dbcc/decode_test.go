package main

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/robert-at-pretension-io/dbcc/internal/builder"
	"github.com/robert-at-pretension-io/dbcc/internal/codec"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
	"github.com/robert-at-pretension-io/dbcc/internal/parser"
)

const doorsDBC = `VERSION ""
BU_: ECU

BO_ 257 Doors: 2 ECU
 SG_ Driver : 0|1@1+ (1,0) [0|1] "" ECU
 SG_ Speed : 8|8@1+ (0.5,0) [0|127.5] "km/h" ECU
`

func doorsDatabase(t *testing.T) *model.Database {
	t.Helper()
	root, err := parser.Parse([]byte(doorsDBC))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	db, err := builder.Build(root, builder.Options{File: "doors.dbc"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return db
}

func TestDecodeFrame(t *testing.T) {
	db := doorsDatabase(t)
	for _, payload := range []string{"01 14", "01:14", "0x0114"} {
		msg, rec, err := decodeFrame(db, "0x101", payload)
		if err != nil {
			t.Fatalf("decodeFrame(%q): %v", payload, err)
		}
		if msg.Name != "Doors" {
			t.Fatalf("message = %s", msg.Name)
		}
		if diff := cmp.Diff(codec.Record{"Driver": 1, "Speed": 0x14}, rec); diff != "" {
			t.Fatalf("record (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeFrameByName(t *testing.T) {
	db := doorsDatabase(t)
	msg, rec, err := decodeFrame(db, "Doors", "00 28")
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if msg.ID != 257 {
		t.Fatalf("message id = %d", msg.ID)
	}
	if diff := cmp.Diff(codec.Record{"Driver": 0, "Speed": 0x28}, rec); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}
	if _, _, err := decodeFrame(db, "Windows", "00 00"); err == nil {
		t.Fatalf("expected unknown name error")
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	db := doorsDatabase(t)
	if _, _, err := decodeFrame(db, "999", "00 00"); err == nil {
		t.Fatalf("expected unknown identifier error")
	}
	if _, _, err := decodeFrame(db, "zz", "00"); err == nil {
		t.Fatalf("expected invalid identifier error")
	}
	if _, _, err := decodeFrame(db, "257", "0g"); err == nil {
		t.Fatalf("expected invalid payload error")
	}
	if _, _, err := decodeFrame(db, "257", "00 01 02 03 04 05 06 07 08"); err == nil {
		t.Fatalf("expected oversized payload error")
	}
	_, _, err := decodeFrame(db, "257", "01")
	if !errors.Is(err, model.ErrUnpackLengthTooShort) {
		t.Fatalf("expected short frame error, got %v", err)
	}
}
