package model

import (
	"errors"
	"fmt"
)

// ErrorKind names a class of database or codec failure.
type ErrorKind int

const (
	MalformedNumber ErrorKind = iota + 1
	MultiplexRangeViolation
	InvalidFloatWidth
	ZeroScaling
	ZeroBitLength
	SignalOutOfFrame
	DuplicateSignal
	UnpackLengthTooShort
	UnmatchedMultiplexValue
)

var kindNames = map[ErrorKind]string{
	MalformedNumber:         "malformed number",
	MultiplexRangeViolation: "multiplex range violation",
	InvalidFloatWidth:       "invalid float width",
	ZeroScaling:             "zero scaling",
	ZeroBitLength:           "zero bit length",
	SignalOutOfFrame:        "signal out of frame",
	DuplicateSignal:         "duplicate signal",
	UnpackLengthTooShort:    "unpack length too short",
	UnmatchedMultiplexValue: "unmatched multiplex value",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Sentinels for errors.Is matching against *SemanticError and codec errors.
var (
	ErrMalformedNumber         = kindError(MalformedNumber)
	ErrMultiplexRangeViolation = kindError(MultiplexRangeViolation)
	ErrInvalidFloatWidth       = kindError(InvalidFloatWidth)
	ErrZeroScaling             = kindError(ZeroScaling)
	ErrZeroBitLength           = kindError(ZeroBitLength)
	ErrSignalOutOfFrame        = kindError(SignalOutOfFrame)
	ErrDuplicateSignal         = kindError(DuplicateSignal)
	ErrUnpackLengthTooShort    = kindError(UnpackLengthTooShort)
	ErrUnmatchedMultiplexValue = kindError(UnmatchedMultiplexValue)
)

type kindErr struct {
	kind ErrorKind
}

func kindError(k ErrorKind) error {
	return &kindErr{kind: k}
}

func (e *kindErr) Error() string {
	return e.kind.String()
}

// KindOf returns the kind carried by err, or 0.
func KindOf(err error) ErrorKind {
	var se *SemanticError
	if errors.As(err, &se) {
		return se.Kind
	}
	var ke *kindErr
	if errors.As(err, &ke) {
		return ke.kind
	}
	return 0
}

// SemanticError identifies the message and signal a build failure came from.
type SemanticError struct {
	Kind    ErrorKind
	Message string
	Signal  string
	Line    int
	Detail  string
}

func (e *SemanticError) Error() string {
	where := e.Message
	if e.Signal != "" {
		where += "." + e.Signal
	}
	if where == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d): %s: %s", where, e.Line, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", where, e.Kind, e.Detail)
}

// Is matches the sentinel of the same kind.
func (e *SemanticError) Is(target error) bool {
	ke, ok := target.(*kindErr)
	return ok && ke.kind == e.Kind
}
