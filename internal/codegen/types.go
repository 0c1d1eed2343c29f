package codegen

import (
	"fmt"

	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

// UintType names the unsigned C type of a native width.
func UintType(width int) string {
	return fmt.Sprintf("uint%d_t", width)
}

// CType selects the C storage type of a signal: the narrowest integer that
// holds its bits, or float/double for IEEE-754 signals.
func CType(sig *model.Signal) (string, error) {
	if sig.IsFloat() {
		switch sig.Length {
		case 32:
			return "float", nil
		case 64:
			return "double", nil
		}
		return "", &model.SemanticError{
			Kind:   model.InvalidFloatWidth,
			Signal: sig.Name,
			Detail: fmt.Sprintf("floating signal must be 32 or 64 bits, got %d", sig.Length),
		}
	}
	w := layout.NativeWidth(sig.Length)
	if sig.Signed {
		return fmt.Sprintf("int%d_t", w), nil
	}
	return UintType(w), nil
}

// ScaledType is the engineering-unit type: the storage type for identity
// transforms, double otherwise.
func ScaledType(sig *model.Signal) (string, error) {
	t, err := CType(sig)
	if err != nil {
		return "", err
	}
	if sig.IsIdentity() {
		return t, nil
	}
	return "double", nil
}
