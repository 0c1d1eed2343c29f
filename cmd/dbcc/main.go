// =============================================================================
// dbcc - DBC to C codec compiler
// =============================================================================
//
// dbcc turns a CAN database (.dbc) into a C header/source pair that packs
// and unpacks every message bit-for-bit.
//
// THE PIPELINE:
//   1. Parser turns DBC text into a generic tagged node tree
//   2. Builder interprets the tree into a validated database
//   3. CUE Validator enforces the database contract (crash on mismatch)
//   4. Layout planner computes per-signal shift/mask/sign extension
//   5. Code generator emits per-message C; output assembly adds dispatch
//   6. Tree-sitter re-parses the emitted source before it is written
//   7. OPA lint rules report overlaps, DLC overruns and range problems
//
// WHEN GENERATED CODE IS WRONG:
//   Start at the beginning of the pipeline, not the end!
//   Parser issues → Builder issues → Layout issues → Emitter issues
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
