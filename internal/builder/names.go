package builder

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Multiplexed marker: m<switch> with an optional trailing M for nested
	// multiplexors.
	muxedPattern = regexp.MustCompile(`^m(\d+)(M?)$`)

	nonIdentPattern = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// muxMarker decodes the text between a signal name and its colon.
// Returns isMux, isMuxed, switch value, nested flag and ok.
func muxMarker(text string) (bool, bool, uint64, bool, bool) {
	if text == "M" {
		return true, false, 0, false, true
	}
	m := muxedPattern.FindStringSubmatch(text)
	if m == nil {
		return false, false, 0, false, false
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return false, false, 0, false, false
	}
	return false, true, v, m[2] == "M", true
}

// Identifier turns an arbitrary name into a C identifier.
func Identifier(name string) string {
	id := nonIdentPattern.ReplaceAllString(name, "_")
	if id == "" {
		return "can"
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "_" + id
	}
	return id
}

// DatabaseName derives a database name from a source path.
func DatabaseName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "can"
	}
	return Identifier(base)
}
