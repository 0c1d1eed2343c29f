// Package model holds the CAN database entities produced by the builder.
// Values are plain data; after the layout planner has run they are treated
// as read-only by the generators.
package model

import "sort"

// Endianness is the byte-ordering tag of a signal. The numeric values match
// the DBC "@0"/"@1" notation and index per-ordering accumulators.
type Endianness int

const (
	// Motorola is big-endian bit numbering (DBC "@0").
	Motorola Endianness = 0
	// Intel is little-endian bit numbering (DBC "@1").
	Intel Endianness = 1
)

// NumOrderings is the number of byte-ordering conventions.
const NumOrderings = 2

func (e Endianness) String() string {
	if e == Motorola {
		return "motorola"
	}
	return "intel"
}

// MuxRole describes a signal's part in multiplexing.
type MuxRole int

const (
	MuxNone MuxRole = iota
	MuxMultiplexor
	MuxMultiplexed
)

func (r MuxRole) String() string {
	switch r {
	case MuxMultiplexor:
		return "multiplexor"
	case MuxMultiplexed:
		return "multiplexed"
	}
	return "none"
}

// FloatKind records IEEE-754 reinterpretation declared by SIG_VALTYPE_.
type FloatKind int

const (
	NotFloat FloatKind = iota
	Single
	Double
)

// Signal is a bit field within a message payload.
type Signal struct {
	Name        string      `json:"name"`
	StartBit    int         `json:"start_bit"`
	Length      int         `json:"length"`
	Endianness  Endianness  `json:"endianness"`
	Signed      bool        `json:"signed"`
	Float       FloatKind   `json:"float"`
	Scaling     float64     `json:"scaling"`
	Offset      float64     `json:"offset"`
	Minimum     float64     `json:"minimum"`
	Maximum     float64     `json:"maximum"`
	Units       string      `json:"units"`
	Receivers   []string    `json:"receivers"`
	MuxRole     MuxRole     `json:"mux_role"`
	SwitchValue uint64      `json:"switch_value"`
	ValueTable  *ValueTable `json:"value_table,omitempty"`
	Comment     string      `json:"comment,omitempty"`
	Line        int         `json:"line,omitempty"`

	// PhysicalBit is the index of StartBit in the normalized frame word.
	// Set by the layout planner.
	PhysicalBit int `json:"physical_bit"`
}

// IsFloat reports whether the raw field is an IEEE-754 pattern.
func (s *Signal) IsFloat() bool {
	return s.Float != NotFloat
}

// IsIdentity reports whether scaling degenerates to a plain cast.
func (s *Signal) IsIdentity() bool {
	return s.Scaling == 1.0 && s.Offset == 0.0
}

// ValueEntry is one named raw value.
type ValueEntry struct {
	Value int64  `json:"value"`
	Name  string `json:"name"`
}

// ValueTable enumerates named values of a signal, ascending by value.
type ValueTable struct {
	MessageID uint32       `json:"message_id"`
	Signal    string       `json:"signal"`
	Entries   []ValueEntry `json:"entries"`
}

// Sort orders entries ascending by value, keeping source order for ties.
func (vt *ValueTable) Sort() {
	sort.SliceStable(vt.Entries, func(i, j int) bool {
		return vt.Entries[i].Value < vt.Entries[j].Value
	})
}

// Lookup returns the display name for a raw value.
func (vt *ValueTable) Lookup(v int64) (string, bool) {
	if vt == nil {
		return "", false
	}
	for _, e := range vt.Entries {
		if e.Value == v {
			return e.Name, true
		}
	}
	return "", false
}

// MultiplexRange declares which switch values select a multiplexed signal.
type MultiplexRange struct {
	MessageID   uint32 `json:"message_id"`
	Multiplexed string `json:"multiplexed"`
	Multiplexor string `json:"multiplexor"`
	Min         uint64 `json:"min"`
	Max         uint64 `json:"max"`
}

// Contains reports whether v lies in [Min, Max].
func (r MultiplexRange) Contains(v uint64) bool {
	return v >= r.Min && v <= r.Max
}

// MuxLink is a non-owning reference from a multiplexor to a signal it
// selects. Both ends are named signals of the same message.
type MuxLink struct {
	Multiplexor string         `json:"multiplexor"`
	Signal      string         `json:"signal"`
	Range       MultiplexRange `json:"range"`
}

// Message is a CAN frame definition.
type Message struct {
	Name     string    `json:"name"`
	Sender   string    `json:"sender"`
	ID       uint32    `json:"id"`
	Extended bool      `json:"extended"`
	DLC      int       `json:"dlc"`
	Signals  []*Signal `json:"signals"`
	Comment  string    `json:"comment,omitempty"`
	Muxed    []MuxLink `json:"muxed,omitempty"`
	Line     int       `json:"line,omitempty"`
}

// Signal returns the named signal.
func (m *Message) Signal(name string) *Signal {
	for _, s := range m.Signals {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Multiplexor returns the message's multiplexor signal, if any.
func (m *Message) Multiplexor() (*Signal, bool) {
	for _, s := range m.Signals {
		if s.MuxRole == MuxMultiplexor {
			return s, true
		}
	}
	return nil, false
}

// Linked reports whether sig has been linked to a multiplexor.
func (m *Message) Linked(sig string) bool {
	for _, l := range m.Muxed {
		if l.Signal == sig {
			return true
		}
	}
	return false
}

// MultiplexedBy returns the signals linked to the named multiplexor, in
// message order.
func (m *Message) MultiplexedBy(multiplexor string) []*Signal {
	var out []*Signal
	for _, s := range m.Signals {
		for _, l := range m.Muxed {
			if l.Multiplexor == multiplexor && l.Signal == s.Name {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// SwitchValues returns the distinct switch values of the signals linked to
// the named multiplexor, ascending.
func (m *Message) SwitchValues(multiplexor string) []uint64 {
	seen := make(map[uint64]bool)
	var out []uint64
	for _, s := range m.MultiplexedBy(multiplexor) {
		if !seen[s.SwitchValue] {
			seen[s.SwitchValue] = true
			out = append(out, s.SwitchValue)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Orderings reports which byte-ordering conventions the message uses.
func (m *Message) Orderings() [NumOrderings]bool {
	var used [NumOrderings]bool
	for _, s := range m.Signals {
		used[s.Endianness] = true
	}
	return used
}

// Database is a built CAN database.
type Database struct {
	Name            string           `json:"name"`
	File            string           `json:"file,omitempty"`
	Version         string           `json:"version,omitempty"`
	Nodes           []string         `json:"nodes"`
	Comment         string           `json:"comment,omitempty"`
	Messages        []*Message       `json:"messages"`
	ValueTables     []*ValueTable    `json:"value_tables"`
	MultiplexRanges []MultiplexRange `json:"multiplex_ranges"`
	UseFloat        bool             `json:"use_float"`
}

// Message returns the message with the given identifier.
func (db *Database) Message(id uint32) *Message {
	for _, m := range db.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// MessageByName returns the message with the given name.
func (db *Database) MessageByName(name string) *Message {
	for _, m := range db.Messages {
		if m.Name == name {
			return m
		}
	}
	return nil
}
