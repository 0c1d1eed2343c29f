package builder

// =============================================================================
// BUILDER: PARSE TREE IN, VALIDATED DATABASE OUT
// =============================================================================
//
// The builder is the only place that interprets token text. Everything past
// this point (layout, codegen, codec) trusts the model:
// - numbers parsed and range-checked
// - extended identifiers flagged and masked
// - value tables, comments and value types attached
// - multiplexed signals linked to their multiplexor
//
// A failure aborts the whole database. Callers decide whether to skip the
// file or stop the run; nothing here guesses a fallback width or scaling.
// =============================================================================

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/robert-at-pretension-io/dbcc/internal/ast"
	"github.com/robert-at-pretension-io/dbcc/internal/diag"
	"github.com/robert-at-pretension-io/dbcc/internal/layout"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

const (
	extendedFlag = uint64(1) << 31

	// independentSignals is the pseudo-message some tools emit to hold
	// signals not yet assigned to a frame.
	independentSignals = "VECTOR__INDEPENDENT_SIG_MSG"
)

// Diagnostic codes reported by the builder.
const (
	CodeMissingValueType = "missing-value-type"
	CodeImplicitRange    = "implicit-multiplex-range"
	CodeSkippedMessage   = "skipped-message"
	CodeNestedMux        = "nested-multiplexor"
	CodeUnusedRange      = "unused-multiplex-range"
	CodeDuplicateID      = "duplicate-message-id"
)

// Options configures a build.
type Options struct {
	// Name is the database name used as the emitted identifier prefix.
	// Derived from File when empty.
	Name string
	File string
	Sink diag.Sink
}

// msgKey identifies a message the way references in the source do.
type msgKey struct {
	id       uint32
	extended bool
}

type sigKey struct {
	msg  msgKey
	name string
}

type rangeRef struct {
	key   msgKey
	rng   model.MultiplexRange
	line  int
	usage int
}

type builder struct {
	opts Options
	sink diag.Sink

	valueTables map[sigKey]*model.ValueTable
	valueTypes  map[sigKey]int
	ranges      []*rangeRef
	msgComments map[msgKey]string
	sigComments map[sigKey]string
}

// Build constructs a Database from a parsed "dbc" tree.
func Build(root *ast.Node, opts Options) (*model.Database, error) {
	if root == nil {
		return nil, fmt.Errorf("nil parse tree")
	}
	if opts.Sink == nil {
		opts.Sink = diag.Discard
	}
	if opts.Name == "" {
		opts.Name = DatabaseName(opts.File)
	} else {
		opts.Name = Identifier(opts.Name)
	}

	b := &builder{
		opts:        opts,
		sink:        diag.WithFile(opts.Sink, opts.File),
		valueTables: make(map[sigKey]*model.ValueTable),
		valueTypes:  make(map[sigKey]int),
		msgComments: make(map[msgKey]string),
		sigComments: make(map[sigKey]string),
	}

	db := &model.Database{
		Name:            opts.Name,
		File:            opts.File,
		Version:         root.ChildText("version"),
		Nodes:           []string{},
		Messages:        []*model.Message{},
		ValueTables:     []*model.ValueTable{},
		MultiplexRanges: []model.MultiplexRange{},
	}
	if nodes := root.Child("nodes"); nodes != nil {
		for _, n := range nodes.All("node") {
			db.Nodes = append(db.Nodes, n.Text())
		}
	}

	if err := b.collect(root, db); err != nil {
		return nil, err
	}

	ids := make(map[msgKey]string)
	routed := make(map[uint32]string)
	for _, n := range root.All("message") {
		msg, err := b.buildMessage(n)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}
		key := msgKey{id: msg.ID, extended: msg.Extended}
		first, dup := ids[key]
		switch {
		case dup:
			b.report(diag.Warning, CodeDuplicateID, n.Line,
				"%s message %s reuses identifier 0x%x of %s; dispatch routes to %s",
				frameKind(msg.Extended), msg.Name, msg.ID, first, routed[msg.ID])
		case routed[msg.ID] != "":
			b.report(diag.Warning, CodeDuplicateID, n.Line,
				"%s message %s shares numeric identifier 0x%x with %s message %s; dispatch takes a bare identifier and routes to %s",
				frameKind(msg.Extended), msg.Name, msg.ID, frameKind(!msg.Extended), routed[msg.ID], routed[msg.ID])
			ids[key] = msg.Name
		default:
			ids[key] = msg.Name
			routed[msg.ID] = msg.Name
		}
		db.Messages = append(db.Messages, msg)
		for _, s := range msg.Signals {
			if s.IsFloat() {
				db.UseFloat = true
			}
		}
	}

	for _, r := range b.ranges {
		if r.usage == 0 {
			b.report(diag.Warning, CodeUnusedRange, r.line,
				"multiplex range for %s (message 0x%x) matched no multiplexed signal", r.rng.Multiplexed, r.rng.MessageID)
		}
	}
	return db, nil
}

func (b *builder) report(sev diag.Severity, code string, line int, format string, args ...any) {
	b.sink.Report(diag.Diagnostic{
		Severity: sev,
		Code:     code,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
	})
}

// collect gathers the side tables that annotate messages and signals.
func (b *builder) collect(root *ast.Node, db *model.Database) error {
	for _, n := range root.All("values") {
		key, err := b.messageRef(n)
		if err != nil {
			return err
		}
		vt := &model.ValueTable{MessageID: key.id, Signal: n.ChildText("name")}
		for _, item := range n.All("item") {
			v, err := strconv.ParseInt(item.ChildText("value"), 10, 64)
			if err != nil {
				return malformed(item.Child("value"), "", vt.Signal, "value table entry")
			}
			vt.Entries = append(vt.Entries, model.ValueEntry{Value: v, Name: item.ChildText("text")})
		}
		vt.Sort()
		b.valueTables[sigKey{key, vt.Signal}] = vt
		db.ValueTables = append(db.ValueTables, vt)
	}

	for _, n := range root.All("valtype") {
		key, err := b.messageRef(n)
		if err != nil {
			return err
		}
		typ, err := strconv.Atoi(n.ChildText("type"))
		if err != nil {
			return malformed(n.Child("type"), "", n.ChildText("name"), "signal value type")
		}
		b.valueTypes[sigKey{key, n.ChildText("name")}] = typ
	}

	for _, n := range root.All("muxval") {
		key, err := b.messageRef(n)
		if err != nil {
			return err
		}
		for _, r := range n.All("range") {
			lo, err := strconv.ParseUint(r.ChildText("min"), 10, 64)
			if err != nil {
				return malformed(r.Child("min"), "", n.ChildText("multiplexed"), "multiplex range minimum")
			}
			hi, err := strconv.ParseUint(r.ChildText("max"), 10, 64)
			if err != nil {
				return malformed(r.Child("max"), "", n.ChildText("multiplexed"), "multiplex range maximum")
			}
			if lo > hi {
				lo, hi = hi, lo
			}
			rng := model.MultiplexRange{
				MessageID:   key.id,
				Multiplexed: n.ChildText("multiplexed"),
				Multiplexor: n.ChildText("multiplexor"),
				Min:         lo,
				Max:         hi,
			}
			b.ranges = append(b.ranges, &rangeRef{key: key, rng: rng, line: r.Line})
			db.MultiplexRanges = append(db.MultiplexRanges, rng)
		}
	}

	for _, n := range root.All("comment") {
		text := n.ChildText("text")
		switch n.ChildText("kind") {
		case "":
			db.Comment = text
		case "BO_":
			key, err := b.messageRef(n)
			if err != nil {
				return err
			}
			b.msgComments[key] = text
		case "SG_":
			key, err := b.messageRef(n)
			if err != nil {
				return err
			}
			b.sigComments[sigKey{key, n.ChildText("name")}] = text
		}
	}
	return nil
}

// messageRef decodes the "id" child of an annotation node.
func (b *builder) messageRef(n *ast.Node) (msgKey, error) {
	raw, err := strconv.ParseUint(n.ChildText("id"), 10, 32)
	if err != nil {
		return msgKey{}, malformed(n.Child("id"), "", n.ChildText("name"), "message identifier")
	}
	return splitID(raw), nil
}

func splitID(raw uint64) msgKey {
	if raw&extendedFlag != 0 {
		return msgKey{id: uint32(raw &^ extendedFlag), extended: true}
	}
	return msgKey{id: uint32(raw)}
}

func frameKind(extended bool) string {
	if extended {
		return "extended"
	}
	return "standard"
}

func malformed(n *ast.Node, msg, sig, what string) error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &model.SemanticError{
		Kind:    model.MalformedNumber,
		Message: msg,
		Signal:  sig,
		Line:    line,
		Detail:  fmt.Sprintf("%s %q is not a valid number", what, n.Text()),
	}
}

// maxDLC is the largest CAN FD payload; only the first eight bytes carry
// signals.
const maxDLC = 64

func (b *builder) buildMessage(n *ast.Node) (*model.Message, error) {
	name := n.ChildText("name")
	raw, err := strconv.ParseUint(n.ChildText("id"), 10, 32)
	if err != nil {
		return nil, malformed(n.Child("id"), name, "", "message identifier")
	}
	if name == independentSignals {
		b.report(diag.Note, CodeSkippedMessage, n.Line, "skipping pseudo-message %s", name)
		return nil, nil
	}
	dlc, err := strconv.ParseUint(n.ChildText("dlc"), 10, 8)
	if err != nil || dlc > maxDLC {
		return nil, malformed(n.Child("dlc"), name, "", "data length code")
	}

	key := splitID(raw)
	msg := &model.Message{
		Name:     name,
		Sender:   n.ChildText("sender"),
		ID:       key.id,
		Extended: key.extended,
		DLC:      int(dlc),
		Signals:  []*model.Signal{},
		Comment:  b.msgComments[key],
		Line:     n.Line,
	}

	seen := make(map[string]bool)
	multiplexors := 0
	for _, sn := range n.All("signal") {
		sig, err := b.buildSignal(msg, key, sn)
		if err != nil {
			return nil, err
		}
		if seen[sig.Name] {
			return nil, &model.SemanticError{Kind: model.DuplicateSignal, Message: name, Signal: sig.Name, Line: sn.Line,
				Detail: "signal declared more than once"}
		}
		seen[sig.Name] = true
		if sig.MuxRole == model.MuxMultiplexor {
			multiplexors++
			if multiplexors > 1 {
				return nil, &model.SemanticError{Kind: model.MultiplexRangeViolation, Message: name, Signal: sig.Name, Line: sn.Line,
					Detail: "message declares more than one multiplexor"}
			}
		}
		msg.Signals = append(msg.Signals, sig)
	}

	if err := b.link(msg, key, n.Line); err != nil {
		return nil, err
	}

	sort.SliceStable(msg.Signals, func(i, j int) bool {
		return msg.Signals[i].StartBit < msg.Signals[j].StartBit
	})
	return msg, nil
}

func (b *builder) buildSignal(msg *model.Message, key msgKey, n *ast.Node) (*model.Signal, error) {
	name := n.ChildText("name")
	fail := func(kind model.ErrorKind, format string, args ...any) error {
		return &model.SemanticError{Kind: kind, Message: msg.Name, Signal: name, Line: n.Line, Detail: fmt.Sprintf(format, args...)}
	}
	intField := func(tag string, bits int) (int, error) {
		v, err := strconv.ParseUint(n.ChildText(tag), 10, bits)
		if err != nil {
			return 0, malformed(n.Child(tag), msg.Name, name, tag)
		}
		return int(v), nil
	}
	floatField := func(tag string) (float64, error) {
		v, err := strconv.ParseFloat(n.ChildText(tag), 64)
		if err != nil {
			return 0, malformed(n.Child(tag), msg.Name, name, tag)
		}
		return v, nil
	}

	sig := &model.Signal{Name: name, Units: n.ChildText("unit"), Receivers: []string{}, Line: n.Line}
	var err error
	if sig.StartBit, err = intField("startbit", 16); err != nil {
		return nil, err
	}
	if sig.Length, err = intField("length", 16); err != nil {
		return nil, err
	}
	switch n.ChildText("endianess") {
	case "0":
		sig.Endianness = model.Motorola
	case "1":
		sig.Endianness = model.Intel
	default:
		return nil, malformed(n.Child("endianess"), msg.Name, name, "byte order")
	}
	sig.Signed = n.ChildText("sign") == "-"
	if sig.Scaling, err = floatField("factor"); err != nil {
		return nil, err
	}
	if sig.Offset, err = floatField("offset"); err != nil {
		return nil, err
	}
	if sig.Minimum, err = floatField("minimum"); err != nil {
		return nil, err
	}
	if sig.Maximum, err = floatField("maximum"); err != nil {
		return nil, err
	}
	if recv := n.Child("receivers"); recv != nil {
		for _, r := range recv.All("node") {
			sig.Receivers = append(sig.Receivers, r.Text())
		}
	}

	if marker := n.Child("multiplexor"); marker != nil {
		isMux, isMuxed, sw, nested, ok := muxMarker(marker.Text())
		if !ok {
			return nil, malformed(marker, msg.Name, name, "multiplexor indicator")
		}
		switch {
		case isMux:
			sig.MuxRole = model.MuxMultiplexor
		case isMuxed:
			sig.MuxRole = model.MuxMultiplexed
			sig.SwitchValue = sw
			if nested {
				b.report(diag.Warning, CodeNestedMux, n.Line,
					"%s.%s is a nested multiplexor; treated as a multiplexed signal only", msg.Name, name)
			}
		}
	}

	if sig.Length == 0 {
		return nil, fail(model.ZeroBitLength, "signal has zero bit length")
	}
	if sig.Scaling == 0 {
		return nil, fail(model.ZeroScaling, "scaling factor is zero")
	}
	if !layout.Fits(sig) {
		return nil, fail(model.SignalOutOfFrame, "start bit %d length %d (%s) does not fit a 64-bit frame",
			sig.StartBit, sig.Length, sig.Endianness)
	}

	sk := sigKey{key, name}
	if typ, ok := b.valueTypes[sk]; ok {
		switch typ {
		case 0:
		case 1:
			if sig.Length != 32 {
				return nil, fail(model.InvalidFloatWidth, "single precision signal must be 32 bits, got %d", sig.Length)
			}
			sig.Float = model.Single
		case 2:
			if sig.Length != 64 {
				return nil, fail(model.InvalidFloatWidth, "double precision signal must be 64 bits, got %d", sig.Length)
			}
			sig.Float = model.Double
		default:
			return nil, fail(model.InvalidFloatWidth, "unknown signal value type %d", typ)
		}
		if sig.IsFloat() && sig.MuxRole == model.MuxMultiplexor {
			return nil, fail(model.MultiplexRangeViolation, "multiplexor cannot be floating point")
		}
	} else if sig.Length == 32 || sig.Length == 64 {
		b.report(diag.Warning, CodeMissingValueType, n.Line,
			"%s.%s is %d bits with no SIG_VALTYPE_ entry; treated as integer", msg.Name, name, sig.Length)
	}

	sig.ValueTable = b.valueTables[sk]
	sig.Comment = b.sigComments[sk]
	return sig, nil
}

// link validates multiplex ranges and records multiplexor links on msg.
func (b *builder) link(msg *model.Message, key msgKey, line int) error {
	// Ranges naming the same multiplexed signal are alternatives.
	matched := make(map[string][]*rangeRef)
	var order []string
	for _, r := range b.ranges {
		if r.key != key || msg.Signal(r.rng.Multiplexed) == nil {
			continue
		}
		r.usage++
		if _, ok := matched[r.rng.Multiplexed]; !ok {
			order = append(order, r.rng.Multiplexed)
		}
		matched[r.rng.Multiplexed] = append(matched[r.rng.Multiplexed], r)
	}

	for _, name := range order {
		sig := msg.Signal(name)
		refs := matched[name]
		if sig.MuxRole != model.MuxMultiplexed {
			b.report(diag.Warning, CodeUnusedRange, refs[0].line,
				"multiplex range declared for %s.%s, which is not multiplexed", msg.Name, name)
			continue
		}
		var hit *rangeRef
		for _, r := range refs {
			if r.rng.Contains(sig.SwitchValue) {
				hit = r
				break
			}
		}
		if hit == nil {
			r := refs[0].rng
			return &model.SemanticError{Kind: model.MultiplexRangeViolation, Message: msg.Name, Signal: name, Line: refs[0].line,
				Detail: fmt.Sprintf("switch value %d outside declared range [%d,%d]", sig.SwitchValue, r.Min, r.Max)}
		}
		mux := msg.Signal(hit.rng.Multiplexor)
		if mux == nil || mux.MuxRole != model.MuxMultiplexor {
			return &model.SemanticError{Kind: model.MultiplexRangeViolation, Message: msg.Name, Signal: name, Line: hit.line,
				Detail: fmt.Sprintf("multiplexor %q is not a multiplexor of this message", hit.rng.Multiplexor)}
		}
		if !msg.Linked(name) {
			msg.Muxed = append(msg.Muxed, model.MuxLink{Multiplexor: mux.Name, Signal: name, Range: hit.rng})
		}
	}

	// Plain m<n> multiplexing carries no SG_MUL_VAL_ entries.
	mux, hasMux := msg.Multiplexor()
	for _, sig := range msg.Signals {
		if sig.MuxRole != model.MuxMultiplexed || msg.Linked(sig.Name) {
			continue
		}
		if !hasMux {
			return &model.SemanticError{Kind: model.MultiplexRangeViolation, Message: msg.Name, Signal: sig.Name, Line: line,
				Detail: "multiplexed signal in a message without a multiplexor"}
		}
		rng := model.MultiplexRange{
			MessageID:   key.id,
			Multiplexed: sig.Name,
			Multiplexor: mux.Name,
			Min:         sig.SwitchValue,
			Max:         sig.SwitchValue,
		}
		msg.Muxed = append(msg.Muxed, model.MuxLink{Multiplexor: mux.Name, Signal: sig.Name, Range: rng})
		b.report(diag.Note, CodeImplicitRange, line,
			"%s.%s linked to %s by switch value %d", msg.Name, sig.Name, mux.Name, sig.SwitchValue)
	}
	return nil
}
