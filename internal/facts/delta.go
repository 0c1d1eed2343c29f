package facts

import "strconv"

// Delta captures added and removed fact rows between two snapshots.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

func diffTables(from, to Tables) Tables {
	out := emptyTables()

	out.Files = diffRows(from.Files, to.Files, func(r FileRow) string {
		return r.Path + "|" + r.Database + "|" + r.Version
	})
	out.Nodes = diffRows(from.Nodes, to.Nodes, func(r NodeRow) string {
		return r.Name + "|" + r.File
	})
	out.Messages = diffRows(from.Messages, to.Messages, func(r MessageRow) string {
		return r.Name + "|" + uintKey(uint64(r.ID)) + "|" + boolKey(r.Extended) + "|" + strconv.Itoa(r.DLC) + "|" + r.Sender + "|" + r.File
	})
	out.Signals = diffRows(from.Signals, to.Signals, signalKey)
	out.Receivers = diffRows(from.Receivers, to.Receivers, func(r ReceiverRow) string {
		return r.Message + "|" + r.Signal + "|" + r.Node + "|" + r.File
	})
	out.Values = diffRows(from.Values, to.Values, func(r ValueRow) string {
		return r.Message + "|" + r.Signal + "|" + strconv.FormatInt(r.Value, 10) + "|" + r.Name + "|" + r.File
	})
	out.MuxLinks = diffRows(from.MuxLinks, to.MuxLinks, func(r MuxLinkRow) string {
		return r.Message + "|" + r.Multiplexor + "|" + r.Signal + "|" + uintKey(r.Min) + "|" + uintKey(r.Max) + "|" + r.File
	})

	return out
}

func signalKey(r SignalRow) string {
	return r.Message + "|" + r.Name + "|" + strconv.Itoa(r.StartBit) + "|" + strconv.Itoa(r.Length) + "|" +
		r.Endianness + "|" + boolKey(r.Signed) + "|" + r.Float + "|" +
		floatKey(r.Scaling) + "|" + floatKey(r.Offset) + "|" + floatKey(r.Minimum) + "|" + floatKey(r.Maximum) + "|" +
		r.Units + "|" + r.MuxRole + "|" + uintKey(r.SwitchValue) + "|" + r.File
}

func emptyTables() Tables {
	return Tables{
		Files:     []FileRow{},
		Nodes:     []NodeRow{},
		Messages:  []MessageRow{},
		Signals:   []SignalRow{},
		Receivers: []ReceiverRow{},
		Values:    []ValueRow{},
		MuxLinks:  []MuxLinkRow{},
	}
}

func diffRows[T any](from, to []T, key func(T) string) []T {
	fromSet := make(map[string]T, len(from))
	for _, row := range from {
		fromSet[key(row)] = row
	}
	var diff []T
	for _, row := range to {
		rowKey := key(row)
		if _, ok := fromSet[rowKey]; !ok {
			diff = append(diff, row)
		}
	}
	if diff == nil {
		diff = []T{}
	}
	return diff
}

func boolKey(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func uintKey(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func floatKey(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
