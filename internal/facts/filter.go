package facts

// FilterTablesByFiles returns a new Tables object containing only rows whose file
// or path is present in the provided file set.
func FilterTablesByFiles(tables Tables, files map[string]bool) Tables {
	if len(files) == 0 {
		return emptyTables()
	}
	out := emptyTables()

	for _, row := range tables.Files {
		if files[row.Path] {
			out.Files = append(out.Files, row)
		}
	}
	out.Nodes = keep(out.Nodes, tables.Nodes, files, func(r NodeRow) string { return r.File })
	out.Messages = keep(out.Messages, tables.Messages, files, func(r MessageRow) string { return r.File })
	out.Signals = keep(out.Signals, tables.Signals, files, func(r SignalRow) string { return r.File })
	out.Receivers = keep(out.Receivers, tables.Receivers, files, func(r ReceiverRow) string { return r.File })
	out.Values = keep(out.Values, tables.Values, files, func(r ValueRow) string { return r.File })
	out.MuxLinks = keep(out.MuxLinks, tables.MuxLinks, files, func(r MuxLinkRow) string { return r.File })

	return out
}

func keep[T any](dst, rows []T, files map[string]bool, file func(T) string) []T {
	for _, row := range rows {
		if files[file(row)] {
			dst = append(dst, row)
		}
	}
	return dst
}

// FilterDeltaByFiles returns a new Delta containing only rows for the specified files.
func FilterDeltaByFiles(delta Delta, files map[string]bool) Delta {
	if len(files) == 0 {
		return Delta{
			Added:   emptyTables(),
			Removed: emptyTables(),
		}
	}
	return Delta{
		Added:   FilterTablesByFiles(delta.Added, files),
		Removed: FilterTablesByFiles(delta.Removed, files),
	}
}
