package facts

import (
	"sort"

	"github.com/robert-at-pretension-io/dbcc/internal/model"
)

// Tables is the relational fact model of one or more CAN databases.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Files     []FileRow     `json:"files"`
	Nodes     []NodeRow     `json:"nodes"`
	Messages  []MessageRow  `json:"messages"`
	Signals   []SignalRow   `json:"signals"`
	Receivers []ReceiverRow `json:"receivers"`
	Values    []ValueRow    `json:"values"`
	MuxLinks  []MuxLinkRow  `json:"mux_links"`
}

type FileRow struct {
	Path     string `json:"path"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

type NodeRow struct {
	Name string `json:"name"`
	File string `json:"file"`
}

type MessageRow struct {
	Name     string `json:"name"`
	ID       uint32 `json:"id"`
	Extended bool   `json:"extended"`
	DLC      int    `json:"dlc"`
	Sender   string `json:"sender"`
	File     string `json:"file"`
}

type SignalRow struct {
	Message     string  `json:"message"`
	Name        string  `json:"name"`
	StartBit    int     `json:"start_bit"`
	Length      int     `json:"length"`
	Endianness  string  `json:"endianness"`
	Signed      bool    `json:"signed"`
	Float       string  `json:"float"`
	Scaling     float64 `json:"scaling"`
	Offset      float64 `json:"offset"`
	Minimum     float64 `json:"minimum"`
	Maximum     float64 `json:"maximum"`
	Units       string  `json:"units"`
	MuxRole     string  `json:"mux_role"`
	SwitchValue uint64  `json:"switch_value"`
	File        string  `json:"file"`
}

type ReceiverRow struct {
	Message string `json:"message"`
	Signal  string `json:"signal"`
	Node    string `json:"node"`
	File    string `json:"file"`
}

type ValueRow struct {
	Message string `json:"message"`
	Signal  string `json:"signal"`
	Value   int64  `json:"value"`
	Name    string `json:"name"`
	File    string `json:"file"`
}

type MuxLinkRow struct {
	Message     string `json:"message"`
	Multiplexor string `json:"multiplexor"`
	Signal      string `json:"signal"`
	Min         uint64 `json:"min"`
	Max         uint64 `json:"max"`
	File        string `json:"file"`
}

func floatKind(k model.FloatKind) string {
	switch k {
	case model.Single:
		return "single"
	case model.Double:
		return "double"
	}
	return "none"
}

// BuildTables flattens built databases into a normalized relational model.
func BuildTables(dbs []*model.Database) Tables {
	tables := emptyTables()

	seenFiles := make(map[string]bool)
	for _, db := range dbs {
		file := db.File
		if !seenFiles[file] {
			seenFiles[file] = true
			tables.Files = append(tables.Files, FileRow{
				Path:     file,
				Database: db.Name,
				Version:  db.Version,
			})
		}

		for _, n := range db.Nodes {
			tables.Nodes = append(tables.Nodes, NodeRow{Name: n, File: file})
		}

		for _, m := range db.Messages {
			tables.Messages = append(tables.Messages, MessageRow{
				Name:     m.Name,
				ID:       m.ID,
				Extended: m.Extended,
				DLC:      m.DLC,
				Sender:   m.Sender,
				File:     file,
			})

			for _, s := range m.Signals {
				tables.Signals = append(tables.Signals, SignalRow{
					Message:     m.Name,
					Name:        s.Name,
					StartBit:    s.StartBit,
					Length:      s.Length,
					Endianness:  s.Endianness.String(),
					Signed:      s.Signed,
					Float:       floatKind(s.Float),
					Scaling:     s.Scaling,
					Offset:      s.Offset,
					Minimum:     s.Minimum,
					Maximum:     s.Maximum,
					Units:       s.Units,
					MuxRole:     s.MuxRole.String(),
					SwitchValue: s.SwitchValue,
					File:        file,
				})

				for _, r := range s.Receivers {
					tables.Receivers = append(tables.Receivers, ReceiverRow{
						Message: m.Name,
						Signal:  s.Name,
						Node:    r,
						File:    file,
					})
				}

				if s.ValueTable != nil {
					for _, e := range s.ValueTable.Entries {
						tables.Values = append(tables.Values, ValueRow{
							Message: m.Name,
							Signal:  s.Name,
							Value:   e.Value,
							Name:    e.Name,
							File:    file,
						})
					}
				}
			}

			for _, l := range m.Muxed {
				tables.MuxLinks = append(tables.MuxLinks, MuxLinkRow{
					Message:     m.Name,
					Multiplexor: l.Multiplexor,
					Signal:      l.Signal,
					Min:         l.Range.Min,
					Max:         l.Range.Max,
					File:        file,
				})
			}
		}
	}

	sort.Slice(tables.Files, func(i, j int) bool { return tables.Files[i].Path < tables.Files[j].Path })

	return tables
}
