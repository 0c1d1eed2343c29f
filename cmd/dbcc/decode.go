package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dbcc/internal/builder"
	"github.com/robert-at-pretension-io/dbcc/internal/codec"
	"github.com/robert-at-pretension-io/dbcc/internal/diag"
	"github.com/robert-at-pretension-io/dbcc/internal/model"
	"github.com/robert-at-pretension-io/dbcc/internal/parser"
)

var decodeJSON bool

var decodeCmd = &cobra.Command{
	Use:   "decode <file.dbc> <id|name> <hex-bytes>",
	Short: "Decode one CAN frame with a database",
	Long: `Decode a single frame the way the generated unpack and print routines would.

The message is named by identifier (decimal, 0x-prefixed hex or 0o octal) or by
its name in the database. Payload bytes are
hex, optionally separated by spaces, colons or dots: "12 34", "12:34", "1234".`,
	Example: `  dbcc decode vehicle.dbc 0x101 "01 a0"`,
	Args:    cobra.ExactArgs(3),
	RunE:    runDecode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "print decoded values as JSON")
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	root, err := parser.ParseFile(args[0])
	if err != nil {
		return err
	}
	db, err := builder.Build(root, builder.Options{File: args[0], Sink: diag.Logrus(log)})
	if err != nil {
		return fmt.Errorf("building %s: %w", args[0], err)
	}

	msg, rec, err := decodeFrame(db, args[1], args[2])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if decodeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Message string        `json:"message"`
			ID      uint32        `json:"id"`
			Values  []codec.Value `json:"values"`
		}{msg.Name, msg.ID, codec.Values(msg, rec)})
	}
	fmt.Fprintf(out, "%s (0x%03x)\n", msg.Name, msg.ID)
	fmt.Fprint(out, codec.Format(msg, rec))
	return nil
}

// decodeFrame looks up the message and unpacks the payload.
func decodeFrame(db *model.Database, idText, payload string) (*model.Message, codec.Record, error) {
	msg, err := lookupMessage(db, idText)
	if err != nil {
		return nil, nil, err
	}

	data, err := parsePayload(payload)
	if err != nil {
		return nil, nil, err
	}
	rec, err := codec.Unpack(msg, codec.FrameFromBytes(data), len(data))
	if err != nil {
		return nil, nil, err
	}
	return msg, rec, nil
}

// lookupMessage resolves a numeric identifier, falling back to a message
// name when the text is not a number.
func lookupMessage(db *model.Database, text string) (*model.Message, error) {
	id, err := strconv.ParseUint(text, 0, 32)
	if err != nil {
		if msg := db.MessageByName(text); msg != nil {
			return msg, nil
		}
		return nil, fmt.Errorf("%q is neither a message identifier nor a message name in %s: %w", text, db.Name, err)
	}
	msg := db.Message(uint32(id))
	if msg == nil {
		return nil, fmt.Errorf("no message with identifier 0x%x in %s", id, db.Name)
	}
	return msg, nil
}

func parsePayload(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x"))
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid payload %q: %w", s, err)
	}
	if len(data) > 8 {
		return nil, fmt.Errorf("payload has %d bytes; frames carry at most 8", len(data))
	}
	return data, nil
}
