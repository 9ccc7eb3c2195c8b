package writer

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/Chichichkin/LogServer/internal/logging"
)

// formatEntry appends one line for entry to buf.
//
//	text:  <timestamp> [<LEVEL>] <message>[ | <json-data>]
//	jsonl: the entry as a JSON object, with <, > and & left unescaped
func formatEntry(buf *bytes.Buffer, format logging.Format, entry logging.LogEntry) error {
	if format == logging.FormatJSONL {
		data, err := json.MarshalNoEscape(entry)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
		return nil
	}

	buf.WriteString(entry.Timestamp)
	buf.WriteString(" [")
	buf.WriteString(entry.Level.Upper())
	buf.WriteString("] ")
	buf.WriteString(entry.Message)
	if entry.Data != nil {
		data, err := json.MarshalNoEscape(entry.Data)
		if err != nil {
			return err
		}
		buf.WriteString(" | ")
		buf.Write(data)
	}
	buf.WriteByte('\n')
	return nil
}
