// Package render projects a processed Query into the CLI output formats.
package render

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/docproc/internal/entity"
)

type Format string

const (
	JSON     Format = "json"
	HTML     Format = "html"
	Protobuf Format = "protobuf"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSON, HTML, Protobuf:
		return f, nil
	case "":
		return JSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, html or protobuf)", s)
}

// Ext is the file extension used when results are written next to sources.
func (f Format) Ext() string {
	if f == Protobuf {
		return "pb64"
	}
	return string(f)
}

// Write renders q to w in format f.
func Write(w io.Writer, f Format, q *entity.Query) error {
	if q == nil {
		return fmt.Errorf("render: nil query")
	}
	switch f {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	case HTML:
		return writeHTML(w, q)
	case Protobuf:
		if _, err := io.WriteString(w, base64.StdEncoding.EncodeToString(entity.Marshal(q))); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	}
	return fmt.Errorf("render: unknown format %q", f)
}
