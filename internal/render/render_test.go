package render

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docproc/internal/entity"
)

func sample() *entity.Query {
	q := entity.NewQuery("/in/<scan>.pdf", "pdf")
	q.Strategy = "pdf"
	q.PromptParts = []string{"<EXTRACTED_DATA PAGE=1>\nTotal: 42\n</EXTRACTED_DATA>"}
	q.Attachments = []entity.Attachment{{Page: 2, Data: []byte("png-bytes")}}
	q.Metadata.StartedAt = 1760600000000
	q.Metadata.CompletedAt = 1760600001500
	q.Metadata.TotalDurationMs = 1500
	q.Metadata.Errors = []string{"image: page 3: recognition failure"}
	q.Metadata.Steps = []entity.ProcessingStep{{Name: "pdf", DurationMs: 900, Status: "success", MemoryMb: 12}}
	return q
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": JSON, "JSON": JSON, " html ": HTML, "protobuf": Protobuf} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
	assert.Equal(t, "pb64", Protobuf.Ext())
	assert.Equal(t, "html", HTML.Ext())
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, sample()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "pdf", got["strategy"])
	atts := got["attachments"].([]any)
	require.Len(t, atts, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), atts[0].(map[string]any)["data"])
	assert.Contains(t, buf.String(), "\n  \"file_type\"")
}

func TestWrite_Protobuf(t *testing.T) {
	var buf bytes.Buffer
	q := sample()
	require.NoError(t, Write(&buf, Protobuf, q))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	back, err := entity.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, q.PromptParts, back.PromptParts)
	assert.Equal(t, q.Attachments, back.Attachments)
}

func TestWrite_HTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, HTML, sample()))
	out := buf.String()

	assert.Contains(t, out, "/in/&lt;scan&gt;.pdf")
	assert.Contains(t, out, "&lt;EXTRACTED_DATA PAGE=1&gt;")
	assert.Contains(t, out, `src="data:image/png;base64,`+base64.StdEncoding.EncodeToString([]byte("png-bytes"))+`"`)
	assert.Contains(t, out, "2025-10-16 07:33:20")
	assert.Contains(t, out, "recognition failure")
	assert.Contains(t, out, "<td>pdf</td><td>success</td><td>900 ms</td>")
	assert.NotContains(t, out, "<EXTRACTED_DATA")
}

func TestWrite_NilQuery(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, JSON, nil))
}
