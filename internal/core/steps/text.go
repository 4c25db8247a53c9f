package steps

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
	"github.com/joseph-ayodele/docproc/internal/core/normalize"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// TextStep reads plain text and markup files.
type TextStep struct {
	logger *slog.Logger
}

func NewTextStep(logger *slog.Logger) *TextStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextStep{logger: logger}
}

func (s *TextStep) Name() string { return "text" }
func (s *TextStep) Kind() Kind   { return KindText }

func (s *TextStep) Run(ctx context.Context, in Input, _ governor.Budget) Outcome {
	data, err := os.ReadFile(in.Query.FilePath)
	if err != nil {
		return Fail(common.NewProcessError(common.ErrIO, s.Name(), "read file", err), true)
	}
	if err := ctx.Err(); err != nil {
		return Fail(err, true)
	}

	text, err := DecodeText(data)
	if err != nil {
		return Fail(common.NewProcessError(common.ErrDecode, s.Name(), in.Query.FilePath, err), true)
	}
	if constants.IsHTMLExt(in.Ext) {
		text, err = HTMLText(text)
		if err != nil {
			return Fail(common.NewProcessError(common.ErrDecode, s.Name(), "parse html", err), true)
		}
	}

	text = normalize.Text(text)
	if text == "" {
		s.logger.Debug("text.empty", "file", in.Query.FilePath)
		return Skip("text: document has no text")
	}
	return Done([]Part{{Text: Extracted("", text)}}, nil, nil)
}

// DecodeText turns raw bytes into a string. A UTF-16 byte order mark selects
// UTF-16; anything else must be valid UTF-8 (a UTF-8 BOM is dropped).
func DecodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf16LEBOM) || bytes.HasPrefix(data, utf16BEBOM) {
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", errors.New("invalid UTF-8")
	}
	return string(data), nil
}

// HTMLText returns the visible text of an HTML document. Block elements
// start new lines; script and style content is dropped.
func HTMLText(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
				return
			}
		}
		block := n.Type == html.ElementNode && isBlock(n.DataAtom)
		if block {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteString("\n")
		}
	}
	walk(doc)
	return b.String(), nil
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Tr, atom.Table, atom.Ul, atom.Ol,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}
