// Package steps holds the per-format extraction steps. A step reads the
// document named by its Input and reports what it found as an Outcome; it
// never touches the Query itself.
package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// Kind is the closed set of step implementations.
type Kind int

const (
	KindText Kind = iota
	KindSpreadsheet
	KindPDF
	KindImage
	KindOffice
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	case KindOffice:
		return "office"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Step is one stage of a strategy chain.
type Step interface {
	Name() string
	Kind() Kind
	Run(ctx context.Context, in Input, b governor.Budget) Outcome
}

// Input is what a step may read. Query is a snapshot taken before the step
// started; Ext is the resolved, normalized file extension.
type Input struct {
	Query    entity.Query
	Ext      string
	Strategy constants.Strategy
}

// Status is the terminal state of a step run.
type Status int

const (
	Completed Status = iota
	CompletedWithWarnings
	Failed
	Skipped
)

// Part is one prompt part, already tagged, with the page it belongs to.
// Page 0 means the source is not paginated.
type Part struct {
	Page int
	Text string
}

// Outcome is everything a step produced. The processor merges it into the
// Query after the step returns.
type Outcome struct {
	Status      Status
	Parts       []Part
	Attachments []entity.Attachment
	// ReplaceAttachments drops the Query's existing attachments before
	// Attachments are merged.
	ReplaceAttachments bool
	Warnings           []string
	Err                error
	Fatal              bool
}

// Done builds a Completed or, when warnings were collected, a
// CompletedWithWarnings outcome.
func Done(parts []Part, atts []entity.Attachment, warnings []string) Outcome {
	st := Completed
	if len(warnings) > 0 {
		st = CompletedWithWarnings
	}
	return Outcome{Status: st, Parts: parts, Attachments: atts, Warnings: warnings}
}

// Skip reports that the step had nothing to do.
func Skip(reason string) Outcome {
	o := Outcome{Status: Skipped}
	if reason != "" {
		o.Warnings = []string{reason}
	}
	return o
}

// Fail reports a failed step. fatal stops the chain.
func Fail(err error, fatal bool) Outcome {
	return Outcome{Status: Failed, Err: err, Fatal: fatal}
}

// StepStatus maps the outcome onto the recorded status string.
func (o Outcome) StepStatus() constants.StepStatus {
	switch o.Status {
	case CompletedWithWarnings:
		return constants.StepWarning
	case Failed:
		return constants.StepFailure
	case Skipped:
		return constants.StepSkipped
	default:
		return constants.StepSuccess
	}
}

// Extracted wraps directly extracted text. attrs is e.g. `PAGE=2`,
// `SHEET="Totals"` or empty.
func Extracted(attrs, text string) string {
	return tag(constants.TagExtracted, attrs, text)
}

// OCRText wraps recognized text for a page, flagging text that failed
// validation.
func OCRText(page int, text string, lowQuality bool) string {
	attrs := fmt.Sprintf("PAGE=%d", page)
	if lowQuality {
		attrs += " QUALITY=LOW"
	}
	return tag(constants.TagOCR, attrs, text)
}

func tag(name, attrs, text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2*len(name) + len(attrs) + 6)
	b.WriteString("<")
	b.WriteString(name)
	if attrs != "" {
		b.WriteString(" ")
		b.WriteString(attrs)
	}
	b.WriteString(">")
	b.WriteString(text)
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">")
	return b.String()
}

// PageAttr formats a PAGE attribute.
func PageAttr(n int) string { return fmt.Sprintf("PAGE=%d", n) }

// SheetAttr formats a SHEET attribute.
func SheetAttr(name string) string { return fmt.Sprintf("SHEET=%q", name) }

// SlideAttr formats a SLIDE attribute.
func SlideAttr(n int) string { return fmt.Sprintf("SLIDE=%d", n) }
