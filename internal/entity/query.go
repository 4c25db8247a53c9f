package entity

// Query is the unit of work threaded through every processing step.
type Query struct {
	FileType    string         `json:"file_type"`
	FilePath    string         `json:"file_path"`
	Strategy    string         `json:"strategy"`
	PromptParts []string       `json:"prompt_parts"`
	Attachments []Attachment   `json:"attachments"`
	System      string         `json:"system"`
	Prompt      string         `json:"prompt"`
	Metadata    *QueryMetadata `json:"metadata,omitempty"`
}

// Attachment is a binary artifact produced during processing.
// Page is 1-based, or 0 when the source is not paginated.
type Attachment struct {
	Page int32  `json:"page"`
	Data []byte `json:"data"`
}

// QueryMetadata records timing and the audit trail of a run.
// Timestamps are Unix milliseconds.
type QueryMetadata struct {
	StartedAt        int64            `json:"started_at"`
	CompletedAt      int64            `json:"completed_at"`
	TotalDurationMs  int64            `json:"total_duration_ms"`
	OriginalFileSize int64            `json:"original_file_size"`
	Errors           []string         `json:"errors"`
	Steps            []ProcessingStep `json:"steps"`
}

// ProcessingStep is appended once per stage attempt and never modified.
type ProcessingStep struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
	MemoryMb   int64  `json:"memory_mb"`
}

// NewQuery builds an empty query for a file.
func NewQuery(path, fileType string) *Query {
	return &Query{
		FilePath: path,
		FileType: fileType,
		Metadata: &QueryMetadata{},
	}
}

// Meta returns the metadata, allocating it on first use.
func (q *Query) Meta() *QueryMetadata {
	if q.Metadata == nil {
		q.Metadata = &QueryMetadata{}
	}
	return q.Metadata
}

// AddError appends a human-readable failure to the audit trail.
func (q *Query) AddError(msg string) {
	m := q.Meta()
	m.Errors = append(m.Errors, msg)
}

// AddStep appends a processing step record.
func (q *Query) AddStep(s ProcessingStep) {
	m := q.Meta()
	m.Steps = append(m.Steps, s)
}

// Snapshot returns a copy whose slices can be read while q keeps changing.
// Attachment bytes are shared, they are never written in place.
func (q *Query) Snapshot() Query {
	c := *q
	c.PromptParts = append([]string(nil), q.PromptParts...)
	c.Attachments = append([]Attachment(nil), q.Attachments...)
	c.Metadata = nil
	return c
}
