package constants

// StepStatus is the status recorded on a ProcessingStep.
type StepStatus string

// Stable values (these exact strings end up in the wire form).
const (
	StepSuccess StepStatus = "success"
	StepWarning StepStatus = "warning" // completed, some units failed
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped" // nothing to do
)

// Prompt part tags.
const (
	TagExtracted = "EXTRACTED_DATA"
	TagOCR       = "OCR"
)
