package entity

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the binary form. Append new fields at the end only.
const (
	queryFileType    protowire.Number = 1
	queryFilePath    protowire.Number = 2
	queryStrategy    protowire.Number = 3
	queryPromptParts protowire.Number = 4
	queryAttachments protowire.Number = 5
	querySystem      protowire.Number = 6
	queryPrompt      protowire.Number = 7
	queryMetadata    protowire.Number = 8

	attachmentPage protowire.Number = 1
	attachmentData protowire.Number = 2

	metaStartedAt        protowire.Number = 1
	metaCompletedAt      protowire.Number = 2
	metaTotalDurationMs  protowire.Number = 3
	metaOriginalFileSize protowire.Number = 4
	metaErrors           protowire.Number = 5
	metaSteps            protowire.Number = 6

	stepName       protowire.Number = 1
	stepDurationMs protowire.Number = 2
	stepStatus     protowire.Number = 3
	stepMemoryMb   protowire.Number = 4
)

// Marshal encodes q in protocol-buffers binary form.
func Marshal(q *Query) []byte {
	if q == nil {
		return nil
	}
	var b []byte
	b = appendString(b, queryFileType, q.FileType)
	b = appendString(b, queryFilePath, q.FilePath)
	b = appendString(b, queryStrategy, q.Strategy)
	for _, p := range q.PromptParts {
		b = protowire.AppendTag(b, queryPromptParts, protowire.BytesType)
		b = protowire.AppendString(b, p)
	}
	for _, a := range q.Attachments {
		b = protowire.AppendTag(b, queryAttachments, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalAttachment(a))
	}
	b = appendString(b, querySystem, q.System)
	b = appendString(b, queryPrompt, q.Prompt)
	if q.Metadata != nil {
		b = protowire.AppendTag(b, queryMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalMetadata(q.Metadata))
	}
	return b
}

func marshalAttachment(a Attachment) []byte {
	var b []byte
	b = appendVarint(b, attachmentPage, uint64(int64(a.Page)))
	if len(a.Data) > 0 {
		b = protowire.AppendTag(b, attachmentData, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Data)
	}
	return b
}

func marshalMetadata(m *QueryMetadata) []byte {
	var b []byte
	b = appendVarint(b, metaStartedAt, uint64(m.StartedAt))
	b = appendVarint(b, metaCompletedAt, uint64(m.CompletedAt))
	b = appendVarint(b, metaTotalDurationMs, uint64(m.TotalDurationMs))
	b = appendVarint(b, metaOriginalFileSize, uint64(m.OriginalFileSize))
	for _, e := range m.Errors {
		b = protowire.AppendTag(b, metaErrors, protowire.BytesType)
		b = protowire.AppendString(b, e)
	}
	for _, s := range m.Steps {
		b = protowire.AppendTag(b, metaSteps, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalStep(s))
	}
	return b
}

func marshalStep(s ProcessingStep) []byte {
	var b []byte
	b = appendString(b, stepName, s.Name)
	b = appendVarint(b, stepDurationMs, uint64(s.DurationMs))
	b = appendString(b, stepStatus, s.Status)
	b = appendVarint(b, stepMemoryMb, uint64(s.MemoryMb))
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Unmarshal decodes the binary form. Unknown fields are skipped.
func Unmarshal(b []byte) (*Query, error) {
	q := &Query{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == queryFileType && typ == protowire.BytesType:
			q.FileType = string(v)
		case num == queryFilePath && typ == protowire.BytesType:
			q.FilePath = string(v)
		case num == queryStrategy && typ == protowire.BytesType:
			q.Strategy = string(v)
		case num == queryPromptParts && typ == protowire.BytesType:
			q.PromptParts = append(q.PromptParts, string(v))
		case num == queryAttachments && typ == protowire.BytesType:
			a, err := unmarshalAttachment(v)
			if err != nil {
				return fmt.Errorf("attachment: %w", err)
			}
			q.Attachments = append(q.Attachments, a)
		case num == querySystem && typ == protowire.BytesType:
			q.System = string(v)
		case num == queryPrompt && typ == protowire.BytesType:
			q.Prompt = string(v)
		case num == queryMetadata && typ == protowire.BytesType:
			m, err := unmarshalMetadata(v)
			if err != nil {
				return fmt.Errorf("metadata: %w", err)
			}
			q.Metadata = m
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	return q, nil
}

func unmarshalAttachment(b []byte) (Attachment, error) {
	var a Attachment
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == attachmentPage && typ == protowire.VarintType:
			a.Page = int32(x)
		case num == attachmentData && typ == protowire.BytesType:
			a.Data = append([]byte(nil), v...)
		}
		return nil
	})
	return a, err
}

func unmarshalMetadata(b []byte) (*QueryMetadata, error) {
	m := &QueryMetadata{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == metaStartedAt && typ == protowire.VarintType:
			m.StartedAt = int64(x)
		case num == metaCompletedAt && typ == protowire.VarintType:
			m.CompletedAt = int64(x)
		case num == metaTotalDurationMs && typ == protowire.VarintType:
			m.TotalDurationMs = int64(x)
		case num == metaOriginalFileSize && typ == protowire.VarintType:
			m.OriginalFileSize = int64(x)
		case num == metaErrors && typ == protowire.BytesType:
			m.Errors = append(m.Errors, string(v))
		case num == metaSteps && typ == protowire.BytesType:
			s, err := unmarshalStep(v)
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			m.Steps = append(m.Steps, s)
		}
		return nil
	})
	return m, err
}

func unmarshalStep(b []byte) (ProcessingStep, error) {
	var s ProcessingStep
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == stepName && typ == protowire.BytesType:
			s.Name = string(v)
		case num == stepDurationMs && typ == protowire.VarintType:
			s.DurationMs = int64(x)
		case num == stepStatus && typ == protowire.BytesType:
			s.Status = string(v)
		case num == stepMemoryMb && typ == protowire.VarintType:
			s.MemoryMb = int64(x)
		}
		return nil
	})
	return s, err
}

// walkFields calls fn for every field in b. Length-delimited values arrive in
// v, varints in x; other wire types are consumed and passed with both empty.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}
