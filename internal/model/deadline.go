package model

import (
	"strings"
	"time"
)

// Confidence is the extractor's confidence that a record is a real deadline.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// NormalizeConfidence maps free-form confidence text onto one of the
// Confidence constants, defaulting to medium.
func NormalizeConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceLow:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// Deadline is a task with an associated due timestamp, either extracted
// from an email or submitted directly.
type Deadline struct {
	// ID is assigned once on first successful insertion and never reused.
	ID string `json:"id,omitempty"`

	// Task is the human-readable label of what is due.
	Task string `json:"task"`

	// Due is the due timestamp as received. It is kept verbatim when it
	// cannot be parsed.
	Due string `json:"deadline"`

	// Details holds any free-text context about the deadline.
	Details string `json:"details,omitempty"`

	// Confidence is the extractor's confidence tag.
	Confidence Confidence `json:"confidence,omitempty"`

	// SourceEmailID identifies the message the deadline was extracted from.
	SourceEmailID string `json:"source_email_id,omitempty"`

	// SourceEmailSubject is the subject line of the source message.
	SourceEmailSubject string `json:"source_email_subject,omitempty"`

	// SourceEmailFrom is the sender of the source message.
	SourceEmailFrom string `json:"source_email_from,omitempty"`

	// ExtractedAt is when the record was produced.
	ExtractedAt *time.Time `json:"extraction_time,omitempty"`
}

// Valid reports whether the record carries both a task label and a due
// value. Invalid records never enter the repository.
func (d Deadline) Valid() bool {
	return strings.TrimSpace(d.Task) != "" && strings.TrimSpace(d.Due) != ""
}
