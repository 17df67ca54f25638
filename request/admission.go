// Package request provides inbound request admission and correlation.
//
// Admission validates and sanitizes raw user input before any downstream
// work begins: length ceiling, UTF-8 validation, and control character
// stripping. Admission failures happen before streaming starts and are
// never surfaced as stream events.
package request

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AdmissionReason classifies why input was rejected.
type AdmissionReason int

const (
	// ReasonEmpty means the input was empty, or empty after sanitization.
	ReasonEmpty AdmissionReason = iota
	// ReasonTooLong means the input exceeded the configured ceiling.
	ReasonTooLong
	// ReasonInvalidEncoding means the input was not valid UTF-8.
	ReasonInvalidEncoding
)

// String returns the wire name of the reason.
func (r AdmissionReason) String() string {
	switch r {
	case ReasonEmpty:
		return "empty"
	case ReasonTooLong:
		return "too_long"
	case ReasonInvalidEncoding:
		return "invalid_encoding"
	default:
		return "unknown"
	}
}

// AdmissionError reports a rejected request.
type AdmissionError struct {
	Reason AdmissionReason
	Detail string
}

// Error implements the error interface.
func (e *AdmissionError) Error() string {
	if e.Detail == "" {
		return "admission rejected: " + e.Reason.String()
	}
	return "admission rejected: " + e.Reason.String() + ": " + e.Detail
}

// Request is an admitted, sanitized inbound request. Immutable once
// created; owned by exactly one orchestrator run for its lifetime.
type Request struct {
	RawInput       string
	SanitizedInput string
	ReceivedAt     time.Time
}

// Admitter validates raw input against a fixed length ceiling.
type Admitter struct {
	maxLength int
}

// NewAdmitter creates an admitter with the given input length ceiling.
func NewAdmitter(maxLength int) *Admitter {
	return &Admitter{maxLength: maxLength}
}

// Admit validates and sanitizes raw input, returning an immutable Request.
// Pure and synchronous: no side effects beyond allocating the Request.
func (a *Admitter) Admit(raw string) (Request, error) {
	if raw == "" {
		return Request{}, &AdmissionError{Reason: ReasonEmpty}
	}
	if len([]rune(raw)) > a.maxLength {
		return Request{}, &AdmissionError{
			Reason: ReasonTooLong,
			Detail: "input exceeds maximum length",
		}
	}
	if !utf8.ValidString(raw) {
		return Request{}, &AdmissionError{Reason: ReasonInvalidEncoding}
	}

	sanitized := stripControl(raw)
	if strings.TrimSpace(sanitized) == "" {
		return Request{}, &AdmissionError{
			Reason: ReasonEmpty,
			Detail: "input empty after sanitization",
		}
	}

	return Request{
		RawInput:       raw,
		SanitizedInput: sanitized,
		ReceivedAt:     time.Now().UTC(),
	}, nil
}

// stripControl removes control characters except newline, tab, and
// carriage return. All other content is preserved byte for byte.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t', '\r':
			return r
		}
		if r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F) {
			return -1
		}
		return r
	}, s)
}
