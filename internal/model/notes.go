package model

import (
	"fmt"
	"strings"
)

// Note kinds, loosely mirroring the failure taxonomy: configuration gaps,
// transient collaborator failures, malformed output, timeouts, and the one
// fatal precondition.
const (
	NoteKindConfig    = "config"
	NoteKindTransient = "transient"
	NoteKindMalformed = "malformed"
	NoteKindTimeout   = "timeout"
	NoteKindFatal     = "fatal"
)

// Note is one non-fatal (or, rarely, fatal) problem recorded during a run.
// The pipeline accumulates notes instead of raising, so callers always get a
// partial, explainable result.
type Note struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notes is an ordered trail of problems from a single run.
type Notes []Note

// Add appends a note.
func (n *Notes) Add(stage, kind, message string) {
	*n = append(*n, Note{Stage: stage, Kind: kind, Message: message})
}

// Addf appends a formatted note.
func (n *Notes) Addf(stage, kind, format string, args ...any) {
	n.Add(stage, kind, fmt.Sprintf(format, args...))
}

// Fatal reports whether any note is fatal.
func (n Notes) Fatal() bool {
	for _, note := range n {
		if note.Kind == NoteKindFatal {
			return true
		}
	}
	return false
}

// String renders the trail as a single human-readable error summary.
func (n Notes) String() string {
	if len(n) == 0 {
		return ""
	}
	parts := make([]string, 0, len(n))
	for _, note := range n {
		parts = append(parts, fmt.Sprintf("%s: %s", note.Stage, note.Message))
	}
	return strings.Join(parts, " ")
}
