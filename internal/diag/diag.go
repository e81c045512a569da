// Package diag defines the diagnostic contract shared by every flowDB
// component: stable error codes, source fragments, and a renderer that
// turns a diagnostic into a caret-annotated report.
//
// Callers pattern-match on codes, never on Go types. A diagnostic wraps an
// optional cause, forming a chain that survives serialization.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error code such as "TXN_001".
// The prefix names the subsystem, the suffix is stable across releases.
type Code string

// Subsystem prefixes.
const (
	PrefixCatalog     = "CAT"
	PrefixTransaction = "TXN"
	PrefixFunction    = "FUNCTION"
	PrefixCast        = "CAST"
	PrefixSequence    = "SEQ"
	PrefixKey         = "KEY"
	PrefixQuery       = "QUERY"
	PrefixInternal    = "INTERNAL"
)

// Well-known codes. The numeric suffixes are frozen; new codes append.
const (
	CatalogNotFound        Code = "CAT_001"
	CatalogAlreadyExists   Code = "CAT_002"
	CatalogUnresolvedName  Code = "CAT_003"
	CatalogObjectDeleted   Code = "CAT_004"
	CatalogPendingConflict Code = "CAT_005"

	TxnConflict         Code = "TXN_001"
	TxnAborted          Code = "TXN_002"
	TxnTimeout          Code = "TXN_003"
	TxnNotActive        Code = "TXN_004"
	TxnSubscriberLagged Code = "TXN_005"

	FunctionUnknown       Code = "FUNCTION_001"
	FunctionArityMismatch Code = "FUNCTION_002"
	FunctionArgumentType  Code = "FUNCTION_003"

	CastFailure    Code = "CAST_001"
	CastOutOfRange Code = "CAST_002"
	CastUnsupported Code = "CAST_003"

	SequenceExhausted Code = "SEQ_001"

	KeyDecodeFailure Code = "KEY_001"

	QueryParse      Code = "QUERY_001"
	QuerySchemaMismatch Code = "QUERY_002"
	QueryPermissionDenied Code = "QUERY_003"

	Internal Code = "INTERNAL_001"
)

// Fragment points at the source span a diagnostic refers to. Line and
// Column are 1-based; Text is the offending token or slice of the
// statement.
type Fragment struct {
	Text   string `json:"text"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Diagnostic is the single error currency of the core. It implements
// error so it flows through ordinary Go error returns.
type Diagnostic struct {
	Code      Code        `json:"code"`
	Message   string      `json:"message"`
	Fragment  *Fragment   `json:"fragment,omitempty"`
	Label     string      `json:"label,omitempty"`
	Help      string      `json:"help,omitempty"`
	Notes     []string    `json:"notes,omitempty"`
	Statement string      `json:"-"`
	Cause     *Diagnostic `json:"cause,omitempty"`
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Unwrap exposes the cause chain to errors.Is / errors.As.
func (d *Diagnostic) Unwrap() error {
	if d.Cause == nil {
		return nil
	}
	return d.Cause
}

// WithFragment attaches a source fragment and returns the diagnostic.
func (d *Diagnostic) WithFragment(f Fragment) *Diagnostic {
	d.Fragment = &f
	return d
}

// WithLabel attaches a short label rendered under the caret.
func (d *Diagnostic) WithLabel(label string) *Diagnostic {
	d.Label = label
	return d
}

// WithHelp attaches a help paragraph.
func (d *Diagnostic) WithHelp(help string) *Diagnostic {
	d.Help = help
	return d
}

// WithNote appends a free-form note.
func (d *Diagnostic) WithNote(note string) *Diagnostic {
	d.Notes = append(d.Notes, note)
	return d
}

// WithCause chains an underlying diagnostic.
func (d *Diagnostic) WithCause(cause error) *Diagnostic {
	d.Cause = From(cause)
	return d
}

// WithStatement records the full statement text for the renderer.
func (d *Diagnostic) WithStatement(stmt string) *Diagnostic {
	d.Statement = stmt
	return d
}

// MarshalJSON keeps the wire shape stable even as internal fields grow.
func (d *Diagnostic) MarshalJSON() ([]byte, error) {
	type wire Diagnostic
	return json.Marshal((*wire)(d))
}

// New constructs a diagnostic with the given code and formatted message.
func New(code Code, format string, args ...any) *Diagnostic {
	return &Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)}
}

// From converts any error into a diagnostic. Diagnostics pass through
// unchanged; everything else becomes an INTERNAL diagnostic wrapping the
// original message.
func From(err error) *Diagnostic {
	if err == nil {
		return nil
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		return d
	}
	return &Diagnostic{Code: Internal, Message: err.Error()}
}

// CodeOf returns the diagnostic code of err, or Internal for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Code
	}
	return Internal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var d *Diagnostic
		if !errors.As(err, &d) {
			return false
		}
		if d.Code == code {
			return true
		}
		if d.Cause == nil {
			return false
		}
		err = d.Cause
	}
	return false
}
