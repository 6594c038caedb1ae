// Package memcheck parses Valgrind Memcheck diagnostic output into
// structured memory-issue records. It recognizes issue headers and stack
// frames inside free-form, line-wrapped text, assembles them into records
// via a small state machine, and reports recoverable per-line failures as
// diagnostics instead of aborting the scan.
package memcheck

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedNumber is returned when a count token contains no extractable
// digit sequence. Callers treat it as a per-line recoverable failure: the
// enclosing record is dropped with a diagnostic, never emitted with a
// placeholder count.
var ErrMalformedNumber = errors.New("malformed number")

// IssueType is the closed set of memory-issue categories. Headers that
// match the generic verdict shape but no known keyword map to IssueOther
// rather than being dropped.
type IssueType int

// Issue categories, ordered by severity rank: leak certainty and
// memory-corruption risk outweigh benign retention.
const (
	DefinitelyLost IssueType = iota
	InvalidWrite
	InvalidRead
	UseAfterFree
	PossiblyLost
	StillReachable
	IssueOther
)

// issueTypeCount is the number of enumerated issue types.
const issueTypeCount = 7

// AllIssueTypes returns every enumerated issue type in severity-rank order.
// Aggregation code uses this to zero-fill per-type maps so downstream
// consumers never index a missing key.
func AllIssueTypes() []IssueType {
	return []IssueType{
		DefinitelyLost,
		InvalidWrite,
		InvalidRead,
		UseAfterFree,
		PossiblyLost,
		StillReachable,
		IssueOther,
	}
}

// String returns the snake_case identifier for the issue type.
func (t IssueType) String() string {
	switch t {
	case DefinitelyLost:
		return "definitely_lost"
	case PossiblyLost:
		return "possibly_lost"
	case StillReachable:
		return "still_reachable"
	case InvalidRead:
		return "invalid_read"
	case InvalidWrite:
		return "invalid_write"
	case UseAfterFree:
		return "use_after_free"
	default:
		return "other"
	}
}

// DisplayName returns the human-readable name used in reports.
func (t IssueType) DisplayName() string {
	switch t {
	case DefinitelyLost:
		return "Definitely Lost"
	case PossiblyLost:
		return "Possibly Lost"
	case StillReachable:
		return "Still Reachable"
	case InvalidRead:
		return "Invalid Read"
	case InvalidWrite:
		return "Invalid Write"
	case UseAfterFree:
		return "Use After Free"
	default:
		return "Other"
	}
}

// Rank returns the severity rank of the issue type. Lower ranks are more
// severe. The enum constants are declared in rank order, so the rank is
// the constant value itself.
func (t IssueType) Rank() int {
	if t < 0 || t >= issueTypeCount {
		return int(IssueOther)
	}
	return int(t)
}

// SeverityLabel returns the coarse severity bucket used in reports.
func (t IssueType) SeverityLabel() string {
	switch t {
	case DefinitelyLost, InvalidWrite, InvalidRead, UseAfterFree:
		return "Critical"
	case PossiblyLost:
		return "High"
	case StillReachable:
		return "Low"
	default:
		return "Medium"
	}
}

// StackFrame is one call-site entry in an issue's trace.
// Address is always present on a matched frame; the remaining fields are
// filled only when the tool emitted the corresponding information.
type StackFrame struct {
	Address      string
	FunctionName string
	Library      string
	SourceFile   string
	LineNumber   int
}

// Valid reports whether the frame carries at least one of address or
// function name. Frames with neither are not valid and are never emitted.
func (f StackFrame) Valid() bool {
	return f.Address != "" || f.FunctionName != ""
}

// Location returns "file:line" when both are known, the bare file when only
// it is, and "" when the frame has no source information.
func (f StackFrame) Location() string {
	if f.SourceFile == "" {
		return ""
	}
	if f.LineNumber > 0 {
		return fmt.Sprintf("%s:%d", f.SourceFile, f.LineNumber)
	}
	return f.SourceFile
}

// String renders the frame for display: function, library, location.
func (f StackFrame) String() string {
	var b strings.Builder
	if f.FunctionName != "" {
		b.WriteString(f.FunctionName)
	} else {
		b.WriteString(f.Address)
	}
	if f.Library != "" {
		b.WriteString(" [")
		b.WriteString(f.Library)
		b.WriteString("]")
	}
	if loc := f.Location(); loc != "" {
		b.WriteString(" (")
		b.WriteString(loc)
		b.WriteString(")")
	}
	return b.String()
}

// IssueRecord is one memory issue assembled from a contiguous header plus
// stack-frame block. Records never merge or split after creation.
type IssueRecord struct {
	Type IssueType

	// BytesCount and BlocksCount are the canonical totals, normalized from
	// possibly comma-grouped source text. The parenthetical direct/indirect
	// breakdown, when present, is retained verbatim in ByteBreakdown for
	// display only.
	BytesCount    int64
	BlocksCount   int64
	ByteBreakdown string

	// LossRecordID is the tool's own identifier for the record ("5 of 12").
	// Opaque, used only for traceability.
	LossRecordID string

	// StackTrace is ordered outermost (closest to the fault) first.
	StackTrace []StackFrame

	// SourceLocation is the location of the first frame that carries one,
	// or "" if none do.
	SourceLocation string

	// Severity is the issue-type rank, fixed at record close.
	Severity int
}

// PrimaryFunction returns the first resolvable function name in the trace,
// or "" when every frame is unresolved.
func (r IssueRecord) PrimaryFunction() string {
	for _, f := range r.StackTrace {
		if f.FunctionName != "" {
			return f.FunctionName
		}
	}
	return ""
}

// Warning reason codes attached to parse diagnostics.
const (
	ReasonMalformedNumber = "malformed_number"
	ReasonIncompleteTrace = "incomplete_trace"
)

// ParseWarning describes a recoverable per-line failure. The scan always
// continues past a warning; warnings explain every dropped or truncated
// record so processing n issues yields n or fewer records, never corrupted
// ones.
type ParseWarning struct {
	LineNumber int
	RawText    string
	Reason     string
}

// DiagnosticSink receives parse warnings as they occur. Implementations
// must not assume any ordering guarantee beyond encounter order.
type DiagnosticSink interface {
	ParseWarning(w ParseWarning)
}
