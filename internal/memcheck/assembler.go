package memcheck

// State is the assembler's scanning state. The two states and their
// transition table are first-class so the machine can be unit-tested
// independently of the pattern library.
type State int

const (
	// StateScanning is the initial state, looking for the next header.
	StateScanning State = iota
	// StateInTrace accumulates stack frames for the current header.
	StateInTrace
)

// String returns the state name for logs and test failures.
func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateInTrace:
		return "in_trace"
	default:
		return "unknown"
	}
}

// lineKind classifies one physical line for the transition table.
type lineKind int

const (
	kindSummary lineKind = iota
	kindHeader
	kindFrame
	kindFreedAddress
	kindOther
)

// transition describes what happens when a line of a given kind arrives in
// a given state.
type transition struct {
	next         State
	closePending bool // emit the pending record before acting
	openRecord   bool // the line opens a new pending record
	appendFrame  bool // the line appends a frame to the pending record
	retypeFreed  bool // the line reclassifies the pending record as use-after-free
}

// transitions is the complete state machine. Lines that match nothing while
// scanning are non-issue prose (process banners, configuration output) and
// are skipped silently.
var transitions = map[State]map[lineKind]transition{
	StateScanning: {
		kindSummary:      {next: StateScanning},
		kindHeader:       {next: StateInTrace, openRecord: true},
		kindFrame:        {next: StateScanning}, // orphan frame, no record to attach to
		kindFreedAddress: {next: StateScanning},
		kindOther:        {next: StateScanning},
	},
	StateInTrace: {
		kindSummary:      {next: StateScanning, closePending: true},
		kindHeader:       {next: StateInTrace, closePending: true, openRecord: true},
		kindFrame:        {next: StateInTrace, appendFrame: true},
		kindFreedAddress: {next: StateInTrace, retypeFreed: true},
		kindOther:        {next: StateScanning, closePending: true},
	},
}

// classifyLine maps a physical line onto the transition table's alphabet.
// The checks are order-sensitive: summary shapes overlap header shapes, and
// headers must never be consumed by the permissive frame pattern.
func classifyLine(line string) (lineKind, HeaderMatch, StackFrame) {
	if MatchSummary(line) {
		return kindSummary, HeaderMatch{}, StackFrame{}
	}
	if h, ok := MatchHeader(line); ok {
		return kindHeader, h, StackFrame{}
	}
	if f, ok := MatchFrame(line); ok {
		return kindFrame, HeaderMatch{}, f
	}
	if MatchFreedAddress(line) {
		return kindFreedAddress, HeaderMatch{}, StackFrame{}
	}
	return kindOther, HeaderMatch{}, StackFrame{}
}

// Assembler groups a header line and its following contiguous stack-frame
// lines into one IssueRecord per block, in a single pass over the ordered
// input lines. It is inherently incremental: abandoning it at any state
// boundary leaves a valid list of closed records.
type Assembler struct {
	state     State
	pending   *IssueRecord
	records   []IssueRecord
	warnings  []ParseWarning
	sink      DiagnosticSink
	lineCount int
}

// NewAssembler returns an assembler in the Scanning state. The sink may be
// nil; warnings are always retained and retrievable via Warnings.
func NewAssembler(sink DiagnosticSink) *Assembler {
	return &Assembler{state: StateScanning, sink: sink}
}

// Assemble runs a single-pass scan over ordered log lines and returns the
// assembled records plus the recoverable parse warnings. Empty input yields
// an empty record list, not an error.
func Assemble(lines []string, sink DiagnosticSink) ([]IssueRecord, []ParseWarning) {
	a := NewAssembler(sink)
	a.Run(lines)
	return a.Finish()
}

// Run consumes the given lines. It may be called repeatedly with successive
// chunks; line numbering continues across calls.
func (a *Assembler) Run(lines []string) {
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		// Word-break recovery: a header severed by a line wrap is re-joined
		// from a bounded forward window before classification falls through
		// to the weaker patterns.
		if h, extra, ok := MatchHeaderWrapped(lines, i); ok {
			a.lineCount += 1 + extra
			a.apply(kindHeader, line, h, StackFrame{})
			i += extra
			continue
		}

		a.lineCount++
		kind, h, frame := classifyLine(line)
		a.apply(kind, line, h, frame)
	}
}

// Finish closes any pending record and returns the accumulated records and
// warnings. End of input while a trace is open emits the partial record
// as-is; truncated input is valid and common.
func (a *Assembler) Finish() ([]IssueRecord, []ParseWarning) {
	if a.pending != nil {
		a.warn(ParseWarning{
			LineNumber: a.lineCount,
			Reason:     ReasonIncompleteTrace,
		})
		a.closePending()
	}
	a.state = StateScanning
	return a.records, a.warnings
}

// State exposes the current state for tests and abandonment checks.
func (a *Assembler) State() State { return a.state }

// Records returns the records closed so far.
func (a *Assembler) Records() []IssueRecord { return a.records }

// Warnings returns the parse warnings accumulated so far.
func (a *Assembler) Warnings() []ParseWarning { return a.warnings }

// apply executes one transition.
func (a *Assembler) apply(kind lineKind, line string, h HeaderMatch, frame StackFrame) {
	t := transitions[a.state][kind]

	if t.closePending {
		a.closePending()
	}
	if t.openRecord {
		if !a.openRecord(h, line) {
			// Malformed header: the record is dropped with a diagnostic
			// rather than emitted with a placeholder count. Frames that
			// belonged to it are skipped from the Scanning state.
			a.state = StateScanning
			return
		}
	}
	if t.appendFrame && a.pending != nil {
		a.pending.StackTrace = append(a.pending.StackTrace, frame)
	}
	if t.retypeFreed && a.pending != nil {
		a.pending.Type = UseAfterFree
	}

	a.state = t.next
}

// openRecord normalizes the header's count tokens and opens a new pending
// record. A count that fails normalization produces a malformed_number
// warning and no record.
func (a *Assembler) openRecord(h HeaderMatch, line string) bool {
	bytesCount, breakdown, err := NormalizeCount(h.BytesToken)
	if err != nil {
		a.warn(ParseWarning{LineNumber: a.lineCount, RawText: line, Reason: ReasonMalformedNumber})
		return false
	}
	blocksCount, _, err := NormalizeCount(h.BlocksToken)
	if err != nil {
		a.warn(ParseWarning{LineNumber: a.lineCount, RawText: line, Reason: ReasonMalformedNumber})
		return false
	}

	a.pending = &IssueRecord{
		Type:          h.Type,
		BytesCount:    bytesCount,
		BlocksCount:   blocksCount,
		ByteBreakdown: breakdown,
		LossRecordID:  h.LossRecordID,
	}
	return true
}

// closePending derives the record's source location and severity and emits
// it. Source location comes from the first frame, outermost first, that
// carries one.
func (a *Assembler) closePending() {
	if a.pending == nil {
		return
	}

	for _, f := range a.pending.StackTrace {
		if loc := f.Location(); loc != "" {
			a.pending.SourceLocation = loc
			break
		}
	}
	a.pending.Severity = a.pending.Type.Rank()

	a.records = append(a.records, *a.pending)
	a.pending = nil
}

func (a *Assembler) warn(w ParseWarning) {
	a.warnings = append(a.warnings, w)
	if a.sink != nil {
		a.sink.ParseWarning(w)
	}
}
