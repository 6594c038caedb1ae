package memcheck

import (
	"regexp"
	"strconv"
	"strings"
)

// Line recognizers for Memcheck output. The textual shapes overlap, so the
// checks are order-sensitive: summary before header, header before frame.
// A permissive frame pattern must never consume a header line.
var (
	// bannerPattern identifies the tool banner emitted at the top of a run.
	bannerPattern = regexp.MustCompile(`==\d+==\s+Memcheck,`)

	// summaryPattern matches aggregate lines that report totals across the
	// entire run. These are checked first and short-circuit header matching,
	// because the per-kind totals inside LEAK SUMMARY reuse the verdict
	// keywords of individual issue headers.
	summaryPattern = regexp.MustCompile(`(?i)^==\d+==\s+(?:` +
		`LEAK SUMMARY:|HEAP SUMMARY:|ERROR SUMMARY:|FILE DESCRIPTORS:|` +
		`(?:definitely|indirectly|possibly)\s+lost:|still\s+reachable:|suppressed:|` +
		`in use at exit:|total heap usage:|All heap blocks were freed)`)

	// leakHeaderPattern matches a single leak record header:
	//   ==1234==  1,204 (16 direct, 56 indirect) bytes in 3 blocks are
	//   definitely lost in loss record 5 of 12
	// Group 1 is the byte token including any parenthetical breakdown,
	// group 2 the block count, group 3 the verdict, group 4 the loss record.
	leakHeaderPattern = regexp.MustCompile(
		`(?i)^==\d+==\s+(\d[\d,]*(?:\s+\([^)]+\))?)\s+bytes?\s+in\s+([\d,]+)\s+blocks?\s+are\s+(.+?)\s+in\s+loss\s+record\s+(.+?)\s*$`)

	// leakHeaderPrefixPattern recognizes a header whose tail was severed by
	// a line wrap: the byte/block front matter is present but the verdict or
	// loss record is not. Used to gate word-break recovery.
	leakHeaderPrefixPattern = regexp.MustCompile(
		`(?i)^==\d+==\s+\d[\d,]*(?:\s+\([^)]+\))?\s+bytes?\s+in\b`)

	// invalidAccessPattern matches invalid read/write headers:
	//   ==1234== Invalid read of size 4
	invalidAccessPattern = regexp.MustCompile(
		`(?i)^==\d+==\s+Invalid\s+(read|write)\s+of\s+size\s+([\d,]+)`)

	// invalidFreePattern matches invalid or mismatched deallocations, which
	// are reported as use-after-free class issues.
	invalidFreePattern = regexp.MustCompile(
		`(?i)^==\d+==\s+(?:Invalid|Mismatched)\s+free\(\)`)

	// freedAddressPattern matches the address-context line that follows an
	// invalid access when the target block was already freed:
	//   ==1234==  Address 0x5204040 is 0 bytes inside a block of size 40 free'd
	freedAddressPattern = regexp.MustCompile(
		`(?i)^==\d+==\s+Address\s+0x[0-9a-f]+\s+is\s+.*\bfree'd`)

	// stackFramePattern matches one trace entry:
	//   ==1234==    at 0x4C2FB0F: malloc (vg_replace_malloc.c:299)
	//   ==1234==    by 0x4005E4: main (in /usr/bin/app)
	//   ==1234==    at 0x109199: ???
	// The description and the trailing parenthetical are both optional. The
	// parenthetical never nests, which keeps a parenthesized C++ signature
	// like "operator new(unsigned long)" inside the description capture.
	stackFramePattern = regexp.MustCompile(
		`(?i)^==\d+==\s+(?:at|by)\s+(0x[0-9A-Fa-f]+):\s*(.*?)(?:\s+\(([^()]+)\))?\s*$`)

	// sourceLocPattern extracts file:line from a frame parenthetical.
	sourceLocPattern = regexp.MustCompile(`^(.+?):(\d+)$`)

	// markerPrefixPattern strips the ==pid== marker from a continuation line
	// before re-joining wrapped tokens.
	markerPrefixPattern = regexp.MustCompile(`^==\d+==\s?`)
)

// wrapLookahead bounds word-break recovery to a small forward window so
// genuinely malformed input never triggers unbounded backtracking.
const wrapLookahead = 2

// HeaderMatch holds the fields extracted from an issue-header line. Count
// tokens are raw text; the caller normalizes them so that a malformed
// number can be reported against the originating line.
type HeaderMatch struct {
	Type         IssueType
	BytesToken   string
	BlocksToken  string
	LossRecordID string
}

// IsBanner reports whether the line is the Memcheck tool banner.
func IsBanner(line string) bool {
	return bannerPattern.MatchString(line)
}

// MatchSummary reports whether the line is an aggregate summary line.
// Summary lines describe the whole run and never produce an IssueRecord.
func MatchSummary(line string) bool {
	return summaryPattern.MatchString(line)
}

// MatchHeader attempts to recognize an issue header on a single physical
// line. Summary lines are explicitly excluded.
func MatchHeader(line string) (HeaderMatch, bool) {
	if MatchSummary(line) {
		return HeaderMatch{}, false
	}

	if m := leakHeaderPattern.FindStringSubmatch(line); m != nil {
		return HeaderMatch{
			Type:         classifyVerdict(m[3]),
			BytesToken:   m[1],
			BlocksToken:  m[2],
			LossRecordID: strings.TrimSpace(m[4]),
		}, true
	}

	if m := invalidAccessPattern.FindStringSubmatch(line); m != nil {
		t := InvalidRead
		if strings.EqualFold(m[1], "write") {
			t = InvalidWrite
		}
		return HeaderMatch{
			Type:         t,
			BytesToken:   m[2],
			BlocksToken:  "1",
			LossRecordID: "N/A",
		}, true
	}

	if invalidFreePattern.MatchString(line) {
		return HeaderMatch{
			Type:         UseAfterFree,
			BytesToken:   "0",
			BlocksToken:  "1",
			LossRecordID: "N/A",
		}, true
	}

	return HeaderMatch{}, false
}

// MatchHeaderWrapped retries a failed header match after re-joining a
// bounded forward window of lines, recovering headers whose verdict keyword
// was severed by a line wrap. It returns the match and how many extra lines
// beyond lines[i] were consumed. Recovery is attempted only when lines[i]
// carries the unambiguous byte/block front matter of a header.
func MatchHeaderWrapped(lines []string, i int) (HeaderMatch, int, bool) {
	if h, ok := MatchHeader(lines[i]); ok {
		return h, 0, true
	}
	if !leakHeaderPrefixPattern.MatchString(lines[i]) {
		return HeaderMatch{}, 0, false
	}

	joined := strings.TrimRight(lines[i], " \t")
	for k := 1; k <= wrapLookahead && i+k < len(lines); k++ {
		cont := markerPrefixPattern.ReplaceAllString(lines[i+k], "")
		cont = strings.TrimRight(cont, " \t")

		// A wrap can sever mid-token or at a space boundary; try both.
		if h, ok := MatchHeader(joined + cont); ok {
			return h, k, true
		}
		if h, ok := MatchHeader(joined + " " + cont); ok {
			return h, k, true
		}
		joined += cont
	}

	return HeaderMatch{}, 0, false
}

// MatchFrame attempts to recognize a stack-frame line. Frames with only an
// address (no symbol, no source) are valid; the optional fields stay empty.
func MatchFrame(line string) (StackFrame, bool) {
	m := stackFramePattern.FindStringSubmatch(line)
	if m == nil {
		return StackFrame{}, false
	}

	frame := StackFrame{Address: m[1]}

	if desc := strings.TrimSpace(m[2]); desc != "" && desc != "???" {
		frame.FunctionName = desc
	}

	// The parenthetical is either "in <library>" or a source location.
	if paren := strings.TrimSpace(m[3]); paren != "" && paren != "???" {
		if after, ok := strings.CutPrefix(paren, "in "); ok {
			frame.Library = strings.TrimSpace(after)
		} else if sm := sourceLocPattern.FindStringSubmatch(paren); sm != nil {
			frame.SourceFile = sm[1]
			if n, err := strconv.Atoi(sm[2]); err == nil {
				frame.LineNumber = n
			}
		} else {
			frame.SourceFile = paren
		}
	}

	if !frame.Valid() {
		return StackFrame{}, false
	}
	return frame, true
}

// MatchFreedAddress reports whether the line is an address-context line
// indicating the accessed block was already freed. The assembler uses it to
// reclassify a pending invalid access as use-after-free.
func MatchFreedAddress(line string) bool {
	return freedAddressPattern.MatchString(line)
}

// classifyVerdict maps the captured verdict text to an issue type. Matching
// is on keyword stems so that truncated tokens recovered from a line wrap
// still classify. Unknown verdicts map to IssueOther, never dropped.
func classifyVerdict(verdict string) IssueType {
	v := strings.ToLower(verdict)
	switch {
	case strings.Contains(v, "definit"):
		return DefinitelyLost
	case strings.Contains(v, "possibl"):
		return PossiblyLost
	case strings.Contains(v, "reachabl"):
		return StillReachable
	default:
		return IssueOther
	}
}
