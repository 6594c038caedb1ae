package memcheck

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Count tokens look like "1204", "1,204", or "72 (16 direct, 56 indirect)".
// The leading number outside parentheses is the canonical total; the
// parenthetical sub-breakdown is informational only.
var (
	countTokenPattern = regexp.MustCompile(`^\s*(\d[\d,]*)`)
	breakdownPattern  = regexp.MustCompile(`\(([^)]*)\)`)
)

// NormalizeCount parses a count token into its canonical non-negative total
// and the verbatim parenthetical annotation, if any. It tolerates thousands
// separators. Returns ErrMalformedNumber when no digit sequence is
// extractable from the start of the token.
func NormalizeCount(token string) (int64, string, error) {
	m := countTokenPattern.FindStringSubmatch(token)
	if m == nil {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedNumber, token)
	}

	digits := strings.ReplaceAll(m[1], ",", "")
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q: %v", ErrMalformedNumber, token, err)
	}

	var breakdown string
	if bm := breakdownPattern.FindStringSubmatch(token); bm != nil {
		breakdown = strings.TrimSpace(bm[1])
	}

	return n, breakdown, nil
}
