// Package classify groups assembled memory-issue records by type and
// derives aggregate statistics: totals, per-type counts and byte sums,
// percentage distribution, and the most frequent issue sources.
package classify

import (
	"fmt"
	"sort"

	"github.com/olegiv/valgrind-analyzer-go/internal/memcheck"
)

// DefaultTopSourcesLimit caps the top-sources ranking when the caller does
// not specify a limit.
const DefaultTopSourcesLimit = 10

// ClassifiedIssues maps each issue type to its records. Encounter order is
// preserved within a type; every enumerated type has an entry, so consumers
// never index a missing key.
type ClassifiedIssues struct {
	ByType map[memcheck.IssueType][]memcheck.IssueRecord
	All    []memcheck.IssueRecord
}

// SourceCount is one entry in the top-sources ranking.
type SourceCount struct {
	Source string
	Count  int
}

// Statistics is derived from a classified set and immutable once computed.
type Statistics struct {
	TotalIssues int
	TotalBytes  int64
	TotalBlocks int64

	IssuesByType map[memcheck.IssueType]int
	BytesByType  map[memcheck.IssueType]int64
	BlocksByType map[memcheck.IssueType]int64

	// PercentageByType holds each type's share of TotalIssues as a fraction;
	// the values sum to 1.0 when TotalIssues > 0 and are all zero otherwise.
	PercentageByType map[memcheck.IssueType]float64

	TopSources []SourceCount
}

// Classify groups records by issue type, preserving the original encounter
// order within each group. Reclassifying a flattened classification yields
// an identical grouping.
func Classify(records []memcheck.IssueRecord) ClassifiedIssues {
	byType := make(map[memcheck.IssueType][]memcheck.IssueRecord, len(memcheck.AllIssueTypes()))
	for _, t := range memcheck.AllIssueTypes() {
		byType[t] = []memcheck.IssueRecord{}
	}
	for _, rec := range records {
		byType[rec.Type] = append(byType[rec.Type], rec)
	}

	all := make([]memcheck.IssueRecord, len(records))
	copy(all, records)

	return ClassifiedIssues{ByType: byType, All: all}
}

// Flatten returns the classified records as a flat list, iterating types in
// severity-rank order and preserving within-type order.
func Flatten(c ClassifiedIssues) []memcheck.IssueRecord {
	var out []memcheck.IssueRecord
	for _, t := range memcheck.AllIssueTypes() {
		out = append(out, c.ByType[t]...)
	}
	return out
}

// ComputeStatistics derives aggregate statistics from a classified set.
// Every enumerated type gets a zero-filled entry in the per-type maps even
// when it has no records.
func ComputeStatistics(c ClassifiedIssues, topLimit int) Statistics {
	if topLimit <= 0 {
		topLimit = DefaultTopSourcesLimit
	}

	stats := Statistics{
		TotalIssues:      len(c.All),
		IssuesByType:     make(map[memcheck.IssueType]int, len(memcheck.AllIssueTypes())),
		BytesByType:      make(map[memcheck.IssueType]int64, len(memcheck.AllIssueTypes())),
		BlocksByType:     make(map[memcheck.IssueType]int64, len(memcheck.AllIssueTypes())),
		PercentageByType: make(map[memcheck.IssueType]float64, len(memcheck.AllIssueTypes())),
	}
	for _, t := range memcheck.AllIssueTypes() {
		stats.IssuesByType[t] = 0
		stats.BytesByType[t] = 0
		stats.BlocksByType[t] = 0
		stats.PercentageByType[t] = 0
	}

	for _, rec := range c.All {
		stats.IssuesByType[rec.Type]++
		stats.BytesByType[rec.Type] += rec.BytesCount
		stats.BlocksByType[rec.Type] += rec.BlocksCount
		stats.TotalBytes += rec.BytesCount
		stats.TotalBlocks += rec.BlocksCount
	}

	// Guard against division by zero: an empty run yields all-zero
	// percentages rather than failing.
	if stats.TotalIssues > 0 {
		for t, n := range stats.IssuesByType {
			stats.PercentageByType[t] = float64(n) / float64(stats.TotalIssues)
		}
	}

	stats.TopSources = topSources(c.All, topLimit)

	return stats
}

// topSources ranks issue sources by occurrence count, descending, with ties
// broken by first-seen order. A record is keyed by its source location when
// known, otherwise by the function of its outermost resolvable frame.
func topSources(records []memcheck.IssueRecord, limit int) []SourceCount {
	counts := make(map[string]int)
	var firstSeen []string

	for _, rec := range records {
		key := sourceKey(rec)
		if key == "" {
			continue
		}
		if _, seen := counts[key]; !seen {
			firstSeen = append(firstSeen, key)
		}
		counts[key]++
	}

	// Building the slice in first-seen order and sorting stably by count
	// keeps the first-seen tie-break without explicit sequence numbers.
	ranked := make([]SourceCount, 0, len(firstSeen))
	for _, key := range firstSeen {
		ranked = append(ranked, SourceCount{Source: key, Count: counts[key]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// sourceKey identifies where an issue originated for ranking purposes.
func sourceKey(rec memcheck.IssueRecord) string {
	if rec.SourceLocation != "" {
		return rec.SourceLocation
	}
	for _, f := range rec.StackTrace {
		if f.FunctionName != "" {
			if f.Library != "" {
				return fmt.Sprintf("%s (%s)", f.FunctionName, f.Library)
			}
			return f.FunctionName
		}
	}
	return ""
}

// Prioritize returns the records sorted critical-first: primary key is the
// issue-type severity rank, secondary key is bytes descending, and records
// tied on both keys keep their original encounter order (stable sort).
func Prioritize(records []memcheck.IssueRecord) []memcheck.IssueRecord {
	out := make([]memcheck.IssueRecord, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type.Rank() != out[j].Type.Rank() {
			return out[i].Type.Rank() < out[j].Type.Rank()
		}
		return out[i].BytesCount > out[j].BytesCount
	})

	return out
}

// CriticalCount reports how many issues fall into the corruption-or-certain
// leak classes that warrant alerting.
func CriticalCount(stats Statistics) int {
	return stats.IssuesByType[memcheck.DefinitelyLost] +
		stats.IssuesByType[memcheck.InvalidWrite] +
		stats.IssuesByType[memcheck.InvalidRead] +
		stats.IssuesByType[memcheck.UseAfterFree]
}
