package classify

import (
	"math"
	"testing"

	"github.com/olegiv/valgrind-analyzer-go/internal/memcheck"
)

func leak(t memcheck.IssueType, bytes, blocks int64, loc string) memcheck.IssueRecord {
	rec := memcheck.IssueRecord{
		Type:           t,
		BytesCount:     bytes,
		BlocksCount:    blocks,
		SourceLocation: loc,
		Severity:       t.Rank(),
	}
	if loc != "" {
		rec.StackTrace = []memcheck.StackFrame{{Address: "0x1", FunctionName: "alloc", SourceFile: loc}}
	}
	return rec
}

func TestClassify(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.DefinitelyLost, 32, 1, "a.c:10"),
		leak(memcheck.StillReachable, 560, 14, "b.c:20"),
		leak(memcheck.DefinitelyLost, 16, 1, "a.c:10"),
	}

	classified := Classify(records)

	if len(classified.All) != 3 {
		t.Fatalf("Expected 3 records total, got %d", len(classified.All))
	}

	// Every enumerated type has an entry, even when empty.
	for _, it := range memcheck.AllIssueTypes() {
		if _, ok := classified.ByType[it]; !ok {
			t.Errorf("Missing entry for type %v", it)
		}
	}

	if got := len(classified.ByType[memcheck.DefinitelyLost]); got != 2 {
		t.Errorf("Expected 2 definitely lost, got %d", got)
	}
	if got := len(classified.ByType[memcheck.StillReachable]); got != 1 {
		t.Errorf("Expected 1 still reachable, got %d", got)
	}
	if got := len(classified.ByType[memcheck.InvalidRead]); got != 0 {
		t.Errorf("Expected 0 invalid reads, got %d", got)
	}

	// Within-type encounter order is preserved.
	dl := classified.ByType[memcheck.DefinitelyLost]
	if dl[0].BytesCount != 32 || dl[1].BytesCount != 16 {
		t.Error("Encounter order not preserved within type")
	}
}

func TestClassifyFlattenRoundTrip(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.PossiblyLost, 8, 1, "p.c:1"),
		leak(memcheck.DefinitelyLost, 32, 1, "a.c:10"),
		leak(memcheck.PossiblyLost, 24, 2, "q.c:2"),
	}

	first := Classify(records)
	second := Classify(Flatten(first))

	for _, it := range memcheck.AllIssueTypes() {
		a, b := first.ByType[it], second.ByType[it]
		if len(a) != len(b) {
			t.Fatalf("Type %v: %d records vs %d after round trip", it, len(a), len(b))
		}
		for i := range a {
			if a[i].BytesCount != b[i].BytesCount || a[i].SourceLocation != b[i].SourceLocation {
				t.Errorf("Type %v record %d changed across round trip", it, i)
			}
		}
	}
}

func TestComputeStatistics(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.DefinitelyLost, 32, 1, "a.c:10"),
		leak(memcheck.DefinitelyLost, 16, 1, "a.c:10"),
		leak(memcheck.StillReachable, 560, 14, "b.c:20"),
		leak(memcheck.PossiblyLost, 8, 1, "c.c:30"),
	}

	stats := ComputeStatistics(Classify(records), 10)

	if stats.TotalIssues != 4 {
		t.Errorf("Expected 4 total issues, got %d", stats.TotalIssues)
	}
	if stats.TotalBytes != 616 {
		t.Errorf("Expected 616 total bytes, got %d", stats.TotalBytes)
	}
	if stats.TotalBlocks != 17 {
		t.Errorf("Expected 17 total blocks, got %d", stats.TotalBlocks)
	}

	if stats.IssuesByType[memcheck.DefinitelyLost] != 2 {
		t.Errorf("Expected 2 definitely lost, got %d", stats.IssuesByType[memcheck.DefinitelyLost])
	}
	if stats.BytesByType[memcheck.StillReachable] != 560 {
		t.Errorf("Expected 560 still reachable bytes, got %d", stats.BytesByType[memcheck.StillReachable])
	}

	// Zero-filled entries for absent types.
	if _, ok := stats.IssuesByType[memcheck.InvalidWrite]; !ok {
		t.Error("Expected zero-filled entry for invalid write")
	}
	if stats.IssuesByType[memcheck.InvalidWrite] != 0 {
		t.Errorf("Expected 0 invalid writes, got %d", stats.IssuesByType[memcheck.InvalidWrite])
	}

	// Percentages sum to 1.0.
	var sum float64
	for _, p := range stats.PercentageByType {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Expected percentages to sum to 1.0, got %f", sum)
	}
	if math.Abs(stats.PercentageByType[memcheck.DefinitelyLost]-0.5) > 1e-9 {
		t.Errorf("Expected 0.5 share for definitely lost, got %f", stats.PercentageByType[memcheck.DefinitelyLost])
	}
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics(Classify(nil), 10)

	if stats.TotalIssues != 0 || stats.TotalBytes != 0 {
		t.Errorf("Expected all-zero totals, got %+v", stats)
	}
	for _, it := range memcheck.AllIssueTypes() {
		if stats.PercentageByType[it] != 0 {
			t.Errorf("Expected zero percentage for %v on empty input", it)
		}
	}
	if len(stats.TopSources) != 0 {
		t.Errorf("Expected no top sources, got %v", stats.TopSources)
	}
}

func TestTopSources(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.DefinitelyLost, 1, 1, "hot.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "warm.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "hot.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "cold.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "hot.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "warm.c:1"),
	}

	stats := ComputeStatistics(Classify(records), 2)

	if len(stats.TopSources) != 2 {
		t.Fatalf("Expected 2 ranked sources, got %d", len(stats.TopSources))
	}
	if stats.TopSources[0].Source != "hot.c:1" || stats.TopSources[0].Count != 3 {
		t.Errorf("Unexpected top source: %+v", stats.TopSources[0])
	}
	if stats.TopSources[1].Source != "warm.c:1" || stats.TopSources[1].Count != 2 {
		t.Errorf("Unexpected second source: %+v", stats.TopSources[1])
	}
}

func TestTopSourcesTieBreakFirstSeen(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.DefinitelyLost, 1, 1, "first.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "second.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "second.c:1"),
		leak(memcheck.DefinitelyLost, 1, 1, "first.c:1"),
	}

	stats := ComputeStatistics(Classify(records), 10)

	if stats.TopSources[0].Source != "first.c:1" {
		t.Errorf("Expected first-seen source to win the tie, got %q", stats.TopSources[0].Source)
	}
}

func TestTopSourcesFunctionFallback(t *testing.T) {
	rec := memcheck.IssueRecord{
		Type:       memcheck.DefinitelyLost,
		BytesCount: 8,
		StackTrace: []memcheck.StackFrame{
			{Address: "0x1"},
			{Address: "0x2", FunctionName: "helper", Library: "/usr/lib/libfoo.so"},
		},
	}

	stats := ComputeStatistics(Classify([]memcheck.IssueRecord{rec}), 10)

	if len(stats.TopSources) != 1 {
		t.Fatalf("Expected 1 source, got %d", len(stats.TopSources))
	}
	if stats.TopSources[0].Source != "helper (/usr/lib/libfoo.so)" {
		t.Errorf("Unexpected fallback key: %q", stats.TopSources[0].Source)
	}
}

func TestPrioritize(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.StillReachable, 1000000, 10, "big.c:1"),
		leak(memcheck.DefinitelyLost, 100, 1, "small.c:1"),
		leak(memcheck.DefinitelyLost, 200, 1, "mid.c:1"),
		leak(memcheck.InvalidWrite, 8, 1, "w.c:1"),
	}

	ordered := Prioritize(records)

	// A small definite leak outranks a huge reachable block.
	if ordered[0].Type != memcheck.DefinitelyLost || ordered[0].BytesCount != 200 {
		t.Errorf("Unexpected first record: %+v", ordered[0])
	}
	if ordered[1].Type != memcheck.DefinitelyLost || ordered[1].BytesCount != 100 {
		t.Errorf("Unexpected second record: %+v", ordered[1])
	}
	if ordered[2].Type != memcheck.InvalidWrite {
		t.Errorf("Unexpected third record: %+v", ordered[2])
	}
	if ordered[3].Type != memcheck.StillReachable {
		t.Errorf("Unexpected last record: %+v", ordered[3])
	}

	// Input order is untouched.
	if records[0].Type != memcheck.StillReachable {
		t.Error("Prioritize mutated its input")
	}
}

func TestPrioritizeStableOnTies(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.DefinitelyLost, 64, 1, "one.c:1"),
		leak(memcheck.DefinitelyLost, 64, 1, "two.c:1"),
		leak(memcheck.DefinitelyLost, 64, 1, "three.c:1"),
	}

	ordered := Prioritize(records)

	want := []string{"one.c:1", "two.c:1", "three.c:1"}
	for i, loc := range want {
		if ordered[i].SourceLocation != loc {
			t.Errorf("Position %d: expected %q, got %q", i, loc, ordered[i].SourceLocation)
		}
	}
}

func TestCriticalCount(t *testing.T) {
	records := []memcheck.IssueRecord{
		leak(memcheck.DefinitelyLost, 32, 1, "a.c:1"),
		leak(memcheck.InvalidRead, 4, 1, "b.c:1"),
		leak(memcheck.UseAfterFree, 0, 1, "c.c:1"),
		leak(memcheck.PossiblyLost, 8, 1, "d.c:1"),
		leak(memcheck.StillReachable, 16, 1, "e.c:1"),
	}

	stats := ComputeStatistics(Classify(records), 10)

	if got := CriticalCount(stats); got != 3 {
		t.Errorf("Expected 3 critical issues, got %d", got)
	}
}
