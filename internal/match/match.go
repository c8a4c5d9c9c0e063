// Package match implements the fuzzy comparisons used to decide whether two
// deadline records describe the same real task.
package match

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/nhle/deadline-tracker/internal/model"
)

const (
	// SimilarityThreshold is the score a task pair must exceed to count
	// as similar.
	SimilarityThreshold = 0.7

	// substringScore is returned when one label contains the other.
	substringScore = 0.8
)

// isoLayouts are tried in order before falling back to dateparse.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Similar returns a symmetric score in [0,1] for two task labels. The
// comparison is case-insensitive; containment scores 0.8, otherwise the
// score is the shared-word count over the larger word set.
func Similar(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == "" || b == "" {
		return 0
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return substringScore
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	common := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			common++
		}
	}

	return float64(common) / float64(max(len(wordsA), len(wordsB)))
}

// SimilarTasks reports whether two labels pass the duplicate threshold,
// either by containment or by a score above SimilarityThreshold.
func SimilarTasks(a, b string) bool {
	la := strings.ToLower(a)
	lb := strings.ToLower(b)
	if la == "" || lb == "" {
		return false
	}
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return true
	}
	return Similar(a, b) > SimilarityThreshold
}

// SameDay reports whether both values parse and share year, month and day
// as parsed. No timezone normalisation is applied.
func SameDay(a, b string) bool {
	ta, ok := ParseDue(a)
	if !ok {
		return false
	}
	tb, ok := ParseDue(b)
	if !ok {
		return false
	}

	ya, ma, da := ta.Date()
	yb, mb, db := tb.Date()
	return ya == yb && ma == mb && da == db
}

// IsDuplicate reports whether two deadlines represent the same task: a
// similar task label together with either the same non-empty source
// message or the same due day.
func IsDuplicate(a, b model.Deadline) bool {
	if !SimilarTasks(a.Task, b.Task) {
		return false
	}

	sameSource := a.SourceEmailID != "" && a.SourceEmailID == b.SourceEmailID
	return sameSource || SameDay(a.Due, b.Due)
}

// ParseDue parses a due value. ISO-8601 forms are tried first; values
// without a zone are read in the local zone. Anything else goes through
// dateparse. ok is false when the value cannot be parsed.
func ParseDue(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}

	t, err := dateparse.ParseIn(s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// wordSet splits s on whitespace into a set of words.
func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
