// Package streak derives run lengths from a chronologically ordered slice of
// completion entries.
package streak

import "habittracker/internal/ledger"

// Result holds the trailing and the longest run of completed entries.
type Result struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Summary extends Result with completion totals over the same slice.
type Summary struct {
	Result
	Completed      int     `json:"completed"`
	Total          int     `json:"total"`
	CompletionRate float64 `json:"completionRate"`
}

// Calculate scans entries newest to oldest. The input must already be sorted
// oldest first. Runs are counted over entries, not calendar days: a day with
// no entry does not break a streak.
func Calculate(entries []ledger.Entry) Result {
	var res Result
	run := 0
	trailing := true
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Completed {
			trailing = false
			run = 0
			continue
		}
		run++
		if trailing {
			res.Current = run
		}
		res.Max = max(res.Max, run)
	}
	return res
}

func Summarize(entries []ledger.Entry) Summary {
	s := Summary{Result: Calculate(entries), Total: len(entries)}
	for _, e := range entries {
		if e.Completed {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total)
	}
	return s
}
