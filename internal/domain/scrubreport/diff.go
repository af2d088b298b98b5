package scrubreport

import "github.com/claimwise/claimwise/internal/scrub"

// Diff compares two consecutive reports for the same claim.
type Diff struct {
	// New issues appeared in the current run.
	New []scrub.Issue `json:"new"`
	// Resolved issues were present previously and are gone now.
	Resolved []scrub.Issue `json:"resolved"`
	// Persisting issues appear in both runs.
	Persisting []scrub.Issue `json:"persisting"`
}

// issueKey identifies an issue across runs. Rule plus field is stable because
// the engine evaluates rules in fixed declaration order.
func issueKey(i scrub.Issue) string {
	return i.RuleID + "|" + i.Field
}

func allIssues(r *Report) []scrub.Issue {
	out := make([]scrub.Issue, 0, len(r.Errors)+len(r.Warnings)+len(r.Info))
	out = append(out, r.Errors...)
	out = append(out, r.Warnings...)
	out = append(out, r.Info...)
	return out
}

// DiffReports computes the run-over-run change set. A nil previous report
// (first scrub of the claim) makes every current issue new.
func DiffReports(prev, cur *Report) Diff {
	d := Diff{New: []scrub.Issue{}, Resolved: []scrub.Issue{}, Persisting: []scrub.Issue{}}

	curIssues := allIssues(cur)
	if prev == nil {
		d.New = append(d.New, curIssues...)
		return d
	}

	prevIssues := allIssues(prev)
	prevKeys := make(map[string]bool, len(prevIssues))
	for _, i := range prevIssues {
		prevKeys[issueKey(i)] = true
	}
	curKeys := make(map[string]bool, len(curIssues))
	for _, i := range curIssues {
		curKeys[issueKey(i)] = true
	}

	for _, i := range curIssues {
		if prevKeys[issueKey(i)] {
			d.Persisting = append(d.Persisting, i)
		} else {
			d.New = append(d.New, i)
		}
	}
	for _, i := range prevIssues {
		if !curKeys[issueKey(i)] {
			d.Resolved = append(d.Resolved, i)
		}
	}
	return d
}
