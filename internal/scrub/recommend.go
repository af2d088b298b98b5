package scrub

import "fmt"

// Priority orders recommendations from most to least urgent.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Recommendation is one actionable next step derived from a scrub result.
type Recommendation struct {
	Priority Priority `json:"priority"`
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
}

// Recommendations turns a result into an ordered action list:
// critical (unfixed blocking errors) > high (auto-fixable errors) >
// medium (warnings) > low (info).
func Recommendations(r Result) []Recommendation {
	var critical, high, medium, low []Recommendation

	for _, issue := range r.Errors {
		if issue.AutoFixable {
			high = append(high, Recommendation{
				Priority: PriorityHigh,
				RuleID:   issue.RuleID,
				Message:  issue.Message,
				Action:   "run auto-fix to resolve this issue",
			})
			continue
		}
		critical = append(critical, Recommendation{
			Priority: PriorityCritical,
			RuleID:   issue.RuleID,
			Message:  issue.Message,
			Action:   fmt.Sprintf("correct %s manually before submission", fieldOrClaim(issue.Field)),
		})
	}
	for _, issue := range r.Warnings {
		medium = append(medium, Recommendation{
			Priority: PriorityMedium,
			RuleID:   issue.RuleID,
			Message:  issue.Message,
			Action:   "review before submission; the payer may reject or delay the claim",
		})
	}
	for _, issue := range r.Info {
		low = append(low, Recommendation{
			Priority: PriorityLow,
			RuleID:   issue.RuleID,
			Message:  issue.Message,
			Action:   "informational; no action required",
		})
	}

	out := make([]Recommendation, 0, len(critical)+len(high)+len(medium)+len(low))
	out = append(out, critical...)
	out = append(out, high...)
	out = append(out, medium...)
	out = append(out, low...)
	return out
}

func fieldOrClaim(field string) string {
	if field == "" {
		return "the claim"
	}
	return field
}
