// Package scrub implements the claim scrubbing rule engine: deterministic,
// side-effect-free evaluation of a claim snapshot against an ordered set of
// payer-readiness rules, with optional auto-remediation of fixable issues.
package scrub

import (
	"fmt"
	"time"
)

// Config tunes the engine. Zero values get sensible defaults from NewEngine.
type Config struct {
	// TimelyFilingDays is the payer filing deadline counted from the date of
	// service. Payer-specific in reality, so it is configuration here.
	TimelyFilingDays int
	// WarningWindowDays is how many days before the deadline the engine
	// starts warning.
	WarningWindowDays int
	// Now is the clock, injectable for tests.
	Now func() time.Time
	// ExtraRules are appended after the built-in set. Rule content is
	// configuration; payer-specific checks plug in here.
	ExtraRules []Rule
}

const (
	DefaultTimelyFilingDays  = 365
	DefaultWarningWindowDays = 30
)

// Engine evaluates claims against a fixed, ordered rule set. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg   Config
	rules []Rule
}

// NewEngine builds an engine from cfg, applying defaults and validating the
// extra rules.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.TimelyFilingDays == 0 {
		cfg.TimelyFilingDays = DefaultTimelyFilingDays
	}
	if cfg.TimelyFilingDays < 0 {
		return nil, fmt.Errorf("timely filing days must be positive, got %d", cfg.TimelyFilingDays)
	}
	if cfg.WarningWindowDays == 0 {
		cfg.WarningWindowDays = DefaultWarningWindowDays
	}
	if cfg.WarningWindowDays < 0 || cfg.WarningWindowDays >= cfg.TimelyFilingDays {
		return nil, fmt.Errorf("warning window must be shorter than the filing limit")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rules := builtinRules(cfg)
	seen := make(map[string]bool, len(rules)+len(cfg.ExtraRules))
	for _, r := range rules {
		seen[r.ID] = true
	}
	for _, r := range cfg.ExtraRules {
		if r.ID == "" || r.Check == nil {
			return nil, fmt.Errorf("extra rule must have an id and a check")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		rules = append(rules, r)
	}
	return &Engine{cfg: cfg, rules: rules}, nil
}

// Rules returns the rule set in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Options select what a scrub run does.
type Options struct {
	// AutoFix applies fixable rules' transforms to an in-memory copy and
	// moves their issues into FixedIssues.
	AutoFix bool
	// Categories, when non-empty, restricts evaluation to those categories.
	Categories []Category
}

// Result is the outcome of one scrub run.
type Result struct {
	Status      Status          `json:"status"`
	Errors      []Issue         `json:"errors"`
	Warnings    []Issue         `json:"warnings"`
	Info        []Issue         `json:"info"`
	FixedIssues []FixedIssue    `json:"fixed_issues"`
	Summary     Summary         `json:"summary"`
	Categories  []CategoryCount `json:"categories"`
	Duration    time.Duration   `json:"duration"`
	// Claim is the post-fix snapshot. Identical to the input when AutoFix
	// was off or nothing was fixable.
	Claim Claim `json:"claim"`
}

// Scrub evaluates claim against the rule set. Rules run in declaration order
// regardless of claim content so issue ordering is stable across runs of an
// unchanged claim. A panic inside a single rule is downgraded to an info
// issue naming the rule; it never aborts the run.
func (e *Engine) Scrub(claim Claim, opts Options) Result {
	start := e.cfg.Now()
	work := claim.Clone()

	res := Result{
		Errors:      []Issue{},
		Warnings:    []Issue{},
		Info:        []Issue{},
		FixedIssues: []FixedIssue{},
	}
	counts := map[Category]*CategoryCount{}
	var order []Category

	record := func(cat Category) *CategoryCount {
		cc, ok := counts[cat]
		if !ok {
			cc = &CategoryCount{Category: cat}
			counts[cat] = cc
			order = append(order, cat)
		}
		return cc
	}

	for _, rule := range e.rules {
		if !categorySelected(rule.Category, opts.Categories) {
			continue
		}
		issue, panicked := e.runRule(rule, &work)
		if issue == nil {
			continue
		}
		if panicked {
			res.Info = append(res.Info, *issue)
			res.Summary.Info++
			record(issue.Category).Info++
			continue
		}
		if opts.AutoFix && rule.AutoFixable && rule.Fix != nil {
			if changes := e.runFix(rule, &work); changes != nil {
				res.FixedIssues = append(res.FixedIssues, FixedIssue{
					RuleID:  rule.ID,
					Changes: changes,
					Message: fmt.Sprintf("auto-fixed: %s", issue.Message),
				})
				res.Summary.AutoFixed++
				continue
			}
		}
		switch issue.Severity {
		case SeverityError:
			res.Errors = append(res.Errors, *issue)
			res.Summary.Errors++
			record(issue.Category).Errors++
		case SeverityWarning:
			res.Warnings = append(res.Warnings, *issue)
			res.Summary.Warnings++
			record(issue.Category).Warnings++
		default:
			res.Info = append(res.Info, *issue)
			res.Summary.Info++
			record(issue.Category).Info++
		}
	}

	for _, cat := range order {
		res.Categories = append(res.Categories, *counts[cat])
	}
	res.Status = deriveStatus(res.Summary)
	res.Duration = e.cfg.Now().Sub(start)
	res.Claim = work
	return res
}

// runRule evaluates one rule with panic isolation. A broken rule yields an
// info issue instead of taking down the scrub.
func (e *Engine) runRule(rule Rule, c *Claim) (issue *Issue, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			issue = &Issue{
				RuleID:    rule.ID,
				RuleName:  rule.Name,
				Category:  rule.Category,
				Severity:  SeverityInfo,
				Message:   fmt.Sprintf("rule %s failed to evaluate: %v", rule.ID, r),
				Timestamp: e.cfg.Now(),
			}
		}
	}()
	issue = rule.Check(c)
	if issue != nil {
		issue.RuleID = rule.ID
		issue.RuleName = rule.Name
		issue.Category = rule.Category
		if issue.Severity == "" {
			issue.Severity = rule.Severity
		}
		issue.AutoFixable = rule.AutoFixable
		issue.Timestamp = e.cfg.Now()
	}
	return issue, false
}

// runFix applies a rule's transform with the same panic isolation as Check.
func (e *Engine) runFix(rule Rule, c *Claim) (changes []FieldChange) {
	defer func() {
		if recover() != nil {
			changes = nil
		}
	}()
	return rule.Fix(c)
}

// deriveStatus implements the run-status derivation: fail beats fixed beats
// pass_with_warnings beats pass.
func deriveStatus(s Summary) Status {
	switch {
	case s.Errors > 0:
		return StatusFail
	case s.AutoFixed > 0:
		return StatusFixed
	case s.Warnings > 0:
		return StatusPassWithWarnings
	default:
		return StatusPass
	}
}

func categorySelected(cat Category, filter []Category) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == cat {
			return true
		}
	}
	return false
}

// FixOutcome is the result of AutoFixAll.
type FixOutcome struct {
	Claim      Claim        `json:"claim"`
	Fixed      []FixedIssue `json:"fixed"`
	FixedCount int          `json:"fixed_count"`
	Message    string       `json:"message"`
}

// AutoFixAll applies every auto-fixable rule's transform to a copy of claim,
// ignoring any category filter and without producing a full scrub result.
func (e *Engine) AutoFixAll(claim Claim) FixOutcome {
	work := claim.Clone()
	out := FixOutcome{Fixed: []FixedIssue{}}
	for _, rule := range e.rules {
		if !rule.AutoFixable || rule.Fix == nil {
			continue
		}
		issue, panicked := e.runRule(rule, &work)
		if issue == nil || panicked {
			continue
		}
		changes := e.runFix(rule, &work)
		if changes == nil {
			continue
		}
		out.Fixed = append(out.Fixed, FixedIssue{
			RuleID:  rule.ID,
			Changes: changes,
			Message: fmt.Sprintf("auto-fixed: %s", issue.Message),
		})
		out.FixedCount++
	}
	out.Claim = work
	if out.FixedCount == 0 {
		out.Message = "no auto-fixable issues found"
	} else {
		out.Message = fmt.Sprintf("auto-fixed %d issue(s)", out.FixedCount)
	}
	return out
}
