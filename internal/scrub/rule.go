package scrub

import "time"

// Severity classifies how blocking an issue is for submission.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Category groups rules by the payer-readiness concern they check.
type Category string

const (
	CategoryRequiredFields Category = "required-fields"
	CategoryCodeFormat     Category = "code-format"
	CategoryCharges        Category = "charges"
	CategoryTimelyFiling   Category = "timely-filing"
	CategoryPayer          Category = "payer"
	CategoryDuplicates     Category = "duplicates"
)

// Status is the outcome of a scrub run.
type Status string

const (
	StatusPass             Status = "pass"
	StatusPassWithWarnings Status = "pass_with_warnings"
	StatusFail             Status = "fail"
	StatusFixed            Status = "fixed"
)

// Claim is the engine's input snapshot. It carries only the billing fields
// the rules inspect, decoupled from persistence so evaluation stays pure.
type Claim struct {
	ClaimNumber    string          `json:"claim_number"`
	PatientID      string          `json:"patient_id"`
	ProviderID     string          `json:"provider_id"`
	PayerID        string          `json:"payer_id"`
	InsuranceType  string          `json:"insurance_type"`
	PolicyNumber   string          `json:"policy_number"`
	GroupNumber    string          `json:"group_number"`
	ServiceDate    time.Time       `json:"service_date"`
	DiagnosisCodes []string        `json:"diagnosis_codes"`
	Procedures     []ProcedureLine `json:"procedures"`
	TotalCharges   float64         `json:"total_charges"`
}

// ProcedureLine is a single billable service line.
type ProcedureLine struct {
	Code        string     `json:"code"`
	Modifier    string     `json:"modifier,omitempty"`
	ServiceDate *time.Time `json:"service_date,omitempty"`
	Quantity    float64    `json:"quantity"`
	UnitCharge  float64    `json:"unit_charge"`
}

// Clone returns a deep copy so auto-fix transforms never touch the caller's claim.
func (c Claim) Clone() Claim {
	out := c
	out.DiagnosisCodes = append([]string(nil), c.DiagnosisCodes...)
	out.Procedures = append([]ProcedureLine(nil), c.Procedures...)
	return out
}

// Issue is a single finding reported by a rule.
type Issue struct {
	RuleID      string      `json:"rule_id"`
	RuleName    string      `json:"rule_name"`
	Category    Category    `json:"category"`
	Severity    Severity    `json:"severity"`
	Field       string      `json:"field,omitempty"`
	Value       interface{} `json:"value,omitempty"`
	Expected    interface{} `json:"expected,omitempty"`
	Message     string      `json:"message"`
	AutoFixable bool        `json:"auto_fixable"`
	Timestamp   time.Time   `json:"timestamp"`
}

// FieldChange records one field mutation applied by an auto-fix.
type FieldChange struct {
	Field string      `json:"field"`
	From  interface{} `json:"from"`
	To    interface{} `json:"to"`
}

// FixedIssue records an issue that an auto-fix resolved during a run.
type FixedIssue struct {
	RuleID  string        `json:"rule_id"`
	Changes []FieldChange `json:"changes"`
	Message string        `json:"message"`
}

// Rule is one named payer-readiness check. Check returns nil when the claim
// satisfies the rule. Fix, when non-nil, mutates the claim to resolve the
// issue and reports what it changed.
type Rule struct {
	ID          string
	Name        string
	Category    Category
	Severity    Severity
	AutoFixable bool
	Check       func(c *Claim) *Issue
	Fix         func(c *Claim) []FieldChange
}

// Summary holds the per-severity counts for a run.
type Summary struct {
	Errors    int `json:"errors"`
	Warnings  int `json:"warnings"`
	Info      int `json:"info"`
	AutoFixed int `json:"auto_fixed"`
}

// Add accumulates another summary, used for batch reduction.
func (s *Summary) Add(other Summary) {
	s.Errors += other.Errors
	s.Warnings += other.Warnings
	s.Info += other.Info
	s.AutoFixed += other.AutoFixed
}

// CategoryCount carries per-category counts in rule declaration order.
// A slice, not a map: issue ordering must be stable across runs for diffing.
type CategoryCount struct {
	Category Category `json:"category"`
	Errors   int      `json:"errors"`
	Warnings int      `json:"warnings"`
	Info     int      `json:"info"`
}
