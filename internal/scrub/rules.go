package scrub

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ICD-10-CM: letter (no U), digit, alphanumeric, optional 1-4 char extension.
	icd10Pattern = regexp.MustCompile(`^[A-TV-Z][0-9][0-9A-Z](\.[0-9A-Z]{1,4})?$`)
	// CPT (5 digits) or HCPCS Level II (letter + 4 digits).
	procedurePattern = regexp.MustCompile(`^([0-9]{5}|[A-V][0-9]{4})$`)
)

// lineTotal sums procedure-line charges with exact decimal arithmetic.
// Float accumulation drifts on realistic fee schedules.
func lineTotal(lines []ProcedureLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		q := decimal.NewFromFloat(l.Quantity)
		u := decimal.NewFromFloat(l.UnitCharge)
		sum = sum.Add(q.Mul(u))
	}
	return sum.Round(2)
}

// insuranceRequiresGroup reports whether the payer plan type carries a group
// contract, in which case the group number must be present on the claim.
func insuranceRequiresGroup(insuranceType string) bool {
	switch strings.ToLower(insuranceType) {
	case "commercial", "group", "employer":
		return true
	}
	return false
}

// builtinRules returns the engine's rule set in fixed declaration order.
// The order is load-bearing: issue ordering must be identical across runs of
// an unchanged claim so report diffing can line findings up.
func builtinRules(cfg Config) []Rule {
	return []Rule{
		{
			ID:       "patient-required",
			Name:     "Patient reference present",
			Category: CategoryRequiredFields,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				if c.PatientID == "" {
					return &Issue{Field: "patient_id", Message: "claim has no patient reference"}
				}
				return nil
			},
		},
		{
			ID:       "provider-required",
			Name:     "Provider reference present",
			Category: CategoryRequiredFields,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				if c.ProviderID == "" {
					return &Issue{Field: "provider_id", Message: "claim has no rendering provider"}
				}
				return nil
			},
		},
		{
			ID:       "service-date-required",
			Name:     "Service date present",
			Category: CategoryRequiredFields,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				if c.ServiceDate.IsZero() {
					return &Issue{Field: "service_date", Message: "claim has no date of service"}
				}
				return nil
			},
		},
		{
			ID:       "procedure-lines-required",
			Name:     "At least one procedure line",
			Category: CategoryRequiredFields,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				if len(c.Procedures) == 0 {
					return &Issue{Field: "procedures", Message: "claim has no billable procedure lines"}
				}
				return nil
			},
		},
		{
			ID:       "diagnosis-required",
			Name:     "At least one diagnosis code",
			Category: CategoryRequiredFields,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				if len(c.DiagnosisCodes) == 0 {
					return &Issue{Field: "diagnosis_codes", Message: "claim has no diagnosis codes"}
				}
				return nil
			},
		},
		{
			ID:       "diagnosis-code-format",
			Name:     "Diagnosis codes are valid ICD-10",
			Category: CategoryCodeFormat,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				for i, code := range c.DiagnosisCodes {
					if !icd10Pattern.MatchString(code) {
						return &Issue{
							Field:    fmt.Sprintf("diagnosis_codes[%d]", i),
							Value:    code,
							Expected: "ICD-10-CM format (e.g. E11.9)",
							Message:  fmt.Sprintf("diagnosis code %q is not a valid ICD-10 code", code),
						}
					}
				}
				return nil
			},
		},
		{
			ID:       "procedure-code-format",
			Name:     "Procedure codes are valid CPT/HCPCS",
			Category: CategoryCodeFormat,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				for i, line := range c.Procedures {
					if !procedurePattern.MatchString(line.Code) {
						return &Issue{
							Field:    fmt.Sprintf("procedures[%d].code", i),
							Value:    line.Code,
							Expected: "CPT (99213) or HCPCS (J1100) format",
							Message:  fmt.Sprintf("procedure code %q is not a valid CPT/HCPCS code", line.Code),
						}
					}
				}
				return nil
			},
		},
		{
			ID:       "line-amounts-positive",
			Name:     "Procedure quantities and charges are positive",
			Category: CategoryCharges,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				for i, line := range c.Procedures {
					if line.Quantity <= 0 {
						return &Issue{
							Field:   fmt.Sprintf("procedures[%d].quantity", i),
							Value:   line.Quantity,
							Message: "procedure line quantity must be greater than zero",
						}
					}
					if line.UnitCharge <= 0 {
						return &Issue{
							Field:   fmt.Sprintf("procedures[%d].unit_charge", i),
							Value:   line.UnitCharge,
							Message: "procedure line unit charge must be greater than zero",
						}
					}
				}
				return nil
			},
		},
		{
			ID:          "charge-consistency",
			Name:        "Total charges equal the sum of procedure lines",
			Category:    CategoryCharges,
			Severity:    SeverityError,
			AutoFixable: true,
			Check: func(c *Claim) *Issue {
				if len(c.Procedures) == 0 {
					return nil
				}
				want := lineTotal(c.Procedures)
				got := decimal.NewFromFloat(c.TotalCharges).Round(2)
				if !got.Equal(want) {
					wantF, _ := want.Float64()
					return &Issue{
						Field:    "total_charges",
						Value:    c.TotalCharges,
						Expected: wantF,
						Message: fmt.Sprintf("total charges %.2f do not match procedure line sum %.2f",
							c.TotalCharges, wantF),
					}
				}
				return nil
			},
			// Documented fix policy: recompute the total from the line sum,
			// never adjust lines to meet the stated total.
			Fix: func(c *Claim) []FieldChange {
				want, _ := lineTotal(c.Procedures).Float64()
				if decimal.NewFromFloat(c.TotalCharges).Round(2).Equal(lineTotal(c.Procedures)) {
					return nil
				}
				change := FieldChange{Field: "total_charges", From: c.TotalCharges, To: want}
				c.TotalCharges = want
				return []FieldChange{change}
			},
		},
		{
			ID:       "timely-filing",
			Name:     "Claim is within the timely filing window",
			Category: CategoryTimelyFiling,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				if c.ServiceDate.IsZero() {
					return nil
				}
				elapsed := int(cfg.Now().Sub(c.ServiceDate).Hours() / 24)
				limit := cfg.TimelyFilingDays
				switch {
				case elapsed > limit:
					return &Issue{
						Field:    "service_date",
						Value:    elapsed,
						Expected: limit,
						Message: fmt.Sprintf("service date is %d days old, past the %d-day filing limit",
							elapsed, limit),
					}
				case elapsed > limit-cfg.WarningWindowDays:
					return &Issue{
						Severity: SeverityWarning,
						Field:    "service_date",
						Value:    elapsed,
						Expected: limit,
						Message: fmt.Sprintf("service date is %d days old, within %d days of the %d-day filing limit",
							elapsed, limit-elapsed, limit),
					}
				}
				return nil
			},
		},
		{
			ID:       "payer-policy-number",
			Name:     "Policy number present for the payer",
			Category: CategoryPayer,
			Severity: SeverityError,
			Check: func(c *Claim) *Issue {
				if c.PayerID != "" && c.PolicyNumber == "" {
					return &Issue{
						Field:   "policy_number",
						Message: "payer is set but the subscriber policy number is missing",
					}
				}
				return nil
			},
		},
		{
			ID:       "payer-group-number",
			Name:     "Group number present for group plans",
			Category: CategoryPayer,
			Severity: SeverityWarning,
			Check: func(c *Claim) *Issue {
				if insuranceRequiresGroup(c.InsuranceType) && c.GroupNumber == "" {
					return &Issue{
						Field:    "group_number",
						Value:    c.InsuranceType,
						Message:  fmt.Sprintf("%s plans carry a group contract; group number is missing", c.InsuranceType),
						Expected: "group number",
					}
				}
				return nil
			},
		},
		{
			ID:          "duplicate-lines",
			Name:        "No duplicate procedure lines",
			Category:    CategoryDuplicates,
			Severity:    SeverityWarning,
			AutoFixable: true,
			Check: func(c *Claim) *Issue {
				if i, j := findDuplicateLines(c.Procedures); i >= 0 {
					return &Issue{
						Field: fmt.Sprintf("procedures[%d]", j),
						Value: c.Procedures[j].Code,
						Message: fmt.Sprintf("procedure %s appears on lines %d and %d with the same modifier and date",
							c.Procedures[j].Code, i, j),
					}
				}
				return nil
			},
			Fix: func(c *Claim) []FieldChange {
				return mergeDuplicateLines(c)
			},
		},
	}
}

// findDuplicateLines returns the indexes of the first duplicated pair, or -1, -1.
func findDuplicateLines(lines []ProcedureLine) (int, int) {
	seen := make(map[string]int, len(lines))
	for i, l := range lines {
		key := duplicateKey(l)
		if first, ok := seen[key]; ok {
			return first, i
		}
		seen[key] = i
	}
	return -1, -1
}

func duplicateKey(l ProcedureLine) string {
	date := ""
	if l.ServiceDate != nil {
		date = l.ServiceDate.Format("2006-01-02")
	}
	return l.Code + "|" + l.Modifier + "|" + date
}

// mergeDuplicateLines collapses identical code+modifier+date lines into one,
// summing their quantities.
func mergeDuplicateLines(c *Claim) []FieldChange {
	var changes []FieldChange
	merged := make([]ProcedureLine, 0, len(c.Procedures))
	index := make(map[string]int, len(c.Procedures))
	for _, l := range c.Procedures {
		key := duplicateKey(l)
		if at, ok := index[key]; ok {
			before := merged[at].Quantity
			merged[at].Quantity += l.Quantity
			changes = append(changes, FieldChange{
				Field: fmt.Sprintf("procedures[%d].quantity", at),
				From:  before,
				To:    merged[at].Quantity,
			})
			continue
		}
		index[key] = len(merged)
		merged = append(merged, l)
	}
	if len(changes) > 0 {
		c.Procedures = merged
	}
	return changes
}
