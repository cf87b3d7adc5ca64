package service

import "strings"

// RequirementRule maps a student headcount to the minimum invigilator count.
type RequirementRule string

const (
	// RequirementTiered is the canonical capacity-tier table.
	RequirementTiered RequirementRule = "tiered"
	// RequirementFlat is one invigilator per 30 students, kept for compatibility.
	RequirementFlat RequirementRule = "flat"
)

// ParseRequirementRule falls back to the tiered rule for unknown input.
func ParseRequirementRule(raw string) RequirementRule {
	if strings.EqualFold(strings.TrimSpace(raw), string(RequirementFlat)) {
		return RequirementFlat
	}
	return RequirementTiered
}

// Required applies the rule to studentCount.
func (r RequirementRule) Required(studentCount int) int {
	if r == RequirementFlat {
		return ceilDiv(studentCount, 30)
	}
	return RequiredInvigilators(studentCount)
}

// RequiredInvigilators applies the tiered table:
// up to 30 students need 1, up to 60 need 2, up to 100 need 3,
// and larger cohorts need one per 40 students rounded up.
func RequiredInvigilators(studentCount int) int {
	switch {
	case studentCount <= 30:
		return 1
	case studentCount <= 60:
		return 2
	case studentCount <= 100:
		return 3
	default:
		return ceilDiv(studentCount, 40)
	}
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
