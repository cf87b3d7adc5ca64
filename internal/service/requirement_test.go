package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiredInvigilatorsTiers(t *testing.T) {
	cases := map[int]int{
		1:   1,
		30:  1,
		31:  2,
		60:  2,
		61:  3,
		100: 3,
		101: 3,
		120: 3,
		121: 4,
		160: 4,
		161: 5,
	}
	for students, want := range cases {
		assert.Equal(t, want, RequiredInvigilators(students), "students=%d", students)
	}
}

func TestRequirementRuleFlat(t *testing.T) {
	rule := ParseRequirementRule("FLAT")
	assert.Equal(t, RequirementFlat, rule)
	assert.Equal(t, 1, rule.Required(30))
	assert.Equal(t, 2, rule.Required(31))
	assert.Equal(t, 4, rule.Required(101))
}

func TestParseRequirementRuleDefaultsToTiered(t *testing.T) {
	assert.Equal(t, RequirementTiered, ParseRequirementRule(""))
	assert.Equal(t, RequirementTiered, ParseRequirementRule("bogus"))
	assert.Equal(t, 3, ParseRequirementRule("").Required(101))
}
