package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fielddispatch/internal/models"
)

func TestSkillMatchesType(t *testing.T) {
	cases := []struct {
		name  string
		skill string
		typ   models.TaskType
		want  bool
	}{
		{"exact match", "delivery", models.TypeDelivery, true},
		{"case insensitive", "Delivery", models.TypeDelivery, true},
		{"skill contains type", "furniture delivery", models.TypeDelivery, true},
		{"type contains skill", "deliver", models.TypeDelivery, true},
		{"maintenance matches anything", "maintenance", models.TypeSetup, true},
		{"general matches anything", "general labor", models.TypePickup, true},
		{"all matches anything", "all", models.TypeDelivery, true},
		{"setup accepts delivery holders", "delivery", models.TypeSetup, true},
		{"setup accepts install holders", "install", models.TypeSetup, true},
		{"delivery accepts setup holders", "setup", models.TypeDelivery, true},
		{"delivery accepts pickup holders", "pickup", models.TypeDelivery, true},
		{"pickup accepts delivery holders", "delivery", models.TypePickup, true},
		{"unrelated skill rejected", "plumbing", models.TypeDelivery, false},
		{"pickup does not accept setup", "setup", models.TypePickup, false},
		{"empty skill rejected", "", models.TypeDelivery, false},
		{"whitespace trimmed", "  delivery  ", models.TypeDelivery, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, skillMatchesType(tc.skill, tc.typ))
		})
	}
}

func TestSkillsMatchType(t *testing.T) {
	// No declared skills is not a rejection reason.
	assert.True(t, SkillsMatchType(nil, models.TypeMaintenance))
	assert.True(t, SkillsMatchType([]string{}, models.TypeDelivery))

	assert.True(t, SkillsMatchType([]string{"plumbing", "delivery"}, models.TypeDelivery))
	assert.False(t, SkillsMatchType([]string{"plumbing", "electrical"}, models.TypeDelivery))
}

func TestMatchingTaskTypes(t *testing.T) {
	// Empty skills means no type filter at all.
	assert.Nil(t, MatchingTaskTypes(nil))

	got := MatchingTaskTypes([]string{"maintenance"})
	assert.ElementsMatch(t, models.TaskTypes, got)

	got = MatchingTaskTypes([]string{"pickup"})
	assert.ElementsMatch(t, []models.TaskType{models.TypeDelivery, models.TypePickup}, got)
}

func TestSkillsMatchTaskTypes(t *testing.T) {
	assert.True(t, SkillsMatchTaskTypes([]string{"Delivery"}, []string{"delivery"}))
	assert.True(t, SkillsMatchTaskTypes([]string{"furniture delivery"}, []string{"delivery"}))

	// Broadcast targeting uses the same heuristics as claim eligibility:
	// generalists and cross-type crews hear about tasks they may claim.
	assert.True(t, SkillsMatchTaskTypes([]string{"maintenance"}, []string{"delivery"}))
	assert.True(t, SkillsMatchTaskTypes([]string{"setup"}, []string{"delivery"}))
	assert.True(t, SkillsMatchTaskTypes(nil, []string{"delivery"}))

	assert.False(t, SkillsMatchTaskTypes([]string{"plumbing"}, []string{"delivery"}))
	assert.False(t, SkillsMatchTaskTypes([]string{"delivery"}, nil))
}
