package services

import (
	"strings"

	"fielddispatch/internal/models"
)

// Loose skill matching. These heuristics are business policy carried over
// from how dispatch actually staffs jobs: substring match either direction,
// generalist skills match everything, and a few crews are trusted across
// adjacent job types. Do not tighten to exact equality.

// skillMatchesType reports whether a single declared skill qualifies a
// contractor for the given task type.
func skillMatchesType(skill string, taskType models.TaskType) bool {
	s := strings.ToLower(strings.TrimSpace(skill))
	t := strings.ToLower(strings.TrimSpace(string(taskType)))
	if s == "" || t == "" {
		return false
	}
	if strings.Contains(s, t) || strings.Contains(t, s) {
		return true
	}
	// Generalists work anything.
	if strings.Contains(s, "maintenance") || strings.Contains(s, "general") || s == "all" {
		return true
	}
	// Cross-type allowances between adjacent job types.
	switch {
	case strings.Contains(t, "setup"):
		return strings.Contains(s, "delivery") || strings.Contains(s, "install")
	case strings.Contains(t, "delivery"):
		return strings.Contains(s, "setup") || strings.Contains(s, "install") || strings.Contains(s, "pickup")
	case strings.Contains(t, "pickup"):
		return strings.Contains(s, "delivery")
	case strings.Contains(t, "install"):
		return strings.Contains(s, "setup") || strings.Contains(s, "delivery")
	}
	return false
}

// SkillsMatchType reports whether any declared skill qualifies for taskType.
// A contractor with no declared skills may claim anything: absence of skill
// data is not a rejection reason.
func SkillsMatchType(skills []string, taskType models.TaskType) bool {
	if len(skills) == 0 {
		return true
	}
	for _, skill := range skills {
		if skillMatchesType(skill, taskType) {
			return true
		}
	}
	return false
}

// MatchingTaskTypes maps a skill set onto the task types it can work,
// used to push the type filter into the available-tasks query.
func MatchingTaskTypes(skills []string) []models.TaskType {
	if len(skills) == 0 {
		return nil
	}
	var out []models.TaskType
	for _, t := range models.TaskTypes {
		if SkillsMatchType(skills, t) {
			out = append(out, t)
		}
	}
	return out
}

// SkillsMatchTaskTypes reports whether the declared skills qualify for any of
// the wanted task types. Broadcast targeting goes through the same heuristics
// as claim eligibility, so a contractor who may claim a task is always told
// it exists.
func SkillsMatchTaskTypes(have, want []string) bool {
	for _, w := range want {
		if SkillsMatchType(have, models.TaskType(w)) {
			return true
		}
	}
	return false
}
