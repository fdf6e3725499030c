package grading

import (
	"errors"
)

// Threshold scores for the concept scale. A score exactly on a threshold
// clears the tier.
const (
	ThresholdA = 8.0
	ThresholdB = 6.0
	ThresholdC = 4.0
)

var (
	// ErrNoEvidence is returned when a skill has no contributing scores.
	// The caller falls back to the configured default grade.
	ErrNoEvidence = errors.New("grading: no evidence for skill")

	// ErrNoGradesToSummarize is returned when a student has no resolved
	// grades to compute the predominant grade from. Callers treat it as a
	// per-student skip, never as a run-fatal condition.
	ErrNoGradesToSummarize = errors.New("grading: no grades to summarize")
)

// GradeForSkill resolves the concept grade from the ordered evidence of one
// (student, skill) pair. Each score contributes its effective value: the
// parallel-recovery override replaces the original assessment score when
// present.
//
// A tier applies only when every contributing score clears its threshold,
// so the minimum effective score is the binding one:
//
//	all >= 8.0 -> A; else all >= 6.0 -> B; else all >= 4.0 -> C; else NE.
func GradeForSkill(scores []SkillScore) (ConceptGrade, error) {
	if len(scores) == 0 {
		return GradeNone, ErrNoEvidence
	}

	min := scores[0].Effective()
	for _, s := range scores[1:] {
		if v := s.Effective(); v < min {
			min = v
		}
	}

	switch {
	case min >= ThresholdA:
		return GradeA, nil
	case min >= ThresholdB:
		return GradeB, nil
	case min >= ThresholdC:
		return GradeC, nil
	default:
		return GradeNE, nil
	}
}

// ModeForStudent computes the predominant concept grade over the ordered
// sequence of a student's skill grades. Ties are resolved in favor of the
// value that first reaches the maximal frequency in input order, not by
// scale rank.
func ModeForStudent(grades []ConceptGrade) (ConceptGrade, error) {
	if len(grades) == 0 {
		return GradeNone, ErrNoGradesToSummarize
	}

	counts := make(map[ConceptGrade]int, 4)
	for _, g := range grades {
		counts[g]++
	}

	best := GradeNone
	bestCount := 0
	for _, g := range grades {
		if c := counts[g]; c > bestCount {
			best, bestCount = g, c
		}
	}
	return best, nil
}
