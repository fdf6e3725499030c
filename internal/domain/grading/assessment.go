package grading

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Collected Evidence Entities
// All entities here are scoped to a single run (one classroom, one reference
// period) and are immutable once collected.
// ═══════════════════════════════════════════════════════════════════════════

// SkillID identifies a skill row inside the remote concept table. The remote
// system keys skills by their rendered description, so the ID is the
// normalized description text.
type SkillID string

// Skill is one gradeable ability linked to one or more assessments within
// the active reference period.
type Skill struct {
	// ID is the normalized skill identifier.
	ID SkillID

	// Description is the raw rendered text, kept for progress messages.
	Description string

	// RowRef is the remote table row reference (data-ri) used to address
	// the skill's dropdown when submitting.
	RowRef string
}

// Assessment is one registered evaluation instrument (e.g. "AV1") tagged
// with a reference period and linked to an ordered list of skills.
type Assessment struct {
	// ID is the column identifier as rendered, e.g. "AV1".
	ID string

	// Title is the tooltip title, e.g. "Avaliação 03 - Algoritmos".
	Title string

	// Period is the reference period this assessment is tagged with.
	Period ReferencePeriod

	// Skills are the linked skill identifiers, in rendered order.
	Skills []SkillID

	// Weight is the optional assessment weight; zero when absent.
	Weight float64

	// RecoveryID is the identifier of the parallel-recovery column ("RP1")
	// that overrides this assessment's score when filled; empty if none.
	RecoveryID string
}

// HasRecovery reports whether a parallel recovery is registered for this
// assessment.
func (a Assessment) HasRecovery() bool {
	return a.RecoveryID != ""
}

// SkillScore is one piece of numeric evidence for a (student, skill) pair.
type SkillScore struct {
	// AssessmentID is the assessment that produced the score.
	AssessmentID string

	// Score is the raw assessment score on the 0..10 scale.
	Score float64

	// Override is the remedial-recovery score that supersedes Score when
	// present.
	Override *float64
}

// Effective returns the score that participates in grade resolution: the
// recovery override when present, the original score otherwise.
func (s SkillScore) Effective() float64 {
	if s.Override != nil {
		return *s.Override
	}
	return s.Score
}

// Overridden reports whether a recovery score supersedes the original.
func (s SkillScore) Overridden() bool {
	return s.Override != nil
}

// StudentRecord is one student's collected evidence for the run.
type StudentRecord struct {
	// RowRef is the remote table row reference (data-ri) of the student.
	RowRef string

	// DisplayName is the name exactly as rendered, possibly carrying
	// bracketed annotations such as "[PCD]" or "[MENOR]".
	DisplayName string

	// Scores maps each skill to its ordered evidence. A skill fed by more
	// than one assessment in the period carries more than one entry.
	Scores map[SkillID][]SkillScore
}

// CleanName returns the display name with bracketed suffix annotations
// removed.
func (r StudentRecord) CleanName() string {
	return CleanStudentName(r.DisplayName)
}

// ClassroomEvidence is the full normalized output of evidence collection.
type ClassroomEvidence struct {
	// ClassroomCode is the numeric diary code of the classroom.
	ClassroomCode string

	// Period is the reference period the evidence was collected for.
	Period ReferencePeriod

	// Assessments are the registered assessments of the period, in
	// rendered column order.
	Assessments []Assessment

	// Skills are the skill rows of the concept modal, in rendered order.
	Skills []Skill

	// Students are the classroom roster rows, in rendered order.
	Students []StudentRecord
}

// AssessmentsForSkill returns the assessments linked to the given skill,
// preserving column order.
func (e ClassroomEvidence) AssessmentsForSkill(id SkillID) []Assessment {
	var linked []Assessment
	for _, a := range e.Assessments {
		for _, s := range a.Skills {
			if s == id {
				linked = append(linked, a)
				break
			}
		}
	}
	return linked
}

// NormalizeSkillID builds a SkillID from rendered skill text. Leading
// emphasis asterisks, surrounding space and case differences are not
// significant in the remote system.
func NormalizeSkillID(text string) SkillID {
	t := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(text), "*"))
	t = strings.Join(strings.Fields(t), " ")
	return SkillID(strings.ToLower(t))
}
