// Package grading contains the pure domain model for trimester concept
// grading: grades, reference periods, attitude observations, collected
// assessment evidence, and the deterministic resolution rules.
// This package has no I/O and no external dependencies.
package grading

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Concept Grade
// ═══════════════════════════════════════════════════════════════════════════

// ConceptGrade is the four-tier ordinal grade assigned per skill per student
// per reference period. The scale, worst to best: NE, C, B, A.
type ConceptGrade string

const (
	// GradeNone is the zero value; never submitted to the remote system.
	GradeNone ConceptGrade = ""

	// GradeNE - "Não Evidenciado": no evidence of proficiency.
	GradeNE ConceptGrade = "NE"

	// GradeC - lowest passing tier. In the remote system a C cannot be
	// saved without an attached remedial-learning record.
	GradeC ConceptGrade = "C"

	// GradeB - intermediate tier.
	GradeB ConceptGrade = "B"

	// GradeA - highest tier.
	GradeA ConceptGrade = "A"
)

// scaleRank maps grades onto the ordered scale (higher is better).
var scaleRank = map[ConceptGrade]int{
	GradeNE: 1,
	GradeC:  2,
	GradeB:  3,
	GradeA:  4,
}

// IsValid reports whether the grade is one of the four scale values.
func (g ConceptGrade) IsValid() bool {
	_, ok := scaleRank[g]
	return ok
}

// Rank returns the grade's position on the scale (NE=1 .. A=4), 0 when invalid.
func (g ConceptGrade) Rank() int {
	return scaleRank[g]
}

// String returns the scale label as rendered by the remote system.
func (g ConceptGrade) String() string {
	return string(g)
}

// ParseConceptGrade parses a grade label, ignoring case and surrounding space.
func ParseConceptGrade(s string) (ConceptGrade, error) {
	g := ConceptGrade(strings.ToUpper(strings.TrimSpace(s)))
	if !g.IsValid() {
		return GradeNone, fmt.Errorf("grading: invalid concept grade %q", s)
	}
	return g, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Reference Period
// ═══════════════════════════════════════════════════════════════════════════

// ReferencePeriod is one of the closed set of grading windows to which
// assessments and grades are tagged.
type ReferencePeriod string

const (
	PeriodTR1 ReferencePeriod = "TR1"
	PeriodTR2 ReferencePeriod = "TR2"
	PeriodTR3 ReferencePeriod = "TR3"

	// PeriodCF is the closing average. It never carries assessments of its
	// own; it only addresses the final row of the opinion table.
	PeriodCF ReferencePeriod = "CF"
)

// IsValid reports whether the period is a known grading window.
func (p ReferencePeriod) IsValid() bool {
	switch p {
	case PeriodTR1, PeriodTR2, PeriodTR3, PeriodCF:
		return true
	}
	return false
}

// IsTrimester reports whether the period can carry assessments.
func (p ReferencePeriod) IsTrimester() bool {
	return p == PeriodTR1 || p == PeriodTR2 || p == PeriodTR3
}

// OpinionRow returns the zero-based row index of this period in the
// pedagogical-opinion table of the remote system.
func (p ReferencePeriod) OpinionRow() int {
	switch p {
	case PeriodTR1:
		return 0
	case PeriodTR2:
		return 1
	case PeriodTR3:
		return 2
	case PeriodCF:
		return 3
	}
	return -1
}

// String returns the period tag.
func (p ReferencePeriod) String() string {
	return string(p)
}

// ParseReferencePeriod parses a period tag, ignoring case and space.
func ParseReferencePeriod(s string) (ReferencePeriod, error) {
	p := ReferencePeriod(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("grading: invalid reference period %q", s)
	}
	return p, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Attitude Observation
// ═══════════════════════════════════════════════════════════════════════════

// Attitude is the categorical value applied to every attitude-observation
// row of a student's editing context. Labels match the remote dropdown.
type Attitude string

const (
	AttitudeSelecione    Attitude = "Selecione"
	AttitudeSempre       Attitude = "Sempre"
	AttitudeAsVezes      Attitude = "Às vezes"
	AttitudeRaramente    Attitude = "Raramente"
	AttitudeNunca        Attitude = "Nunca"
	AttitudeNaoObservado Attitude = "Não conseguiu observar"
	AttitudeNaoSeAplica  Attitude = "Não se aplica"
)

// DefaultAttitude is applied when the caller does not choose one.
const DefaultAttitude = AttitudeRaramente

// IsValid reports whether the attitude is an option the remote dropdown
// offers. "Selecione" is the dropdown placeholder and is not submittable.
func (a Attitude) IsValid() bool {
	switch a {
	case AttitudeSempre, AttitudeAsVezes, AttitudeRaramente,
		AttitudeNunca, AttitudeNaoObservado, AttitudeNaoSeAplica:
		return true
	}
	return false
}

// String returns the dropdown label.
func (a Attitude) String() string {
	return string(a)
}
