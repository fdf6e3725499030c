package run

import (
	"fmt"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// RUN INPUT
// ═══════════════════════════════════════════════════════════════════════════

// Kind selects the pipeline a run executes.
type Kind string

const (
	// KindConcepts resolves and submits concept grades. Resolved C grades
	// are demoted to NE because the portal refuses to save a C without an
	// attached remedial record.
	KindConcepts Kind = "concepts"

	// KindConceptsRemedial resolves and submits concept grades, keeping C
	// and registering one remedial-learning record per qualifying skill.
	KindConceptsRemedial Kind = "concepts_remedial"

	// KindOpinions writes the pedagogical opinion of each student from the
	// mode of their concept grades.
	KindOpinions Kind = "opinions"
)

// IsValid reports whether the kind names a known pipeline.
func (k Kind) IsValid() bool {
	switch k {
	case KindConcepts, KindConceptsRemedial, KindOpinions:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Input is the validated invocation payload of one run. Validate rejects a
// malformed input before any remote session is opened.
type Input struct {
	Kind        Kind
	Credentials shared.Credentials
	Classroom   shared.ClassroomCode
	Period      grading.ReferencePeriod

	// DefaultGrade fills skills without any score evidence. Zero value
	// means such skills are left untouched.
	DefaultGrade grading.ConceptGrade

	// Attitude is applied to every attitude-observation row. Zero value
	// falls back to grading.DefaultAttitude.
	Attitude grading.Attitude

	// Remedial carries the remedial plan. Required for
	// KindConceptsRemedial, ignored otherwise.
	Remedial *grading.RemedialPlan
}

// Validate checks every boundary constraint of the payload.
func (in Input) Validate() error {
	if !in.Kind.IsValid() {
		return shared.NewDomainError("run", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown run kind %q", in.Kind))
	}
	if err := in.Credentials.Validate(); err != nil {
		return err
	}
	if !in.Classroom.IsValid() {
		return shared.NewDomainError("run", "Validate", shared.ErrInvalidFormat,
			"classroom code must contain digits only")
	}
	if !in.Period.IsValid() {
		return shared.NewDomainError("run", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown reference period %q", in.Period))
	}
	if in.Kind != KindOpinions && !in.Period.IsTrimester() {
		return shared.NewDomainError("run", "Validate", shared.ErrInvalidInput,
			"concept runs accept trimester periods only")
	}
	if in.DefaultGrade != grading.GradeNone && !in.DefaultGrade.IsValid() {
		return shared.NewDomainError("run", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown default grade %q", in.DefaultGrade))
	}
	if in.Attitude != "" && !in.Attitude.IsValid() {
		return shared.NewDomainError("run", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown attitude %q", in.Attitude))
	}
	if in.Kind == KindConceptsRemedial {
		if in.Remedial == nil {
			return shared.NewDomainError("run", "Validate", shared.ErrEmptyValue,
				"remedial plan is required")
		}
		if err := in.Remedial.Validate(); err != nil {
			return shared.WrapError("run", "Validate", shared.ErrValidation,
				"invalid remedial plan", err)
		}
	}
	return nil
}

// EffectiveAttitude returns the attitude to apply, applying the default.
func (in Input) EffectiveAttitude() grading.Attitude {
	if in.Attitude == "" {
		return grading.DefaultAttitude
	}
	return in.Attitude
}

// ResolveOptions derives the grade-resolution options for this run.
func (in Input) ResolveOptions() grading.ResolveOptions {
	return grading.ResolveOptions{
		DefaultGrade: in.DefaultGrade,
		KeepC:        in.Kind == KindConceptsRemedial,
	}
}
