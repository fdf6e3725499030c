package grading

// ResolveOptions configure how collected evidence turns into submittable
// grades for one run.
type ResolveOptions struct {
	// DefaultGrade is applied to skills with no contributing evidence.
	DefaultGrade ConceptGrade

	// KeepC keeps resolved C grades and marks their skills for remedial
	// registration. When false, a resolved C is demoted to NE, because the
	// remote system refuses to save a C without an attached remedial
	// record.
	KeepC bool
}

// SkillGrade is one resolved (skill, grade) pair ready for submission.
type SkillGrade struct {
	Skill Skill
	Grade ConceptGrade

	// FromDefault marks grades that came from the run's default rather
	// than from evidence.
	FromDefault bool

	// Demoted marks a C that was lowered to NE by the non-remedial rule.
	Demoted bool
}

// StudentDecision is everything the orchestrator submits for one student.
type StudentDecision struct {
	Student StudentRecord

	// Grades follow the skill order of the evidence.
	Grades []SkillGrade

	// RemedialSkills are the skills whose final grade is C and therefore
	// qualify for a remedial-learning record. Empty unless KeepC is set.
	RemedialSkills []Skill
}

// ResolveStudent computes the submittable grades for one student from the
// classroom evidence. Pure: no I/O, no mutation of the evidence.
func ResolveStudent(e ClassroomEvidence, r StudentRecord, opts ResolveOptions) StudentDecision {
	d := StudentDecision{Student: r}

	for _, skill := range e.Skills {
		sg := SkillGrade{Skill: skill}

		grade, err := GradeForSkill(r.Scores[skill.ID])
		switch {
		case err == nil:
			sg.Grade = grade
		case opts.DefaultGrade.IsValid():
			sg.Grade = opts.DefaultGrade
			sg.FromDefault = true
		default:
			// No evidence and no default: leave the dropdown untouched.
			continue
		}

		if sg.Grade == GradeC {
			if opts.KeepC {
				d.RemedialSkills = append(d.RemedialSkills, skill)
			} else {
				sg.Grade = GradeNE
				sg.Demoted = true
			}
		}

		d.Grades = append(d.Grades, sg)
	}

	return d
}

// SkillGradeValues extracts the ordered grade values of a decision, as fed
// to ModeForStudent.
func (d StudentDecision) SkillGradeValues() []ConceptGrade {
	grades := make([]ConceptGrade, 0, len(d.Grades))
	for _, g := range d.Grades {
		grades = append(grades, g.Grade)
	}
	return grades
}
