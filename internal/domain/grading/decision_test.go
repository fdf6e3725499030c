package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvidence() ClassroomEvidence {
	override := 7.0
	return ClassroomEvidence{
		ClassroomCode: "369528",
		Period:        PeriodTR2,
		Assessments: []Assessment{
			{ID: "AV1", Period: PeriodTR2, Skills: []SkillID{"logica", "requisitos"}, RecoveryID: "RP1"},
			{ID: "AV2", Period: PeriodTR2, Skills: []SkillID{"requisitos"}},
		},
		Skills: []Skill{
			{ID: "logica", Description: "Aplicar lógica de programação", RowRef: "0"},
			{ID: "requisitos", Description: "Interpretar requisitos", RowRef: "1"},
			{ID: "bancodados", Description: "Modelar banco de dados", RowRef: "2"},
		},
		Students: []StudentRecord{
			{
				RowRef:      "0",
				DisplayName: "Ayumi Iura - [PCD - MENOR]",
				Scores: map[SkillID][]SkillScore{
					"logica":     {{AssessmentID: "AV1", Score: 5.0, Override: &override}},
					"requisitos": {{AssessmentID: "AV1", Score: 5.0, Override: &override}, {AssessmentID: "AV2", Score: 4.5}},
				},
			},
		},
	}
}

func TestResolveStudent_OverrideAndDefault(t *testing.T) {
	e := sampleEvidence()
	d := ResolveStudent(e, e.Students[0], ResolveOptions{DefaultGrade: GradeB, KeepC: true})

	require.Len(t, d.Grades, 3)

	// logica: override 7.0 -> B, no remedial record despite the 5.0 original.
	assert.Equal(t, GradeB, d.Grades[0].Grade)
	assert.False(t, d.Grades[0].FromDefault)

	// requisitos: min(7.0, 4.5) = 4.5 -> C, kept and queued for remedial.
	assert.Equal(t, GradeC, d.Grades[1].Grade)

	// bancodados: no evidence -> default B.
	assert.Equal(t, GradeB, d.Grades[2].Grade)
	assert.True(t, d.Grades[2].FromDefault)

	require.Len(t, d.RemedialSkills, 1)
	assert.Equal(t, SkillID("requisitos"), d.RemedialSkills[0].ID)
}

func TestResolveStudent_DemotesCWithoutRemedial(t *testing.T) {
	e := sampleEvidence()
	d := ResolveStudent(e, e.Students[0], ResolveOptions{DefaultGrade: GradeB, KeepC: false})

	assert.Equal(t, GradeNE, d.Grades[1].Grade)
	assert.True(t, d.Grades[1].Demoted)
	assert.Empty(t, d.RemedialSkills)
}

func TestResolveStudent_NoDefaultSkipsUnfedSkills(t *testing.T) {
	e := sampleEvidence()
	d := ResolveStudent(e, e.Students[0], ResolveOptions{})
	// bancodados has no evidence and there is no default: only two grades.
	require.Len(t, d.Grades, 2)
}

func TestAssessmentsForSkill(t *testing.T) {
	e := sampleEvidence()
	linked := e.AssessmentsForSkill("requisitos")
	require.Len(t, linked, 2)
	assert.Equal(t, "AV1", linked[0].ID)
	assert.Equal(t, "AV2", linked[1].ID)
}
