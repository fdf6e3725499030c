package run

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollectorBuildsEvidence(t *testing.T) {
	sess := classroomFixture()
	reporter, _ := collectEvents()
	collector := NewEvidenceCollector(testLogger(), reporter)

	evidence, err := collector.Collect(context.Background(), sess, "369528", grading.PeriodTR2)
	require.NoError(t, err)

	assert.Equal(t, "369528", evidence.ClassroomCode)
	assert.Equal(t, grading.PeriodTR2, evidence.Period)

	// AV9 is tagged TR1 and must not contribute.
	require.Len(t, evidence.Assessments, 2)
	assert.Equal(t, "AV1", evidence.Assessments[0].ID)
	assert.Equal(t, "AV2", evidence.Assessments[1].ID)

	require.Len(t, evidence.Skills, 3)
	require.Len(t, evidence.Students, 3)
}

func TestCollectorAppliesRecoveryOverride(t *testing.T) {
	sess := classroomFixture()
	reporter, _ := collectEvents()
	collector := NewEvidenceCollector(testLogger(), reporter)

	evidence, err := collector.Collect(context.Background(), sess, "369528", grading.PeriodTR2)
	require.NoError(t, err)

	// Bruno scored 3.0 on AV1 but 6.5 on its recovery RP1.
	bruno := evidence.Students[1]
	scores := bruno.Scores[grading.SkillID("logica de programacao")]
	require.Len(t, scores, 1)
	assert.True(t, scores[0].Overridden())
	assert.Equal(t, 6.5, scores[0].Effective())

	// Ana has no recovery score, so AV1 stands.
	ana := evidence.Students[0]
	scores = ana.Scores[grading.SkillID("logica de programacao")]
	require.Len(t, scores, 1)
	assert.False(t, scores[0].Overridden())
	assert.Equal(t, 9.0, scores[0].Effective())
}

func TestCollectorJoinsSkillsAcrossAssessments(t *testing.T) {
	sess := classroomFixture()
	reporter, _ := collectEvents()
	collector := NewEvidenceCollector(testLogger(), reporter)

	evidence, err := collector.Collect(context.Background(), sess, "369528", grading.PeriodTR2)
	require.NoError(t, err)

	// "banco de dados" is linked to both AV1 and AV2.
	ana := evidence.Students[0]
	scores := ana.Scores[grading.SkillID("banco de dados")]
	require.Len(t, scores, 2)
	assert.Equal(t, "AV1", scores[0].AssessmentID)
	assert.Equal(t, "AV2", scores[1].AssessmentID)
}

func TestCollectorNoAssessmentsIsFatal(t *testing.T) {
	sess := classroomFixture()
	reporter, _ := collectEvents()
	collector := NewEvidenceCollector(testLogger(), reporter)

	// TR3 has no tagged assessments in the fixture.
	_, err := collector.Collect(context.Background(), sess, "369528", grading.PeriodTR3)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNoAssessmentsFound)
	assert.True(t, shared.IsFatal(err))

	// The roster must not have been touched.
	assert.Zero(t, sess.countCalls("ReadRoster"))
}

func TestCollectorRetriesTimedOutReads(t *testing.T) {
	sess := classroomFixture()
	sess.failNext("ReadAssessments", 1)
	reporter, _ := collectEvents()
	collector := NewEvidenceCollector(testLogger(), reporter)

	evidence, err := collector.Collect(context.Background(), sess, "369528", grading.PeriodTR2)
	require.NoError(t, err)
	assert.Len(t, evidence.Assessments, 2)
	assert.Equal(t, 2, sess.countCalls("ReadAssessments"))
}

func TestCollectorGivesUpAfterRetryBudget(t *testing.T) {
	sess := classroomFixture()
	sess.failNext("ReadSkills", 10)
	reporter, _ := collectEvents()
	collector := NewEvidenceCollector(testLogger(), reporter)

	_, err := collector.Collect(context.Background(), sess, "369528", grading.PeriodTR2)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrSessionTimeout)
	assert.Equal(t, 3, sess.countCalls("ReadSkills"))
}
