package run

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
	"github.com/sgn-hub/sgn-grade-hub/pkg/timeutil"
)

func collectEvidence(t *testing.T, sess *fakeSession) grading.ClassroomEvidence {
	t.Helper()
	reporter, _ := collectEvents()
	evidence, err := NewEvidenceCollector(testLogger(), reporter).
		Collect(context.Background(), sess, "369528", grading.PeriodTR2)
	require.NoError(t, err)
	return evidence
}

func conceptsInput() Input {
	return Input{
		Kind:        KindConcepts,
		Credentials: shared.Credentials{Username: "professor", Password: "segredo1"},
		Classroom:   "369528",
		Period:      grading.PeriodTR2,
	}
}

func remedialInput() Input {
	in := conceptsInput()
	in.Kind = KindConceptsRemedial
	in.Remedial = &grading.RemedialPlan{
		Start:        timeutil.Date(2026, 3, 2),
		End:          timeutil.Date(2026, 3, 20),
		Description:  "Retomada dos conteúdos fundamentais com lista de exercícios dirigida.",
		ArtifactName: "plano-ra.pdf",
		Artifact:     append([]byte("%PDF-1.7\n"), []byte("conteudo")...),
	}
	return in
}

func TestOrchestratorSubmitsWholeBatch(t *testing.T) {
	sess := classroomFixture()
	evidence := collectEvidence(t, sess)
	reporter, events := collectEvents()
	orch := NewSubmissionOrchestrator(testLogger(), reporter)

	result, err := orch.Execute(context.Background(), sess, conceptsInput(), evidence)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Equal(t, tallyLine(3, 3), result.Tally)
	assert.NotContains(t, result.Tally, "RA")

	// Ana: every effective score clears the A threshold.
	assert.Equal(t, grading.GradeA, sess.applied["0"]["logica de programacao"])
	assert.Equal(t, grading.GradeA, sess.applied["0"]["banco de dados"])

	// Bruno: the RP1 override lifts AV1 into the B tier.
	assert.Equal(t, grading.GradeB, sess.applied["1"]["logica de programacao"])

	// Carla resolves to C everywhere; without a remedial record the C
	// cannot be saved, so it is demoted to NE.
	for _, skill := range evidence.Skills {
		assert.Equal(t, grading.GradeNE, sess.applied["2"][skill.ID])
	}

	// Default attitude reaches every saved student.
	assert.ElementsMatch(t, []string{"0", "1", "2"}, sess.saved)
	for _, row := range sess.saved {
		assert.Equal(t, grading.DefaultAttitude, sess.attitude[row])
	}

	// No remedial interaction happens in the standard run.
	assert.Zero(t, sess.countCalls("OpenRemedialContext"))

	// Sequence numbers form a total order with no terminal event.
	for i, e := range *events {
		assert.Equal(t, i+1, e.Seq)
		assert.False(t, e.IsTerminal())
	}
}

func TestOrchestratorRegistersRemedialRecords(t *testing.T) {
	sess := classroomFixture()
	evidence := collectEvidence(t, sess)
	reporter, _ := collectEvents()
	orch := NewSubmissionOrchestrator(testLogger(), reporter)

	result, err := orch.Execute(context.Background(), sess, remedialInput(), evidence)
	require.NoError(t, err)

	// Carla holds a C on all three skills, one RA each.
	assert.Equal(t, 3, result.RemedialRecords)
	assert.Equal(t, tallyLine(3, 3)+", 3 RA(s) cadastrada(s)", result.Tally)
	assert.Equal(t, 3, sess.remedial["2"])
	assert.Equal(t, 3, sess.countCalls("AttachFile"))

	// The C survives in remedial mode.
	assert.Equal(t, grading.GradeC, sess.applied["2"]["logica de programacao"])
}

func TestOrchestratorIsolatesStudentFailure(t *testing.T) {
	sess := classroomFixture()
	evidence := collectEvidence(t, sess)
	// First Save (Ana) fails with a non-recoverable error.
	sess.failWith("Save", 1, errors.New("ficha bloqueada"))

	reporter, events := collectEvents()
	orch := NewSubmissionOrchestrator(testLogger(), reporter)

	result, err := orch.Execute(context.Background(), sess, conceptsInput(), evidence)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, tallyLine(2, 3), result.Tally)
	assert.ElementsMatch(t, []string{"1", "2"}, sess.saved)

	var failures int
	for _, e := range *events {
		if e.Level == shared.LevelError {
			failures++
			assert.Contains(t, e.Message, "Ana Beatriz Souza")
		}
	}
	assert.Equal(t, 1, failures)
}

func TestOrchestratorRetriesTimedOutStepOnce(t *testing.T) {
	sess := classroomFixture()
	evidence := collectEvidence(t, sess)
	sess.failNext("ApplyGrade", 1)

	reporter, events := collectEvents()
	orch := NewSubmissionOrchestrator(testLogger(), reporter)

	result, err := orch.Execute(context.Background(), sess, conceptsInput(), evidence)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)

	// 3 students x 3 skills, plus the one retried call.
	assert.Equal(t, 10, sess.countCalls("ApplyGrade"))

	var retried bool
	for _, e := range *events {
		if e.Level == shared.LevelWarning && strings.Contains(e.Message, "tentando novamente") {
			retried = true
		}
	}
	assert.True(t, retried)
}

func TestOrchestratorDemotesStudentAfterSecondTimeout(t *testing.T) {
	sess := classroomFixture()
	evidence := collectEvidence(t, sess)
	// Both attempts of Ana's first ApplyGrade time out.
	sess.failNext("ApplyGrade", 2)

	reporter, _ := collectEvents()
	orch := NewSubmissionOrchestrator(testLogger(), reporter)

	result, err := orch.Execute(context.Background(), sess, conceptsInput(), evidence)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Succeeded)
	assert.NotContains(t, sess.saved, "0")
}

// cancellingSession cancels the run context right after the first student
// is saved.
type cancellingSession struct {
	*fakeSession
	cancel context.CancelFunc
}

func (s *cancellingSession) Save(ctx context.Context) error {
	err := s.fakeSession.Save(ctx)
	if err == nil && len(s.saved) == 1 {
		s.cancel()
	}
	return err
}

func TestOrchestratorStopsOnCancellation(t *testing.T) {
	fake := classroomFixture()
	evidence := collectEvidence(t, fake)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := &cancellingSession{fakeSession: fake, cancel: cancel}

	reporter, _ := collectEvents()
	orch := NewSubmissionOrchestrator(testLogger(), reporter)

	result, err := orch.Execute(ctx, sess, conceptsInput(), evidence)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRunCancelled)

	// Nothing past the first student was persisted.
	assert.Equal(t, []string{"0"}, fake.saved)

	// Ana's Save went through before the cancellation landed, so she
	// counts toward the partial tally even though her context was never
	// closed.
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Equal(t, tallyLine(1, 3), result.Tally)
}

func TestOrchestratorSkipsStudentWithoutGrades(t *testing.T) {
	sess := classroomFixture()
	sess.roster = append(sess.roster, RosterRow{
		RowRef:      "3",
		DisplayName: "Daniel Rocha",
		Scores:      map[string]float64{},
	})
	evidence := collectEvidence(t, sess)

	reporter, events := collectEvents()
	orch := NewSubmissionOrchestrator(testLogger(), reporter)

	result, err := orch.Execute(context.Background(), sess, conceptsInput(), evidence)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, tallyLine(3, 4), result.Tally)
	assert.NotContains(t, sess.saved, "3")

	var skipped bool
	for _, e := range *events {
		if e.Level == shared.LevelWarning && strings.Contains(e.Message, "Daniel Rocha") {
			skipped = true
		}
	}
	assert.True(t, skipped)
}
