package run

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
	"github.com/sgn-hub/sgn-grade-hub/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// EVIDENCE COLLECTOR
// ═══════════════════════════════════════════════════════════════════════════

// EvidenceCollector reads the registered assessments, skill links, parallel
// recoveries and per-student scores of one classroom/period through the
// remote session and normalizes them into ClassroomEvidence.
//
// Reads that time out waiting for the remote table are retried with linear
// backoff before the run is aborted.
type EvidenceCollector struct {
	logger   *slog.Logger
	reporter *Reporter
	retrier  *retry.Retrier
}

// NewEvidenceCollector creates a collector reporting to the given stream.
func NewEvidenceCollector(logger *slog.Logger, reporter *Reporter) *EvidenceCollector {
	return &EvidenceCollector{
		logger:   logger.With(slog.String("component", "collector")),
		reporter: reporter,
		retrier:  retry.SessionRetrier(),
	}
}

// Collect builds the classroom evidence from an authenticated session whose
// classroom and reference period are already selected. A classroom with no
// assessment registered for the period aborts with ErrNoAssessmentsFound.
func (c *EvidenceCollector) Collect(ctx context.Context, sess Session, classroom shared.ClassroomCode, period grading.ReferencePeriod) (grading.ClassroomEvidence, error) {
	evidence := grading.ClassroomEvidence{
		ClassroomCode: classroom.String(),
		Period:        period,
	}

	c.reporter.Infof("Lendo avaliações do período %s...", period)

	assessments, err := c.readAssessments(ctx, sess, period)
	if err != nil {
		return evidence, err
	}
	evidence.Assessments = assessments

	skills, err := readWithRetry(ctx, c.retrier, c.logger, "ReadSkills", sess.ReadSkills)
	if err != nil {
		return evidence, shared.WrapError("collector", "ReadSkills", shared.ErrSessionTimeout,
			"skill rows did not render", err)
	}
	evidence.Skills = skills

	c.reporter.Infof("Lendo notas de %d avaliação(ões)...", len(assessments))

	rows, err := readWithRetry(ctx, c.retrier, c.logger, "ReadRoster", sess.ReadRoster)
	if err != nil {
		return evidence, shared.WrapError("collector", "ReadRoster", shared.ErrSessionTimeout,
			"roster rows did not render", err)
	}
	evidence.Students = buildStudentRecords(rows, assessments)

	c.logger.InfoContext(ctx, "evidence collected",
		slog.String("classroom", classroom.String()),
		slog.String("period", period.String()),
		slog.Int("assessments", len(evidence.Assessments)),
		slog.Int("skills", len(evidence.Skills)),
		slog.Int("students", len(evidence.Students)),
	)
	c.reporter.Successf("Evidências coletadas: %d avaliação(ões), %d habilidade(s), %d aluno(s).",
		len(evidence.Assessments), len(evidence.Skills), len(evidence.Students))

	return evidence, nil
}

// readAssessments reads the assessment columns and keeps those tagged with
// the active period.
func (c *EvidenceCollector) readAssessments(ctx context.Context, sess Session, period grading.ReferencePeriod) ([]grading.Assessment, error) {
	all, err := readWithRetry(ctx, c.retrier, c.logger, "ReadAssessments", sess.ReadAssessments)
	if err != nil {
		return nil, shared.WrapError("collector", "ReadAssessments", shared.ErrSessionTimeout,
			"assessment columns did not render", err)
	}

	var tagged []grading.Assessment
	for _, a := range all {
		if a.Period == period {
			tagged = append(tagged, a)
		}
	}
	if len(tagged) == 0 {
		return nil, shared.NewDomainError("collector", "ReadAssessments", shared.ErrNoAssessmentsFound,
			fmt.Sprintf("no assessments tagged with period %s", period))
	}
	return tagged, nil
}

// readWithRetry runs a session read under the session retry policy,
// retrying bounded-wait timeouts and nothing else.
func readWithRetry[T any](ctx context.Context, r *retry.Retrier, logger *slog.Logger, op string, read func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var readErr error
		result, readErr = read(ctx)
		if readErr == nil {
			return nil
		}
		if shared.IsRecoverableStep(readErr) {
			logger.WarnContext(ctx, "session read timed out, retrying",
				slog.String("op", op), slog.String("error", readErr.Error()))
			return retry.Retryable(readErr)
		}
		return readErr
	})
	return result, err
}

// buildStudentRecords joins the raw roster rows with the assessment/skill
// links: each linked skill of each assessment contributes one SkillScore,
// with the parallel-recovery column applied as an override when filled.
func buildStudentRecords(rows []RosterRow, assessments []grading.Assessment) []grading.StudentRecord {
	records := make([]grading.StudentRecord, 0, len(rows))
	for _, row := range rows {
		rec := grading.StudentRecord{
			RowRef:      row.RowRef,
			DisplayName: row.DisplayName,
			Scores:      make(map[grading.SkillID][]grading.SkillScore),
		}
		for _, a := range assessments {
			score, scored := row.Scores[a.ID]
			var override *float64
			if a.HasRecovery() {
				if rp, ok := row.Scores[a.RecoveryID]; ok {
					override = &rp
				}
			}
			if !scored && override == nil {
				continue
			}
			for _, skillID := range a.Skills {
				rec.Scores[skillID] = append(rec.Scores[skillID], grading.SkillScore{
					AssessmentID: a.ID,
					Score:        score,
					Override:     override,
				})
			}
		}
		records = append(records, rec)
	}
	return records
}
