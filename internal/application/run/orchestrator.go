package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// SUBMISSION ORCHESTRATOR
// Multi-stage process: Open Student Context → Apply Grades → Apply Attitudes
// → [Open Remedial → Fill → Attach → Save Remedial]* → Save → Close Context
//
// One student's failure never aborts the batch: the student is demoted to
// the failure tally and the next student starts from a clean listing.
// ═══════════════════════════════════════════════════════════════════════════

// SubmissionStep identifies a stage of the submission state machine.
type SubmissionStep string

const (
	StepIdle           SubmissionStep = "idle"
	StepSessionReady   SubmissionStep = "session_ready"
	StepPeriodSelected SubmissionStep = "period_selected"
	StepStudentOpened  SubmissionStep = "student_opened"
	StepGradesApplied  SubmissionStep = "grades_applied"
	StepRemedialOpened SubmissionStep = "remedial_opened"
	StepRemedialSaved  SubmissionStep = "remedial_saved"
	StepStudentSaved   SubmissionStep = "student_saved"
	StepStudentClosed  SubmissionStep = "student_closed"
	StepBatchComplete  SubmissionStep = "batch_complete"
	StepErrored        SubmissionStep = "errored"
)

// BatchState tracks the progress of one submission batch.
type BatchState struct {
	CurrentStep SubmissionStep
	Input       Input
	Evidence    grading.ClassroomEvidence

	// Per-student counters.
	Processed       int
	Succeeded       int
	Failed          int
	Skipped         int
	RemedialRecords int

	StartedAt   time.Time
	CompletedAt *time.Time
}

// BatchResult is the terminal accounting of a submission batch.
type BatchResult struct {
	Total           int
	Succeeded       int
	Failed          int
	Skipped         int
	RemedialRecords int

	// Tally is the human-readable summary line of the batch.
	Tally string
}

// SubmissionOrchestrator drives the per-student submission state machine
// over an exclusively-owned session. Students are processed strictly
// sequentially; cancellation is observed between state transitions.
type SubmissionOrchestrator struct {
	logger   *slog.Logger
	reporter *Reporter
}

// NewSubmissionOrchestrator creates an orchestrator reporting to the given
// stream.
func NewSubmissionOrchestrator(logger *slog.Logger, reporter *Reporter) *SubmissionOrchestrator {
	return &SubmissionOrchestrator{
		logger:   logger.With(slog.String("component", "orchestrator")),
		reporter: reporter,
	}
}

// Execute submits the resolved grades of every student in the evidence.
// Returns an error only for run-level failures (cancellation); per-student
// failures are absorbed into the result.
func (o *SubmissionOrchestrator) Execute(ctx context.Context, sess Session, input Input, evidence grading.ClassroomEvidence) (*BatchResult, error) {
	state := &BatchState{
		CurrentStep: StepPeriodSelected,
		Input:       input,
		Evidence:    evidence,
		StartedAt:   time.Now().UTC(),
	}
	opts := input.ResolveOptions()

	for i, student := range evidence.Students {
		if err := ctx.Err(); err != nil {
			state.CurrentStep = StepErrored
			return o.finish(state), shared.WrapError("orchestrator", "Execute",
				shared.ErrRunCancelled, "cancelled between students", err)
		}

		state.Processed++
		o.reporter.Infof("Processando aluno %d/%d: %s...",
			i+1, len(evidence.Students), student.CleanName())

		decision := grading.ResolveStudent(evidence, student, opts)
		if len(decision.Grades) == 0 {
			state.Skipped++
			o.reporter.Warnf("Aluno %s sem notas para lançar, pulando.", student.CleanName())
			continue
		}

		registered, saved, err := o.submitStudent(ctx, sess, state, input, decision)
		state.RemedialRecords += registered
		if saved {
			// The portal persisted this student's grades; whatever happens
			// to the closing steps, the student counts as processed.
			state.Succeeded++
			o.reporter.Successf("Aluno %s processado (%d conceito(s)).",
				student.CleanName(), len(decision.Grades))
		}
		if err != nil {
			if ctx.Err() != nil {
				state.CurrentStep = StepErrored
				return o.finish(state), shared.WrapError("orchestrator", "Execute",
					shared.ErrRunCancelled, "cancelled mid-student", ctx.Err())
			}
			if saved {
				o.logger.WarnContext(ctx, "student saved but context close failed",
					slog.String("student", student.CleanName()),
					slog.String("error", err.Error()))
			} else {
				state.Failed++
				o.logger.ErrorContext(ctx, "student submission failed",
					slog.String("student", student.CleanName()),
					slog.String("step", string(state.CurrentStep)),
					slog.String("error", err.Error()))
				o.reporter.Errorf("Falha ao processar %s: %s", student.CleanName(), userMessage(err))
			}
			o.recoverListing(ctx, sess, state)
			continue
		}
	}

	state.CurrentStep = StepBatchComplete
	result := o.finish(state)
	o.reporter.Infof("%s", result.Tally)
	return result, nil
}

// submitStudent runs the per-student stages. Returns the number of remedial
// records registered, which counts toward the tally even when a later stage
// fails, and whether Save persisted the student's grades.
func (o *SubmissionOrchestrator) submitStudent(ctx context.Context, sess Session, state *BatchState, input Input, decision grading.StudentDecision) (int, bool, error) {
	student := decision.Student

	state.CurrentStep = StepStudentOpened
	if err := o.step(ctx, "abrir ficha", func(ctx context.Context) error {
		return sess.OpenStudentContext(ctx, student.RowRef)
	}); err != nil {
		return 0, false, err
	}

	state.CurrentStep = StepGradesApplied
	for _, sg := range decision.Grades {
		if err := o.step(ctx, "lançar conceito", func(ctx context.Context) error {
			return sess.ApplyGrade(ctx, sg.Skill, sg.Grade)
		}); err != nil {
			return 0, false, err
		}
		if sg.Demoted {
			o.logger.DebugContext(ctx, "grade demoted to NE",
				slog.String("student", student.CleanName()),
				slog.String("skill", string(sg.Skill.ID)))
		}
	}
	if err := o.step(ctx, "lançar atitudes", func(ctx context.Context) error {
		return sess.ApplyAttitude(ctx, input.EffectiveAttitude())
	}); err != nil {
		return 0, false, err
	}

	registered := 0
	if input.Kind == KindConceptsRemedial && input.Remedial != nil {
		for _, skill := range decision.RemedialSkills {
			state.CurrentStep = StepRemedialOpened
			if err := o.registerRemedial(ctx, sess, *input.Remedial, skill); err != nil {
				return registered, false, err
			}
			state.CurrentStep = StepRemedialSaved
			registered++
			o.reporter.Infof("RA cadastrada para %s (%s).",
				student.CleanName(), skill.Description)
		}
	}

	state.CurrentStep = StepStudentSaved
	if err := o.step(ctx, "salvar ficha", func(ctx context.Context) error {
		return sess.Save(ctx)
	}); err != nil {
		return registered, false, err
	}

	state.CurrentStep = StepStudentClosed
	if err := o.step(ctx, "fechar ficha", func(ctx context.Context) error {
		return sess.CloseContext(ctx)
	}); err != nil {
		return registered, true, err
	}

	return registered, true, nil
}

// registerRemedial runs the remedial sub-flow for one skill.
func (o *SubmissionOrchestrator) registerRemedial(ctx context.Context, sess Session, plan grading.RemedialPlan, skill grading.Skill) error {
	if err := o.step(ctx, "abrir RA", func(ctx context.Context) error {
		return sess.OpenRemedialContext(ctx, skill)
	}); err != nil {
		return err
	}
	if err := o.step(ctx, "preencher RA", func(ctx context.Context) error {
		return sess.FillRemedial(ctx, plan.Start, plan.End, plan.DescriptionHTML())
	}); err != nil {
		return err
	}
	if len(plan.Artifact) > 0 {
		if err := o.step(ctx, "anexar documento", func(ctx context.Context) error {
			return sess.AttachFile(ctx, plan.ArtifactName, plan.Artifact)
		}); err != nil {
			return err
		}
	}
	return o.step(ctx, "salvar RA", func(ctx context.Context) error {
		return sess.SaveRemedial(ctx)
	})
}

// step runs one session interaction under the step retry policy: a bounded
// wait timeout is retried once, anything else fails the student immediately.
func (o *SubmissionOrchestrator) step(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	return stepOnce(ctx, o.reporter, label, fn)
}

// recoverListing returns the session to the student listing after a failed
// student so the next one starts from a clean state. Best effort.
func (o *SubmissionOrchestrator) recoverListing(ctx context.Context, sess Session, state *BatchState) {
	if err := sess.CloseContext(ctx); err != nil {
		o.logger.WarnContext(ctx, "could not close student context after failure",
			slog.String("step", string(state.CurrentStep)),
			slog.String("error", err.Error()))
	}
}

// finish stamps completion and builds the result with its tally line.
func (o *SubmissionOrchestrator) finish(state *BatchState) *BatchResult {
	now := time.Now().UTC()
	state.CompletedAt = &now

	result := &BatchResult{
		Total:           len(state.Evidence.Students),
		Succeeded:       state.Succeeded,
		Failed:          state.Failed,
		Skipped:         state.Skipped,
		RemedialRecords: state.RemedialRecords,
	}
	result.Tally = fmt.Sprintf("Processados: %d/%d alunos", result.Succeeded, result.Total)
	if state.Input.Kind == KindConceptsRemedial {
		result.Tally += fmt.Sprintf(", %d RA(s) cadastrada(s)", result.RemedialRecords)
	}
	return result
}

// userMessage maps an internal error to the line shown on the progress
// stream.
func userMessage(err error) string {
	switch {
	case shared.IsRecoverableStep(err):
		return "a página não respondeu a tempo"
	default:
		return err.Error()
	}
}
