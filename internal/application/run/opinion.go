package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
	"github.com/sgn-hub/sgn-grade-hub/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// OPINION ORCHESTRATOR
// Flow: Read Saved Grades (per student) → Compute Predominant Grade →
// Open Pedagogical Listing → Match Cleaned Names → Write Opinion → Save
// ═══════════════════════════════════════════════════════════════════════════

// opinionItem is one student ready to receive an opinion.
type opinionItem struct {
	summary grading.OpinionSummary
}

// OpinionOrchestrator writes the pedagogical opinion of each student from
// the mode of the concept grades already saved in the period. Students
// without saved grades, or absent from the pedagogical listing, are skipped
// and counted; the batch never aborts for one student.
type OpinionOrchestrator struct {
	logger   *slog.Logger
	reporter *Reporter
}

// NewOpinionOrchestrator creates an orchestrator reporting to the given
// stream.
func NewOpinionOrchestrator(logger *slog.Logger, reporter *Reporter) *OpinionOrchestrator {
	return &OpinionOrchestrator{
		logger:   logger.With(slog.String("component", "opinion")),
		reporter: reporter,
	}
}

// Execute collects every student's saved grades, computes the predominant
// grade, then writes the opinion texts through the pedagogical listing.
func (o *OpinionOrchestrator) Execute(ctx context.Context, sess Session, input Input) (*BatchResult, error) {
	o.reporter.Infof("Lendo conceitos lançados do período %s...", input.Period)

	rows, err := readWithRetry(ctx, retry.SessionRetrier(), o.logger, "ReadRoster", sess.ReadRoster)
	if err != nil {
		return nil, shared.WrapError("opinion", "ReadRoster", shared.ErrSessionTimeout,
			"roster rows did not render", err)
	}

	result := &BatchResult{Total: len(rows)}
	defer func() {
		if result.Tally == "" {
			result.Tally = fmt.Sprintf("Processados: %d/%d alunos", result.Succeeded, result.Total)
		}
	}()

	items := make([]opinionItem, 0, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, shared.WrapError("opinion", "Execute",
				shared.ErrRunCancelled, "cancelled between students", err)
		}

		summary, err := o.summarizeStudent(ctx, sess, row)
		if err != nil {
			if ctx.Err() != nil {
				return result, shared.WrapError("opinion", "Execute",
					shared.ErrRunCancelled, "cancelled mid-student", ctx.Err())
			}
			if errors.Is(err, grading.ErrNoGradesToSummarize) {
				result.Skipped++
				o.reporter.Warnf("Aluno %s sem conceitos lançados, pulando.",
					grading.CleanStudentName(row.DisplayName))
				continue
			}
			result.Failed++
			o.reporter.Errorf("Falha ao ler conceitos de %s: %s",
				grading.CleanStudentName(row.DisplayName), userMessage(err))
			continue
		}

		o.logger.DebugContext(ctx, "predominant grade computed",
			slog.Int("student", i+1),
			slog.String("name", summary.StudentName),
			slog.String("grade", summary.Predominant.String()))
		items = append(items, opinionItem{summary: summary})
	}

	if err := o.writeOpinions(ctx, sess, input.Period, items, result); err != nil {
		return result, err
	}

	result.Tally = fmt.Sprintf("Processados: %d/%d alunos", result.Succeeded, result.Total)
	o.reporter.Infof("%s", result.Tally)
	return result, nil
}

// summarizeStudent opens one student's concept context, reads the saved
// grades and computes the opinion summary. The context is closed on every
// path so the next student starts from the listing.
func (o *OpinionOrchestrator) summarizeStudent(ctx context.Context, sess Session, row RosterRow) (grading.OpinionSummary, error) {
	if err := stepOnce(ctx, o.reporter, "abrir ficha", func(ctx context.Context) error {
		return sess.OpenStudentContext(ctx, row.RowRef)
	}); err != nil {
		return grading.OpinionSummary{}, err
	}

	grades, err := sess.ReadStudentGrades(ctx)
	closeErr := sess.CloseContext(ctx)
	if err != nil {
		return grading.OpinionSummary{}, err
	}
	if closeErr != nil {
		return grading.OpinionSummary{}, closeErr
	}

	return grading.NewOpinionSummary(row.DisplayName, grades)
}

// writeOpinions switches to the pedagogical listing and writes each
// prepared opinion into the period row of its matched student.
func (o *OpinionOrchestrator) writeOpinions(ctx context.Context, sess Session, period grading.ReferencePeriod, items []opinionItem, result *BatchResult) error {
	if len(items) == 0 {
		return nil
	}

	o.reporter.Infof("Abrindo listagem pedagógica...")
	listed, err := readWithRetry(ctx, retry.SessionRetrier(), o.logger, "OpenPedagogicalListing", sess.OpenPedagogicalListing)
	if err != nil {
		return shared.WrapError("opinion", "OpenPedagogicalListing", shared.ErrSessionTimeout,
			"pedagogical listing did not render", err)
	}

	row := period.OpinionRow()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return shared.WrapError("opinion", "writeOpinions",
				shared.ErrRunCancelled, "cancelled between students", err)
		}

		name := item.summary.StudentName
		value, found := matchListedStudent(listed, name)
		if !found {
			result.Skipped++
			o.logger.WarnContext(ctx, "student not present in pedagogical listing",
				slog.String("name", name))
			o.reporter.Warnf("Aluno %s não consta na listagem pedagógica, pulando.", name)
			continue
		}

		err := o.writeOne(ctx, sess, value, row, item.summary.Text)
		if err != nil {
			if ctx.Err() != nil {
				return shared.WrapError("opinion", "writeOpinions",
					shared.ErrRunCancelled, "cancelled mid-student", ctx.Err())
			}
			result.Failed++
			o.reporter.Errorf("Falha ao registrar parecer de %s: %s", name, userMessage(err))
			continue
		}

		result.Succeeded++
		o.reporter.Successf("Parecer registrado para %s (conceito predominante %s).",
			name, item.summary.Predominant)
	}
	return nil
}

func (o *OpinionOrchestrator) writeOne(ctx context.Context, sess Session, value string, row int, text string) error {
	if err := stepOnce(ctx, o.reporter, "selecionar aluno", func(ctx context.Context) error {
		return sess.SelectListedStudent(ctx, value)
	}); err != nil {
		return err
	}
	return stepOnce(ctx, o.reporter, "registrar parecer", func(ctx context.Context) error {
		return sess.WriteOpinion(ctx, row, text)
	})
}

// matchListedStudent finds the listing entry whose cleaned name matches.
func matchListedStudent(listed []ListedStudent, cleanName string) (string, bool) {
	for _, l := range listed {
		if grading.NamesMatch(l.Name, cleanName) {
			return l.Value, true
		}
	}
	return "", false
}

// stepOnce runs one session interaction under the step retry policy. Shared
// by both orchestrators.
func stepOnce(ctx context.Context, reporter *Reporter, label string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.StepRetrier().Do(ctx, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if shared.IsRecoverableStep(err) {
			if attempt == 1 {
				reporter.Warnf("Tempo excedido ao %s, tentando novamente...", label)
			}
			return retry.Retryable(err)
		}
		return err
	})
}
