package run

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
	"github.com/sgn-hub/sgn-grade-hub/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// RUN COORDINATOR
// Pipeline per run kind:
//
//	concepts          Authenticate → Navigate → Select Period → Collect →
//	                  Submit (C demoted to NE)
//	concepts_remedial same, C kept, one RA registered per qualifying skill
//	opinions          Authenticate → Navigate → Select Period → Summarize →
//	                  Write Opinions
//
// The coordinator owns the run lifecycle: classroom lock, session, progress
// stream, single terminal event, history record.
// ═══════════════════════════════════════════════════════════════════════════

// RunStatus is the terminal status recorded for a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Record is the persisted summary of one run.
type Record struct {
	ID             uuid.UUID
	Kind           Kind
	Classroom      string
	Period         grading.ReferencePeriod
	Status         RunStatus
	Tally          string
	Succeeded      int
	Failed         int
	Skipped        int
	Remedial       int
	Classification string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// RunLock serializes runs per classroom across server instances. Acquire
// resolves to shared.ErrRunInProgress when another run holds the classroom.
type RunLock interface {
	Acquire(ctx context.Context, classroom string) error
	Release(ctx context.Context, classroom string) error
}

// HistoryRepository stores finished run records.
type HistoryRepository interface {
	SaveRun(ctx context.Context, rec Record) error
	GetRun(ctx context.Context, id uuid.UUID) (Record, error)
}

// StreamHub hands out the per-run progress streams that fan events out to
// subscribers.
type StreamHub interface {
	// OpenStream creates the ordered event stream of a run.
	OpenStream(runID string) ProgressSink

	// CloseStream releases a run's stream after its terminal event has
	// been delivered.
	CloseStream(runID string)
}

// RunCoordinator validates, admits and executes runs. Each admitted run
// executes on its own goroutine, detached from the caller's request
// lifetime, bounded by the configured run timeout and by Shutdown.
type RunCoordinator struct {
	logger   *slog.Logger
	sessions SessionFactory
	lock     RunLock
	history  HistoryRepository
	streams  StreamHub

	runTimeout time.Duration

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

// CoordinatorConfig configures run admission and execution.
type CoordinatorConfig struct {
	// RunTimeout bounds one run end to end.
	RunTimeout time.Duration
}

// DefaultCoordinatorConfig returns the default coordinator configuration.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		RunTimeout: 30 * time.Minute,
	}
}

// NewRunCoordinator creates a coordinator with all its dependencies.
func NewRunCoordinator(
	logger *slog.Logger,
	sessions SessionFactory,
	lock RunLock,
	history HistoryRepository,
	streams StreamHub,
	cfg CoordinatorConfig,
) *RunCoordinator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultCoordinatorConfig().RunTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunCoordinator{
		logger:     logger.With(slog.String("component", "coordinator")),
		sessions:   sessions,
		lock:       lock,
		history:    history,
		streams:    streams,
		runTimeout: cfg.RunTimeout,
		rootCtx:    ctx,
		cancel:     cancel,
		running:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Launch validates the input, takes the classroom lock and starts the run
// on its own goroutine. Returns the run ID for progress subscription, or
// shared.ErrRunInProgress when the classroom is already being processed.
func (c *RunCoordinator) Launch(ctx context.Context, input Input) (uuid.UUID, error) {
	if err := input.Validate(); err != nil {
		return uuid.Nil, err
	}
	if err := c.lock.Acquire(ctx, input.Classroom.String()); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	reporter := NewReporter(c.streams.OpenStream(id.String()))

	runCtx, cancelRun := context.WithTimeout(c.rootCtx, c.runTimeout)
	c.mu.Lock()
	c.running[id] = cancelRun
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "run admitted",
		slog.String("run_id", id.String()),
		slog.String("kind", input.Kind.String()),
		slog.String("classroom", input.Classroom.String()),
		slog.String("period", input.Period.String()),
		slog.String("user", input.Credentials.Redacted()),
	)

	c.wg.Add(1)
	go c.execute(runCtx, id, input, reporter)
	return id, nil
}

// Cancel interrupts an in-flight run. The run still finishes its current
// portal interaction, emits its terminal event with the partial tally and
// releases the classroom lock. Returns shared.ErrNotFound when no run with
// the given ID is in flight.
func (c *RunCoordinator) Cancel(id uuid.UUID) error {
	c.mu.Lock()
	cancelRun, ok := c.running[id]
	c.mu.Unlock()
	if !ok {
		return shared.NewDomainError("run", "Cancel",
			shared.ErrNotFound, "no run in flight with this ID")
	}
	c.logger.Info("run cancellation requested", slog.String("run_id", id.String()))
	cancelRun()
	return nil
}

// Shutdown cancels in-flight runs and waits for their terminal events.
func (c *RunCoordinator) Shutdown() {
	c.cancel()
	c.wg.Wait()
}

// execute runs the full pipeline of one admitted run. Exactly one terminal
// event is emitted, on every path.
func (c *RunCoordinator) execute(ctx context.Context, id uuid.UUID, input Input, reporter *Reporter) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		cancelRun := c.running[id]
		delete(c.running, id)
		c.mu.Unlock()
		if cancelRun != nil {
			cancelRun()
		}
	}()

	rec := Record{
		ID:        id,
		Kind:      input.Kind,
		Classroom: input.Classroom.String(),
		Period:    input.Period,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	result, err := c.runPipeline(ctx, input, reporter)
	if result != nil {
		rec.Tally = result.Tally
		rec.Succeeded = result.Succeeded
		rec.Failed = result.Failed
		rec.Skipped = result.Skipped
		rec.Remedial = result.RemedialRecords
	}

	switch {
	case err == nil:
		rec.Status = StatusCompleted
		reporter.Done(true, rec.Tally, "")
	case errors.Is(err, shared.ErrRunCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		rec.Status = StatusCancelled
		rec.Classification = shared.Classify(shared.ErrRunCancelled)
		msg := "Execução interrompida."
		if rec.Tally != "" {
			msg += " " + rec.Tally
		}
		reporter.Done(false, msg, rec.Classification)
	default:
		rec.Status = StatusFailed
		rec.Classification = shared.Classify(err)
		c.logger.Error("run failed",
			slog.String("run_id", id.String()),
			slog.String("classification", rec.Classification),
			slog.String("error", err.Error()))
		reporter.Done(false, terminalMessage(err), rec.Classification)
	}
	now := time.Now().UTC()
	rec.FinishedAt = &now

	c.record(rec)
	c.release(input.Classroom.String())
	c.streams.CloseStream(id.String())
}

// runPipeline opens the session, prepares the classroom and dispatches to
// the stage matching the run kind.
func (c *RunCoordinator) runPipeline(ctx context.Context, input Input, reporter *Reporter) (*BatchResult, error) {
	reporter.Infof("Iniciando sessão no SGN...")
	sess, err := c.sessions.NewSession(ctx)
	if err != nil {
		return nil, shared.WrapError("coordinator", "NewSession",
			shared.ErrServiceUnavailable, "could not open session", err)
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("session close failed", slog.String("error", err.Error()))
		}
	}()

	if err := c.prepare(ctx, sess, input, reporter); err != nil {
		return nil, err
	}

	switch input.Kind {
	case KindOpinions:
		return NewOpinionOrchestrator(c.logger, reporter).Execute(ctx, sess, input)
	default:
		collector := NewEvidenceCollector(c.logger, reporter)
		evidence, err := collector.Collect(ctx, sess, input.Classroom, input.Period)
		if err != nil {
			return nil, err
		}
		return NewSubmissionOrchestrator(c.logger, reporter).Execute(ctx, sess, input, evidence)
	}
}

// prepare authenticates and navigates to the classroom's concept tab for
// the requested period. Every failure here is pre-submission: no student
// has been touched yet.
func (c *RunCoordinator) prepare(ctx context.Context, sess Session, input Input, reporter *Reporter) error {
	if err := sess.Authenticate(ctx, input.Credentials.Username, input.Credentials.Password); err != nil {
		return shared.WrapError("coordinator", "Authenticate",
			shared.ErrAuthenticationFailed, "login rejected", err)
	}
	reporter.Successf("Autenticado no SGN.")

	reporter.Infof("Abrindo diário da turma %s...", input.Classroom)
	if err := c.stepWithSessionRetry(ctx, "NavigateToClassroom", func(ctx context.Context) error {
		return sess.NavigateToClassroom(ctx, input.Classroom.String())
	}); err != nil {
		return err
	}

	if err := c.stepWithSessionRetry(ctx, "SelectPeriod", func(ctx context.Context) error {
		return sess.SelectPeriod(ctx, input.Period)
	}); err != nil {
		return err
	}
	reporter.Infof("Período %s selecionado.", input.Period)
	return nil
}

// stepWithSessionRetry retries navigation steps that time out waiting for
// the remote pages, with linear backoff. Non-timeout errors pass through.
func (c *RunCoordinator) stepWithSessionRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.SessionRetrier().Do(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if shared.IsRecoverableStep(err) {
			c.logger.WarnContext(ctx, "navigation timed out, retrying",
				slog.String("op", op), slog.String("error", err.Error()))
			return retry.Retryable(err)
		}
		return err
	})
}

// record persists the finished run. Best effort: a history failure is
// logged, never surfaced to the run outcome.
func (c *RunCoordinator) record(rec Record) {
	if c.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.history.SaveRun(ctx, rec); err != nil {
		c.logger.Error("could not record run history",
			slog.String("run_id", rec.ID.String()),
			slog.String("error", err.Error()))
	}
}

func (c *RunCoordinator) release(classroom string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.lock.Release(ctx, classroom); err != nil {
		c.logger.Error("could not release classroom lock",
			slog.String("classroom", classroom),
			slog.String("error", err.Error()))
	}
}

// terminalMessage maps a fatal error to the terminal progress line.
func terminalMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrAuthenticationFailed):
		return "Falha de autenticação no SGN. Verifique usuário e senha."
	case errors.Is(err, shared.ErrNoAssessmentsFound):
		return "Nenhuma avaliação cadastrada para a turma no período."
	case errors.Is(err, shared.ErrPeriodUnavailable):
		return "O período de referência não está disponível para a turma."
	case shared.IsRecoverableStep(err):
		return "O SGN não respondeu a tempo. Tente novamente mais tarde."
	case errors.Is(err, shared.ErrServiceUnavailable):
		return "Não foi possível abrir a sessão no SGN."
	default:
		return "Erro inesperado durante a execução."
	}
}
