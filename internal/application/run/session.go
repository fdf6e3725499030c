// Package run contains the orchestration engine for grading batches: the
// evidence collector, the submission state machine, the opinion stage, the
// progress reporter contract and the top-level run coordinator.
//
// The engine drives one exclusively-owned remote session per run. Students
// are processed strictly sequentially; a single student's failure never
// aborts the batch.
package run

import (
	"context"
	"time"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
)

// ═══════════════════════════════════════════════════════════════════════════
// REMOTE SESSION CAPABILITY
// ═══════════════════════════════════════════════════════════════════════════

// RosterRow is one student row of the remote concept table, with the raw
// score rendered under each assessment/recovery column. Columns without a
// score are absent from the map.
type RosterRow struct {
	RowRef      string
	DisplayName string
	Scores      map[string]float64
}

// ListedStudent is one entry of the pedagogical listing, the secondary
// surface used by the opinion stage. Value is the opaque option value the
// session needs to select the student.
type ListedStudent struct {
	Name  string
	Value string
}

// Session is the remote-session capability consumed by the engine. One
// Session instance is exclusively owned by one run; implementations are not
// safe for concurrent use, mirroring the remote UI's own hidden state
// (current modal, selected period).
//
// Every call observes a bounded wait internally and resolves to
// shared.ErrStepTimeout (or shared.ErrSessionTimeout for whole-page reads)
// when the remote UI does not become ready in time. Retry policy is the
// caller's concern, not the session's.
type Session interface {
	// Authenticate logs into the portal. Bad credentials resolve to
	// shared.ErrAuthenticationFailed.
	Authenticate(ctx context.Context, username, password string) error

	// NavigateToClassroom opens the class diary for the given code.
	NavigateToClassroom(ctx context.Context, code string) error

	// SelectPeriod selects the reference period on the concept tab.
	// An unoffered period resolves to shared.ErrPeriodUnavailable.
	SelectPeriod(ctx context.Context, period grading.ReferencePeriod) error

	// ReadAssessments returns the registered assessments of the selected
	// period, with linked skills and recovery columns.
	ReadAssessments(ctx context.Context) ([]grading.Assessment, error)

	// ReadSkills returns the skill rows of the concept editing context.
	ReadSkills(ctx context.Context) ([]grading.Skill, error)

	// ReadRoster returns the student rows with their raw column scores.
	ReadRoster(ctx context.Context) ([]RosterRow, error)

	// OpenStudentContext opens the editing modal of one student row.
	OpenStudentContext(ctx context.Context, rowRef string) error

	// ReadStudentGrades reads the concept grades currently selected in the
	// open student context, in skill order. Used by the opinion stage.
	ReadStudentGrades(ctx context.Context) ([]grading.ConceptGrade, error)

	// ApplyGrade sets one skill's concept dropdown in the open context.
	ApplyGrade(ctx context.Context, skill grading.Skill, grade grading.ConceptGrade) error

	// ApplyAttitude sets every attitude-observation row to the given value.
	ApplyAttitude(ctx context.Context, attitude grading.Attitude) error

	// OpenRemedialContext opens the remedial sub-modal for one skill.
	OpenRemedialContext(ctx context.Context, skill grading.Skill) error

	// FillRemedial fills the date range and description of the open
	// remedial sub-modal.
	FillRemedial(ctx context.Context, start, end time.Time, descriptionHTML string) error

	// AttachFile uploads the supporting document into the open remedial
	// sub-modal and saves the attachment.
	AttachFile(ctx context.Context, name string, content []byte) error

	// SaveRemedial persists the open remedial record and closes its modal.
	SaveRemedial(ctx context.Context) error

	// Save persists the open student context.
	Save(ctx context.Context) error

	// CloseContext returns from the student context to the listing.
	CloseContext(ctx context.Context) error

	// OpenPedagogicalListing switches to the pedagogical tab and returns
	// the student dropdown entries.
	OpenPedagogicalListing(ctx context.Context) ([]ListedStudent, error)

	// SelectListedStudent selects one dropdown entry on the pedagogical tab.
	SelectListedStudent(ctx context.Context, value string) error

	// WriteOpinion writes the opinion text into the given period row of the
	// selected student and saves it.
	WriteOpinion(ctx context.Context, periodRow int, text string) error

	// Close releases the remote session.
	Close(ctx context.Context) error
}

// SessionFactory opens a fresh session for one run. The engine closes the
// session when the run reaches its terminal event.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to the SessionFactory interface.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

// NewSession implements SessionFactory.
func (f SessionFactoryFunc) NewSession(ctx context.Context) (Session, error) {
	return f(ctx)
}
