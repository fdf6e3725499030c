package run

import (
	"context"
	"fmt"
	"time"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

// fakeSession is an in-memory Session with per-operation error injection.
// failures["Save"] = 2 makes the next two Save calls fail with failErr
// (shared.ErrStepTimeout unless overridden per op).
type fakeSession struct {
	assessments []grading.Assessment
	skills      []grading.Skill
	roster      []RosterRow
	listed      []ListedStudent

	// savedGrades returns the stored concept grades per student row,
	// used by the opinion flow.
	savedGrades map[string][]grading.ConceptGrade

	failures map[string]int
	failErr  map[string]error

	// onCall, when set, runs before every recorded operation. Lets a test
	// trigger cancellation at an exact point of the pipeline.
	onCall func(op string, f *fakeSession)

	calls    []string
	openRow  string
	applied  map[string]map[grading.SkillID]grading.ConceptGrade
	attitude map[string]grading.Attitude
	remedial map[string]int
	saved    []string
	closed   bool
	opinions map[string]string
	selected string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		savedGrades: map[string][]grading.ConceptGrade{},
		failures:    map[string]int{},
		failErr:     map[string]error{},
		applied:     map[string]map[grading.SkillID]grading.ConceptGrade{},
		attitude:    map[string]grading.Attitude{},
		remedial:    map[string]int{},
		opinions:    map[string]string{},
	}
}

// failNext arms op to fail n times with shared.ErrStepTimeout.
func (f *fakeSession) failNext(op string, n int) {
	f.failures[op] = n
}

// failWith arms op to fail n times with the given error.
func (f *fakeSession) failWith(op string, n int, err error) {
	f.failures[op] = n
	f.failErr[op] = err
}

func (f *fakeSession) hit(op string) error {
	if f.onCall != nil {
		f.onCall(op, f)
	}
	f.calls = append(f.calls, op)
	if f.failures[op] > 0 {
		f.failures[op]--
		if err, ok := f.failErr[op]; ok {
			return err
		}
		return shared.ErrStepTimeout
	}
	return nil
}

func (f *fakeSession) countCalls(op string) int {
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeSession) Authenticate(ctx context.Context, username, password string) error {
	return f.hit("Authenticate")
}

func (f *fakeSession) NavigateToClassroom(ctx context.Context, code string) error {
	return f.hit("NavigateToClassroom")
}

func (f *fakeSession) SelectPeriod(ctx context.Context, period grading.ReferencePeriod) error {
	return f.hit("SelectPeriod")
}

func (f *fakeSession) ReadAssessments(ctx context.Context) ([]grading.Assessment, error) {
	if err := f.hit("ReadAssessments"); err != nil {
		return nil, err
	}
	return f.assessments, nil
}

func (f *fakeSession) ReadSkills(ctx context.Context) ([]grading.Skill, error) {
	if err := f.hit("ReadSkills"); err != nil {
		return nil, err
	}
	return f.skills, nil
}

func (f *fakeSession) ReadRoster(ctx context.Context) ([]RosterRow, error) {
	if err := f.hit("ReadRoster"); err != nil {
		return nil, err
	}
	return f.roster, nil
}

func (f *fakeSession) OpenStudentContext(ctx context.Context, rowRef string) error {
	if err := f.hit("OpenStudentContext"); err != nil {
		return err
	}
	f.openRow = rowRef
	return nil
}

func (f *fakeSession) ReadStudentGrades(ctx context.Context) ([]grading.ConceptGrade, error) {
	if err := f.hit("ReadStudentGrades"); err != nil {
		return nil, err
	}
	return f.savedGrades[f.openRow], nil
}

func (f *fakeSession) ApplyGrade(ctx context.Context, skill grading.Skill, grade grading.ConceptGrade) error {
	if err := f.hit("ApplyGrade"); err != nil {
		return err
	}
	if f.applied[f.openRow] == nil {
		f.applied[f.openRow] = map[grading.SkillID]grading.ConceptGrade{}
	}
	f.applied[f.openRow][skill.ID] = grade
	return nil
}

func (f *fakeSession) ApplyAttitude(ctx context.Context, attitude grading.Attitude) error {
	if err := f.hit("ApplyAttitude"); err != nil {
		return err
	}
	f.attitude[f.openRow] = attitude
	return nil
}

func (f *fakeSession) OpenRemedialContext(ctx context.Context, skill grading.Skill) error {
	return f.hit("OpenRemedialContext")
}

func (f *fakeSession) FillRemedial(ctx context.Context, start, end time.Time, descriptionHTML string) error {
	return f.hit("FillRemedial")
}

func (f *fakeSession) AttachFile(ctx context.Context, name string, content []byte) error {
	return f.hit("AttachFile")
}

func (f *fakeSession) SaveRemedial(ctx context.Context) error {
	if err := f.hit("SaveRemedial"); err != nil {
		return err
	}
	f.remedial[f.openRow]++
	return nil
}

func (f *fakeSession) Save(ctx context.Context) error {
	if err := f.hit("Save"); err != nil {
		return err
	}
	f.saved = append(f.saved, f.openRow)
	return nil
}

func (f *fakeSession) CloseContext(ctx context.Context) error {
	if err := f.hit("CloseContext"); err != nil {
		return err
	}
	f.openRow = ""
	return nil
}

func (f *fakeSession) OpenPedagogicalListing(ctx context.Context) ([]ListedStudent, error) {
	if err := f.hit("OpenPedagogicalListing"); err != nil {
		return nil, err
	}
	return f.listed, nil
}

func (f *fakeSession) SelectListedStudent(ctx context.Context, value string) error {
	if err := f.hit("SelectListedStudent"); err != nil {
		return err
	}
	f.selected = value
	return nil
}

func (f *fakeSession) WriteOpinion(ctx context.Context, periodRow int, text string) error {
	if err := f.hit("WriteOpinion"); err != nil {
		return err
	}
	f.opinions[f.selected] = text
	return nil
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.closed = true
	return f.hit("Close")
}

// collectEvents returns a reporter writing into the returned slice.
func collectEvents() (*Reporter, *[]shared.ProgressEvent) {
	events := &[]shared.ProgressEvent{}
	reporter := NewReporter(ProgressSinkFunc(func(e shared.ProgressEvent) {
		*events = append(*events, e)
	}))
	return reporter, events
}

// classroomFixture builds evidence-producing session data: two assessments
// in TR2 (AV1 with recovery RP1), three skills, three students.
func classroomFixture() *fakeSession {
	f := newFakeSession()
	f.assessments = []grading.Assessment{
		{
			ID:         "AV1",
			Title:      "Avaliação 01",
			Period:     grading.PeriodTR2,
			Skills:     []grading.SkillID{"logica de programacao", "banco de dados"},
			RecoveryID: "RP1",
		},
		{
			ID:     "AV2",
			Title:  "Avaliação 02",
			Period: grading.PeriodTR2,
			Skills: []grading.SkillID{"banco de dados", "engenharia de requisitos"},
		},
		{
			ID:     "AV9",
			Title:  "Avaliação de outro período",
			Period: grading.PeriodTR1,
			Skills: []grading.SkillID{"logica de programacao"},
		},
	}
	f.skills = []grading.Skill{
		{ID: "logica de programacao", Description: "Lógica de Programação", RowRef: "0"},
		{ID: "banco de dados", Description: "Banco de Dados", RowRef: "1"},
		{ID: "engenharia de requisitos", Description: "Engenharia de Requisitos", RowRef: "2"},
	}
	f.roster = []RosterRow{
		{
			RowRef:      "0",
			DisplayName: "Ana Beatriz Souza",
			Scores:      map[string]float64{"AV1": 9.0, "AV2": 8.5},
		},
		{
			RowRef:      "1",
			DisplayName: "Bruno Lima - [PCD]",
			Scores:      map[string]float64{"AV1": 3.0, "RP1": 6.5, "AV2": 7.0},
		},
		{
			RowRef:      "2",
			DisplayName: "Carla Mendes",
			Scores:      map[string]float64{"AV1": 4.5, "AV2": 5.0},
		},
	}
	return f
}

var _ Session = (*fakeSession)(nil)

// tallyLine is a helper matching the batch summary format.
func tallyLine(ok, total int) string {
	return fmt.Sprintf("Processados: %d/%d alunos", ok, total)
}
