package sgn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
	"github.com/sgn-hub/sgn-grade-hub/pkg/circuitbreaker"
	"github.com/sgn-hub/sgn-grade-hub/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// COMPONENT IDS
// Client IDs of the portal's JSF component tree. They are stable across
// deployments; the trailing _input/_data suffixes follow the PrimeFaces
// naming scheme.
// ═══════════════════════════════════════════════════════════════════════════

const (
	loginPath       = "/sgn/login"
	diaryPathFormat = "/pages/diarioClasse/diario-classe.html?idDiario=%s"

	conceptForm  = "tabViewDiarioClasse:formAbaConceitos"
	conceptTable = conceptForm + ":dataTableConceitos"
	periodCombo  = conceptForm + ":comboPeriodo"

	attitudeForm  = "formAtitudes"
	skillTable    = attitudeForm + ":panelAtitudes:dataTableHabilidades"
	attitudeTable = attitudeForm + ":panelAtitudes:dataTableAtitudes"

	remedialForm   = "formRecomposicao"
	remedialUpload = remedialForm + ":uploadAnexo"

	pedagogicoForm = "tabViewDiarioClasse:formAbaPedagogico"
	listingSelect  = pedagogicoForm + ":selectEstudantes"
	opinionTable   = pedagogicoForm + ":dataTableParecer"
)

// ═══════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════

// Config contains configuration for the SGN session driver.
type Config struct {
	// BaseURL is the portal base URL.
	BaseURL string

	// Timeout bounds one HTTP exchange. An exchange that exceeds it is
	// surfaced as a step timeout to the orchestration layer.
	Timeout time.Duration

	// RateLimiter paces the driver's requests.
	RateLimiter RateLimiterConfig

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables per-exchange debug logging.
	Debug bool
}

// DefaultConfig returns sensible defaults for the production portal.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://sgn.sesisenai.org.br",
		Timeout:     20 * time.Second,
		RateLimiter: DefaultRateLimiterConfig(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// SESSION
// ═══════════════════════════════════════════════════════════════════════════

// Session drives one authenticated portal session. Not safe for concurrent
// use: the portal's component tree has hidden per-session state (active
// modal, selected period), so calls must be sequential, which is exactly
// how the orchestration layer uses it.
type Session struct {
	config  Config
	client  *http.Client
	logger  *slog.Logger
	limiter *RateLimiter
	breaker *circuitbreaker.CircuitBreaker

	viewState string
	diaryURL  string

	// Cached fragments of the current render.
	conceptHTML    string
	modalHTML      string
	pedagogicoHTML string
}

// NewSession creates an unauthenticated session with its own cookie jar.
func NewSession(config Config) (*Session, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	logger := config.Logger.With(slog.String("component", "sgn"))
	return &Session{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Jar:     jar,
		},
		logger:  logger,
		limiter: NewRateLimiter(config.RateLimiter),
		breaker: circuitbreaker.SGNBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}),
	}, nil
}

// Factory opens sessions for the run coordinator.
type Factory struct {
	config Config
}

// NewFactory creates a session factory.
func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// NewSession implements run.SessionFactory.
func (f *Factory) NewSession(ctx context.Context) (run.Session, error) {
	return NewSession(f.config)
}

var _ run.Session = (*Session)(nil)

// ═══════════════════════════════════════════════════════════════════════════
// AUTHENTICATION AND NAVIGATION
// ═══════════════════════════════════════════════════════════════════════════

// Authenticate performs the login form flow.
func (s *Session) Authenticate(ctx context.Context, username, password string) error {
	page, err := s.get(ctx, loginPath)
	if err != nil {
		return err
	}
	viewState, err := ExtractViewState(page)
	if err != nil {
		return shared.WrapError("sgn", "Authenticate", shared.ErrStepTimeout,
			"login page did not render", err)
	}

	form := url.Values{
		"loginForm":             {"loginForm"},
		"loginForm:j_username":  {username},
		"loginForm:j_password":  {password},
		"loginForm:btnEntrar":   {"loginForm:btnEntrar"},
		"javax.faces.ViewState": {viewState},
	}
	body, err := s.postForm(ctx, loginPath, form)
	if err != nil {
		return err
	}

	if strings.Contains(body, "loginForm:j_username") ||
		strings.Contains(body, "Usuário ou senha inválidos") {
		return shared.NewDomainError("sgn", "Authenticate",
			shared.ErrAuthenticationFailed, "portal rejected credentials")
	}

	s.logger.InfoContext(ctx, "authenticated", slog.String("user", username))
	return nil
}

// NavigateToClassroom opens the class diary page.
func (s *Session) NavigateToClassroom(ctx context.Context, code string) error {
	path := fmt.Sprintf(diaryPathFormat, url.QueryEscape(code))
	page, err := s.get(ctx, path)
	if err != nil {
		return err
	}
	if !strings.Contains(page, "tabViewDiarioClasse") {
		return shared.NewDomainError("sgn", "NavigateToClassroom",
			shared.ErrStepTimeout, "class diary did not render")
	}
	viewState, err := ExtractViewState(page)
	if err != nil {
		return shared.WrapError("sgn", "NavigateToClassroom",
			shared.ErrStepTimeout, "view state missing from diary page", err)
	}

	s.viewState = viewState
	s.diaryURL = path
	s.conceptHTML = page
	return nil
}

// SelectPeriod switches the concept tab to the reference period.
func (s *Session) SelectPeriod(ctx context.Context, period grading.ReferencePeriod) error {
	offered := ParseOfferedPeriods(s.conceptHTML)
	found := false
	for _, p := range offered {
		if p == period {
			found = true
			break
		}
	}
	if !found {
		return shared.NewDomainError("sgn", "SelectPeriod",
			shared.ErrPeriodUnavailable,
			fmt.Sprintf("period %s not offered (offered: %v)", period, offered))
	}

	pr, err := s.postPartial(ctx, periodCombo, url.Values{
		periodCombo + "_input":        {period.String()},
		"javax.faces.behavior.event":  {"valueChange"},
		"javax.faces.partial.event":   {"change"},
		"javax.faces.partial.render":  {conceptTable},
		"javax.faces.partial.execute": {periodCombo},
	})
	if err != nil {
		return err
	}

	table, ok := pr.UpdateContaining("dataTableConceitos")
	if !ok {
		return shared.NewDomainError("sgn", "SelectPeriod",
			shared.ErrStepTimeout, "concept table did not re-render")
	}
	s.conceptHTML = table
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// EVIDENCE READS
// ═══════════════════════════════════════════════════════════════════════════

// ReadAssessments parses the assessment columns of the concept table.
func (s *Session) ReadAssessments(ctx context.Context) ([]grading.Assessment, error) {
	if s.conceptHTML == "" {
		return nil, shared.NewDomainError("sgn", "ReadAssessments",
			shared.ErrSessionTimeout, "concept table not loaded")
	}
	return ParseAssessmentColumns(s.conceptHTML), nil
}

// ReadSkills reads the skill rows. The portal renders them inside the
// student editing modal, so the first roster row is opened and closed to
// observe them; the rows are identical for every student.
func (s *Session) ReadSkills(ctx context.Context) ([]grading.Skill, error) {
	rows := ParseConceptRows(s.conceptHTML)
	if len(rows) == 0 {
		return nil, nil
	}

	if err := s.OpenStudentContext(ctx, rows[0].RowRef); err != nil {
		return nil, err
	}
	skills := ParseSkillRows(s.modalHTML)
	if err := s.CloseContext(ctx); err != nil {
		return nil, err
	}
	return skills, nil
}

// ReadRoster parses the student rows of the concept table.
func (s *Session) ReadRoster(ctx context.Context) ([]run.RosterRow, error) {
	if s.conceptHTML == "" {
		return nil, shared.NewDomainError("sgn", "ReadRoster",
			shared.ErrSessionTimeout, "concept table not loaded")
	}
	return ParseConceptRows(s.conceptHTML), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// STUDENT EDITING CONTEXT
// ═══════════════════════════════════════════════════════════════════════════

// OpenStudentContext opens the editing modal of one student row.
func (s *Session) OpenStudentContext(ctx context.Context, rowRef string) error {
	source := conceptTable + ":" + rowRef + ":linkEditarAtitudes"
	pr, err := s.postPartial(ctx, source, url.Values{
		"javax.faces.partial.execute": {source},
		"javax.faces.partial.render":  {attitudeForm},
	})
	if err != nil {
		return err
	}

	modal, ok := pr.UpdateContaining(attitudeForm)
	if !ok {
		return shared.NewDomainError("sgn", "OpenStudentContext",
			shared.ErrStepTimeout, "editing modal did not render")
	}
	s.modalHTML = modal
	return nil
}

// ReadStudentGrades reads the concept dropdowns of the open modal.
func (s *Session) ReadStudentGrades(ctx context.Context) ([]grading.ConceptGrade, error) {
	if s.modalHTML == "" {
		return nil, shared.NewDomainError("sgn", "ReadStudentGrades",
			shared.ErrStepTimeout, "no editing modal open")
	}
	return ParseSelectedGrades(s.modalHTML), nil
}

// ApplyGrade sets one skill's concept dropdown.
func (s *Session) ApplyGrade(ctx context.Context, skill grading.Skill, grade grading.ConceptGrade) error {
	source := skillTable + ":" + skill.RowRef + ":notaConceito"
	_, err := s.postPartial(ctx, source, url.Values{
		source + "_input":             {grade.String()},
		"javax.faces.behavior.event":  {"valueChange"},
		"javax.faces.partial.event":   {"change"},
		"javax.faces.partial.execute": {source},
		"javax.faces.partial.render":  {source},
	})
	return err
}

// ApplyAttitude sets every attitude-observation row of the open modal.
func (s *Session) ApplyAttitude(ctx context.Context, attitude grading.Attitude) error {
	rows := ParseAttitudeRows(s.modalHTML)
	for _, row := range rows {
		source := attitudeTable + ":" + row + ":observacaoAtitude"
		if _, err := s.postPartial(ctx, source, url.Values{
			source + "_input":             {attitude.String()},
			"javax.faces.behavior.event":  {"valueChange"},
			"javax.faces.partial.event":   {"change"},
			"javax.faces.partial.execute": {source},
			"javax.faces.partial.render":  {source},
		}); err != nil {
			return err
		}
	}
	return nil
}

// Save persists the open editing modal. The portal refuses some
// combinations server side (a C grade without a remedial record); the
// refusal banner is surfaced as an error.
func (s *Session) Save(ctx context.Context) error {
	source := attitudeForm + ":btnSalvar"
	pr, err := s.postPartial(ctx, source, url.Values{
		"javax.faces.partial.execute": {attitudeForm},
		"javax.faces.partial.render":  {attitudeForm + " " + conceptTable},
	})
	if err != nil {
		return err
	}
	if table, ok := pr.UpdateContaining("dataTableConceitos"); ok {
		s.conceptHTML = table
	}
	return nil
}

// CloseContext closes the editing modal.
func (s *Session) CloseContext(ctx context.Context) error {
	source := attitudeForm + ":btnFechar"
	_, err := s.postPartial(ctx, source, url.Values{
		"javax.faces.partial.execute": {source},
		"javax.faces.partial.render":  {conceptTable},
	})
	if err != nil {
		return err
	}
	s.modalHTML = ""
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// REMEDIAL LEARNING RECORDS
// ═══════════════════════════════════════════════════════════════════════════

// OpenRemedialContext opens the remedial sub-modal for one skill row.
func (s *Session) OpenRemedialContext(ctx context.Context, skill grading.Skill) error {
	source := skillTable + ":" + skill.RowRef + ":linkRecomposicao"
	pr, err := s.postPartial(ctx, source, url.Values{
		"javax.faces.partial.execute": {source},
		"javax.faces.partial.render":  {remedialForm},
	})
	if err != nil {
		return err
	}
	if _, ok := pr.UpdateContaining(remedialForm); !ok {
		return shared.NewDomainError("sgn", "OpenRemedialContext",
			shared.ErrStepTimeout, "remedial modal did not render")
	}
	return nil
}

// FillRemedial fills the date range and rich-text description of the open
// remedial modal. Dates use the portal's DD/MM/YYYY convention.
func (s *Session) FillRemedial(ctx context.Context, start, end time.Time, descriptionHTML string) error {
	_, err := s.postPartial(ctx, remedialForm, url.Values{
		remedialForm + ":dataInicio_input": {timeutil.FormatBR(start)},
		remedialForm + ":dataFim_input":    {timeutil.FormatBR(end)},
		remedialForm + ":descricao":        {descriptionHTML},
		"javax.faces.partial.execute":      {remedialForm},
		"javax.faces.partial.render":       {remedialForm},
	})
	return err
}

// AttachFile uploads the supporting PDF into the open remedial modal.
func (s *Session) AttachFile(ctx context.Context, name string, content []byte) error {
	return s.postUpload(ctx, remedialUpload, name, content)
}

// SaveRemedial persists the open remedial record.
func (s *Session) SaveRemedial(ctx context.Context) error {
	source := remedialForm + ":btnSalvarRecomposicao"
	_, err := s.postPartial(ctx, source, url.Values{
		"javax.faces.partial.execute": {remedialForm},
		"javax.faces.partial.render":  {remedialForm + " " + attitudeForm},
	})
	return err
}

// ═══════════════════════════════════════════════════════════════════════════
// PEDAGOGICAL LISTING
// ═══════════════════════════════════════════════════════════════════════════

// OpenPedagogicalListing activates the pedagogical tab and returns the
// student dropdown entries.
func (s *Session) OpenPedagogicalListing(ctx context.Context) ([]run.ListedStudent, error) {
	pr, err := s.postPartial(ctx, "tabViewDiarioClasse", url.Values{
		"tabViewDiarioClasse_contentLoad": {"true"},
		"tabViewDiarioClasse_newTab":      {pedagogicoForm},
		"javax.faces.behavior.event":      {"tabChange"},
		"javax.faces.partial.execute":     {"tabViewDiarioClasse"},
		"javax.faces.partial.render":      {pedagogicoForm},
	})
	if err != nil {
		return nil, err
	}

	fragment, ok := pr.UpdateContaining("formAbaPedagogico")
	if !ok {
		return nil, shared.NewDomainError("sgn", "OpenPedagogicalListing",
			shared.ErrStepTimeout, "pedagogical tab did not render")
	}
	s.pedagogicoHTML = fragment
	return ParseListedStudents(fragment), nil
}

// SelectListedStudent selects one entry of the pedagogical dropdown.
func (s *Session) SelectListedStudent(ctx context.Context, value string) error {
	pr, err := s.postPartial(ctx, listingSelect, url.Values{
		listingSelect + "_input":      {value},
		"javax.faces.behavior.event":  {"valueChange"},
		"javax.faces.partial.event":   {"change"},
		"javax.faces.partial.execute": {listingSelect},
		"javax.faces.partial.render":  {opinionTable},
	})
	if err != nil {
		return err
	}
	if fragment, ok := pr.UpdateContaining("dataTableParecer"); ok {
		s.pedagogicoHTML = fragment
	}
	return nil
}

// WriteOpinion writes the opinion text into the period row and saves it.
func (s *Session) WriteOpinion(ctx context.Context, periodRow int, text string) error {
	area := fmt.Sprintf("%s:%d:textAreaParecer", opinionTable, periodRow)
	if _, err := s.postPartial(ctx, area, url.Values{
		area:                          {text},
		"javax.faces.behavior.event":  {"valueChange"},
		"javax.faces.partial.event":   {"change"},
		"javax.faces.partial.execute": {area},
		"javax.faces.partial.render":  {area},
	}); err != nil {
		return err
	}

	source := pedagogicoForm + ":btnSalvarParecer"
	_, err := s.postPartial(ctx, source, url.Values{
		"javax.faces.partial.execute": {pedagogicoForm},
		"javax.faces.partial.render":  {pedagogicoForm},
	})
	return err
}

// Close releases the session's connections. The portal expires the server
// side session on its own.
func (s *Session) Close(ctx context.Context) error {
	s.client.CloseIdleConnections()
	s.viewState = ""
	s.conceptHTML = ""
	s.modalHTML = ""
	s.pedagogicoHTML = ""
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// HTTP EXCHANGES
// ═══════════════════════════════════════════════════════════════════════════

// get performs a rate-limited, breaker-guarded GET and returns the body.
func (s *Session) get(ctx context.Context, path string) (string, error) {
	var body string
	err := s.exchange(ctx, "GET "+path, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/html")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("portal answered status %d", resp.StatusCode)
		}
		body = string(raw)
		return nil
	})
	return body, err
}

// postForm performs a full (non-partial) form POST.
func (s *Session) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	var body string
	err := s.exchange(ctx, "POST "+path, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.config.BaseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("portal answered status %d", resp.StatusCode)
		}
		body = string(raw)
		return nil
	})
	return body, err
}

// postPartial performs a JSF partial request against the diary view. The
// standard partial parameters and the ViewState token are added; the new
// token from the answer replaces the current one. An expired view session
// (redirect order) resolves to shared.ErrSessionTimeout; a portal error
// banner in any updated fragment resolves to a plain error carrying the
// banner text.
func (s *Session) postPartial(ctx context.Context, source string, form url.Values) (*PartialResponse, error) {
	if s.diaryURL == "" {
		return nil, shared.NewDomainError("sgn", "postPartial",
			shared.ErrSessionTimeout, "no diary view open")
	}

	form.Set("javax.faces.partial.ajax", "true")
	form.Set("javax.faces.source", source)
	form.Set(source, source)
	form.Set("javax.faces.ViewState", s.viewState)

	var pr *PartialResponse
	err := s.exchange(ctx, "PARTIAL "+source, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.config.BaseURL+s.diaryURL, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		req.Header.Set("Faces-Request", "partial/ajax")
		req.Header.Set("X-Requested-With", "XMLHttpRequest")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("portal answered status %d", resp.StatusCode)
		}

		pr, err = ParsePartialResponse(raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	if pr.Redirect != "" {
		return nil, shared.NewDomainError("sgn", "postPartial",
			shared.ErrSessionTimeout, "view session expired")
	}
	if vs := pr.ViewState(); vs != "" {
		s.viewState = vs
	}
	for _, content := range pr.Updates {
		if msg, found := ExceptionSummary(content); found {
			return nil, shared.NewDomainError("sgn", source,
				shared.ErrExternalService, msg)
		}
	}
	return pr, nil
}

// postUpload performs a PrimeFaces multipart file upload.
func (s *Session) postUpload(ctx context.Context, source, filename string, content []byte) error {
	if s.diaryURL == "" {
		return shared.NewDomainError("sgn", "postUpload",
			shared.ErrSessionTimeout, "no diary view open")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"javax.faces.partial.ajax":    "true",
		"javax.faces.source":          source,
		"javax.faces.partial.execute": source,
		"javax.faces.partial.render":  remedialForm,
		source:                        source,
		"javax.faces.ViewState":       s.viewState,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("write upload field: %w", err)
		}
	}
	part, err := w.CreateFormFile(source+"_input", filename)
	if err != nil {
		return fmt.Errorf("create upload part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write upload content: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish upload body: %w", err)
	}

	return s.exchange(ctx, "UPLOAD "+source, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.config.BaseURL+s.diaryURL, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Faces-Request", "partial/ajax")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("portal answered status %d", resp.StatusCode)
		}
		return nil
	})
}

// exchange runs one HTTP interaction under the rate limiter and the
// circuit breaker, mapping transport timeouts to the orchestration layer's
// step-timeout error.
func (s *Session) exchange(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := s.limiter.Allow(ctx); err != nil {
		return shared.WrapError("sgn", op, shared.ErrStepTimeout,
			"rate limit wait exhausted", err)
	}

	if s.config.Debug {
		s.logger.DebugContext(ctx, "portal exchange", slog.String("op", op))
	}

	err := s.breaker.Execute(ctx, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return shared.WrapError("sgn", op, shared.ErrServiceUnavailable,
			"portal circuit open", err)
	case isTimeout(err):
		return shared.WrapError("sgn", op, shared.ErrStepTimeout,
			"portal did not answer in time", err)
	default:
		return shared.WrapError("sgn", op, shared.ErrExternalService,
			"portal exchange failed", err)
	}
}

// isTimeout reports whether the error is a transport-level timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
