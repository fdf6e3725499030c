// Package sgn implements the remote-session driver for the SGN school
// portal (sgn.sesisenai.org.br), a JSF/PrimeFaces application. It speaks
// the portal's partial-request protocol over plain HTTP: form POSTs with a
// ViewState token, XML partial-responses with CDATA fragment updates.
package sgn

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
)

// ═══════════════════════════════════════════════════════════════════════════
// PARTIAL-RESPONSE PARSING
// ═══════════════════════════════════════════════════════════════════════════

// PartialResponse is the decoded body of a JSF partial-request answer.
type PartialResponse struct {
	// Updates maps component client IDs to their re-rendered markup.
	Updates map[string]string

	// Redirect is set when the server answered with a navigation order,
	// which the portal does when the session expired.
	Redirect string
}

type partialEnvelope struct {
	XMLName xml.Name       `xml:"partial-response"`
	Changes partialChanges `xml:"changes"`
	Error   *partialError  `xml:"error"`
}

type partialChanges struct {
	Updates  []partialUpdate `xml:"update"`
	Redirect *struct {
		URL string `xml:"url,attr"`
	} `xml:"redirect"`
}

type partialUpdate struct {
	ID      string `xml:"id,attr"`
	Content string `xml:",cdata"`
}

type partialError struct {
	Name    string `xml:"error-name"`
	Message string `xml:"error-message"`
}

// ParsePartialResponse decodes a partial-response XML document.
func ParsePartialResponse(body []byte) (*PartialResponse, error) {
	var env partialEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode partial-response: %w", err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("portal error %s: %s", env.Error.Name, env.Error.Message)
	}

	pr := &PartialResponse{Updates: make(map[string]string, len(env.Changes.Updates))}
	for _, u := range env.Changes.Updates {
		pr.Updates[u.ID] = u.Content
	}
	if env.Changes.Redirect != nil {
		pr.Redirect = env.Changes.Redirect.URL
	}
	return pr, nil
}

// ViewState returns the ViewState token carried by the response, if any.
func (pr *PartialResponse) ViewState() string {
	for id, content := range pr.Updates {
		if strings.Contains(id, "javax.faces.ViewState") {
			return strings.TrimSpace(content)
		}
	}
	return ""
}

// UpdateContaining returns the first update whose ID contains the fragment.
func (pr *PartialResponse) UpdateContaining(fragment string) (string, bool) {
	for id, content := range pr.Updates {
		if strings.Contains(id, fragment) {
			return content, true
		}
	}
	return "", false
}

// ═══════════════════════════════════════════════════════════════════════════
// HTML EXTRACTION
// The portal renders everything server side; the driver scrapes the exact
// fragments the browser automation used to read. Extraction is regexp based:
// the markup is machine generated and strictly regular.
// ═══════════════════════════════════════════════════════════════════════════

var (
	viewStateRegex = regexp.MustCompile(
		`name="javax\.faces\.ViewState"[^>]*value="([^"]+)"`)

	conceptRowRegex = regexp.MustCompile(
		`(?s)<tr[^>]*data-ri="(\d+)"[^>]*>(.*?)</tr>`)

	studentNameRegex = regexp.MustCompile(
		`(?s)<a[^>]*id="[^"]*linkNomeEstudanteAbaConceitos[^"]*"[^>]*>\s*([^<]+?)\s*</a>`)

	scoreCellRegex = regexp.MustCompile(
		`<span[^>]*class="[^"]*nota-avaliacao[^"]*"[^>]*data-coluna="([^"]+)"[^>]*>\s*([\d.,]+)\s*</span>`)

	assessmentHeaderRegex = regexp.MustCompile(
		`<span[^>]*class="[^"]*coluna-avaliacao[^"]*"[^>]*title="([^"]*)"[^>]*>\s*([^<]+?)\s*</span>`)

	skillRowRegex = regexp.MustCompile(
		`(?s)<tr[^>]*data-ri="(\d+)"[^>]*>\s*<td[^>]*>\s*<span[^>]*class="[^"]*descricao-habilidade[^"]*"[^>]*>\s*(.*?)\s*</span>`)

	selectedGradeRegex = regexp.MustCompile(
		`(?s)id="formAtitudes:panelAtitudes:dataTableHabilidades:(\d+):notaConceito_input"(.*?)</select>`)

	selectedOptionRegex = regexp.MustCompile(
		`<option[^>]*value="([^"]*)"[^>]*selected(?:="selected")?[^>]*>`)

	listedOptionRegex = regexp.MustCompile(
		`<option[^>]*value="(\d+)"[^>]*>\s*([^<]+?)\s*</option>`)

	attitudeRowRegex = regexp.MustCompile(
		`id="formAtitudes:panelAtitudes:dataTableAtitudes:(\d+):observacaoAtitude_input"`)

	periodOptionRegex = regexp.MustCompile(
		`<option[^>]*value="(TR1|TR2|TR3|CF)"[^>]*>`)

	exceptionSummaryRegex = regexp.MustCompile(
		`(?s)<span[^>]*class="[^"]*exception-summary[^"]*"[^>]*>\s*(.*?)\s*</span>`)
)

// ExtractViewState finds the ViewState token in a full page render.
func ExtractViewState(html string) (string, error) {
	m := viewStateRegex.FindStringSubmatch(html)
	if m == nil {
		return "", fmt.Errorf("view state token not found")
	}
	return m[1], nil
}

// ExceptionSummary returns the portal's inline error banner text, if the
// fragment carries one. The portal raises it when a save is refused, for
// example a C grade without a remedial record.
func ExceptionSummary(html string) (string, bool) {
	m := exceptionSummaryRegex.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ParseAssessmentColumns extracts the assessment columns of the concept
// table header. The column tooltip carries the title, the period tag, the
// linked skills and, for recovery columns, the assessment they recover:
//
//	"Avaliação 01 - TR2 | Habilidades: Lógica de Programação; Banco de Dados"
//	"Recuperação Paralela de AV1 - TR2"
func ParseAssessmentColumns(html string) []grading.Assessment {
	var (
		assessments []grading.Assessment
		index       = map[string]int{}
	)

	for _, m := range assessmentHeaderRegex.FindAllStringSubmatch(html, -1) {
		title, id := m[1], strings.TrimSpace(m[2])

		if target, ok := parseRecoveryTitle(title); ok {
			if i, known := index[target]; known {
				assessments[i].RecoveryID = id
			}
			continue
		}

		a := grading.Assessment{ID: id}
		a.Title, a.Period, a.Skills = parseAssessmentTitle(title)
		index[id] = len(assessments)
		assessments = append(assessments, a)
	}
	return assessments
}

// parseRecoveryTitle recognizes a parallel-recovery column tooltip and
// returns the ID of the assessment it overrides.
func parseRecoveryTitle(title string) (string, bool) {
	const marker = "Recuperação Paralela de "
	i := strings.Index(title, marker)
	if i < 0 {
		return "", false
	}
	rest := title[i+len(marker):]
	if j := strings.IndexAny(rest, " -|"); j > 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), rest != ""
}

// parseAssessmentTitle splits "Title - PERIOD | Habilidades: a; b" parts.
func parseAssessmentTitle(title string) (string, grading.ReferencePeriod, []grading.SkillID) {
	var skills []grading.SkillID

	head := title
	if i := strings.Index(title, "| Habilidades:"); i >= 0 {
		head = strings.TrimSpace(title[:i])
		for _, s := range strings.Split(title[i+len("| Habilidades:"):], ";") {
			if id := grading.NormalizeSkillID(s); id != "" {
				skills = append(skills, id)
			}
		}
	}

	var period grading.ReferencePeriod
	if i := strings.LastIndex(head, " - "); i >= 0 {
		if p, err := grading.ParseReferencePeriod(head[i+3:]); err == nil {
			period = p
			head = strings.TrimSpace(head[:i])
		}
	}
	return head, period, skills
}

// ParseConceptRows extracts the roster rows of the concept table body:
// row reference, rendered student name and the scores per column. Scores
// use the Brazilian decimal comma.
func ParseConceptRows(html string) []run.RosterRow {
	var rows []run.RosterRow
	for _, m := range conceptRowRegex.FindAllStringSubmatch(html, -1) {
		ref, cells := m[1], m[2]

		name := studentNameRegex.FindStringSubmatch(cells)
		if name == nil {
			continue
		}

		row := run.RosterRow{
			RowRef:      ref,
			DisplayName: strings.TrimSpace(name[1]),
			Scores:      map[string]float64{},
		}
		for _, sc := range scoreCellRegex.FindAllStringSubmatch(cells, -1) {
			if v, err := parseDecimal(sc[2]); err == nil {
				row.Scores[sc[1]] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ParseSkillRows extracts the skill rows of the student editing modal.
func ParseSkillRows(html string) []grading.Skill {
	var skills []grading.Skill
	for _, m := range skillRowRegex.FindAllStringSubmatch(html, -1) {
		desc := strings.TrimSpace(stripTags(m[2]))
		skills = append(skills, grading.Skill{
			ID:          grading.NormalizeSkillID(desc),
			Description: strings.TrimLeft(desc, "* "),
			RowRef:      m[1],
		})
	}
	return skills
}

// ParseSelectedGrades reads the concept currently selected in each skill
// dropdown of the editing modal, in row order.
func ParseSelectedGrades(html string) []grading.ConceptGrade {
	var grades []grading.ConceptGrade
	for _, m := range selectedGradeRegex.FindAllStringSubmatch(html, -1) {
		sel := selectedOptionRegex.FindStringSubmatch(m[2])
		if sel == nil {
			continue
		}
		if g, err := grading.ParseConceptGrade(sel[1]); err == nil {
			grades = append(grades, g)
		}
	}
	return grades
}

// ParseListedStudents extracts the entries of the pedagogical listing
// student dropdown.
func ParseListedStudents(html string) []run.ListedStudent {
	var listed []run.ListedStudent
	for _, m := range listedOptionRegex.FindAllStringSubmatch(html, -1) {
		listed = append(listed, run.ListedStudent{
			Value: m[1],
			Name:  strings.TrimSpace(m[2]),
		})
	}
	return listed
}

// ParseAttitudeRows returns the row indexes of the attitude-observation
// table in the editing modal.
func ParseAttitudeRows(html string) []string {
	var rows []string
	seen := map[string]bool{}
	for _, m := range attitudeRowRegex.FindAllStringSubmatch(html, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			rows = append(rows, m[1])
		}
	}
	return rows
}

// ParseOfferedPeriods returns the periods offered by the period dropdown.
func ParseOfferedPeriods(html string) []grading.ReferencePeriod {
	var periods []grading.ReferencePeriod
	for _, m := range periodOptionRegex.FindAllStringSubmatch(html, -1) {
		if p, err := grading.ParseReferencePeriod(m[1]); err == nil {
			periods = append(periods, p)
		}
	}
	return periods
}

// parseDecimal parses a score rendered with the Brazilian decimal comma.
func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

var tagRegex = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return tagRegex.ReplaceAllString(s, "")
}
