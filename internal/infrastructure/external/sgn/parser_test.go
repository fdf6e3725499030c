package sgn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
)

const partialFixture = `<?xml version="1.0" encoding="UTF-8"?>
<partial-response>
  <changes>
    <update id="tabViewDiarioClasse:formAbaConceitos:dataTableConceitos"><![CDATA[<tbody id="tabViewDiarioClasse:formAbaConceitos:dataTableConceitos_data"><tr data-ri="0"><td>linha</td></tr></tbody>]]></update>
    <update id="j_id1:javax.faces.ViewState:0"><![CDATA[-635183922871882517:3880869104486388582]]></update>
  </changes>
</partial-response>`

const expiredFixture = `<?xml version="1.0" encoding="UTF-8"?>
<partial-response>
  <changes>
    <redirect url="/sgn/login"></redirect>
  </changes>
</partial-response>`

func TestParsePartialResponse(t *testing.T) {
	pr, err := ParsePartialResponse([]byte(partialFixture))
	require.NoError(t, err)

	assert.Equal(t, "-635183922871882517:3880869104486388582", pr.ViewState())

	table, ok := pr.UpdateContaining("dataTableConceitos")
	require.True(t, ok)
	assert.Contains(t, table, `data-ri="0"`)

	_, ok = pr.UpdateContaining("formAtitudes")
	assert.False(t, ok)
}

func TestParsePartialResponseRedirect(t *testing.T) {
	pr, err := ParsePartialResponse([]byte(expiredFixture))
	require.NoError(t, err)
	assert.Equal(t, "/sgn/login", pr.Redirect)
}

func TestParsePartialResponseMalformed(t *testing.T) {
	_, err := ParsePartialResponse([]byte("<html>proxy error</html>"))
	assert.Error(t, err)
}

func TestExtractViewState(t *testing.T) {
	page := `<form><input type="hidden" name="javax.faces.ViewState" id="j_id1:javax.faces.ViewState:0" value="4198401995788313509:-8733685731642396848" autocomplete="off" /></form>`

	vs, err := ExtractViewState(page)
	require.NoError(t, err)
	assert.Equal(t, "4198401995788313509:-8733685731642396848", vs)

	_, err = ExtractViewState("<html></html>")
	assert.Error(t, err)
}

func TestParseAssessmentColumns(t *testing.T) {
	header := `
<th><span class="coluna-avaliacao" title="Avaliação 01 - TR2 | Habilidades: Lógica de Programação; Banco de Dados">AV1</span></th>
<th><span class="coluna-avaliacao" title="Recuperação Paralela de AV1 - TR2">RP1</span></th>
<th><span class="coluna-avaliacao" title="Avaliação 02 - TR2 | Habilidades: Banco de Dados">AV2</span></th>
<th><span class="coluna-avaliacao" title="Avaliação 09 - TR1 | Habilidades: Banco de Dados">AV9</span></th>`

	columns := ParseAssessmentColumns(header)
	require.Len(t, columns, 3)

	av1 := columns[0]
	assert.Equal(t, "AV1", av1.ID)
	assert.Equal(t, "Avaliação 01", av1.Title)
	assert.Equal(t, grading.PeriodTR2, av1.Period)
	assert.Equal(t, "RP1", av1.RecoveryID)
	require.Len(t, av1.Skills, 2)
	assert.Equal(t, grading.NormalizeSkillID("Lógica de Programação"), av1.Skills[0])

	av2 := columns[1]
	assert.Equal(t, "AV2", av2.ID)
	assert.Empty(t, av2.RecoveryID)

	assert.Equal(t, grading.PeriodTR1, columns[2].Period)
}

func TestParseConceptRows(t *testing.T) {
	body := `
<tr data-ri="0" class="ui-widget-content">
  <td><a id="tabViewDiarioClasse:formAbaConceitos:dataTableConceitos:0:linkNomeEstudanteAbaConceitos" href="#"> Ana Beatriz Souza </a></td>
  <td><span class="nota-avaliacao" data-coluna="AV1">9,0</span></td>
  <td><span class="nota-avaliacao" data-coluna="AV2">8,5</span></td>
</tr>
<tr data-ri="1" class="ui-widget-content">
  <td><a id="tabViewDiarioClasse:formAbaConceitos:dataTableConceitos:1:linkNomeEstudanteAbaConceitos" href="#">Bruno Lima - [PCD]</a></td>
  <td><span class="nota-avaliacao" data-coluna="AV1">3,0</span></td>
  <td><span class="nota-avaliacao" data-coluna="RP1">6,5</span></td>
</tr>
<tr data-ri="2" class="ui-widget-content">
  <td><a id="tabViewDiarioClasse:formAbaConceitos:dataTableConceitos:2:linkNomeEstudanteAbaConceitos" href="#">Carla Mendes</a></td>
  <td><span class="sem-nota">-</span></td>
</tr>`

	rows := ParseConceptRows(body)
	require.Len(t, rows, 3)

	assert.Equal(t, "0", rows[0].RowRef)
	assert.Equal(t, "Ana Beatriz Souza", rows[0].DisplayName)
	assert.Equal(t, map[string]float64{"AV1": 9.0, "AV2": 8.5}, rows[0].Scores)

	assert.Equal(t, "Bruno Lima - [PCD]", rows[1].DisplayName)
	assert.Equal(t, 6.5, rows[1].Scores["RP1"])

	assert.Empty(t, rows[2].Scores)
}

func TestParseSkillRows(t *testing.T) {
	modal := `
<tr data-ri="0"><td><span class="descricao-habilidade">* Aplicar <b>lógica</b> de programação</span></td></tr>
<tr data-ri="1"><td><span class="descricao-habilidade">Modelar banco de dados</span></td></tr>`

	skills := ParseSkillRows(modal)
	require.Len(t, skills, 2)
	assert.Equal(t, "0", skills[0].RowRef)
	assert.Equal(t, "Aplicar lógica de programação", skills[0].Description)
	assert.Equal(t, grading.NormalizeSkillID("Aplicar lógica de programação"), skills[0].ID)
	assert.Equal(t, "1", skills[1].RowRef)
}

func TestParseSelectedGrades(t *testing.T) {
	modal := `
<select id="formAtitudes:panelAtitudes:dataTableHabilidades:0:notaConceito_input" name="formAtitudes:panelAtitudes:dataTableHabilidades:0:notaConceito_input">
  <option value=""></option>
  <option value="A" selected="selected">A</option>
  <option value="B">B</option>
</select>
<select id="formAtitudes:panelAtitudes:dataTableHabilidades:1:notaConceito_input" name="formAtitudes:panelAtitudes:dataTableHabilidades:1:notaConceito_input">
  <option value=""></option>
  <option value="NE" selected="selected">NE</option>
</select>
<select id="formAtitudes:panelAtitudes:dataTableHabilidades:2:notaConceito_input" name="formAtitudes:panelAtitudes:dataTableHabilidades:2:notaConceito_input">
  <option value="" selected="selected"></option>
  <option value="C">C</option>
</select>`

	grades := ParseSelectedGrades(modal)
	require.Len(t, grades, 2)
	assert.Equal(t, grading.GradeA, grades[0])
	assert.Equal(t, grading.GradeNE, grades[1])
}

func TestParseListedStudents(t *testing.T) {
	fragment := `
<select id="tabViewDiarioClasse:formAbaPedagogico:selectEstudantes_input">
  <option value="101"> Ana Beatriz Souza </option>
  <option value="102">Bruno Lima</option>
</select>`

	listed := ParseListedStudents(fragment)
	require.Len(t, listed, 2)
	assert.Equal(t, "101", listed[0].Value)
	assert.Equal(t, "Ana Beatriz Souza", listed[0].Name)
}

func TestParseAttitudeRows(t *testing.T) {
	modal := `
<input id="formAtitudes:panelAtitudes:dataTableAtitudes:0:observacaoAtitude_input" />
<input id="formAtitudes:panelAtitudes:dataTableAtitudes:1:observacaoAtitude_input" />
<input id="formAtitudes:panelAtitudes:dataTableAtitudes:1:observacaoAtitude_input" />`

	assert.Equal(t, []string{"0", "1"}, ParseAttitudeRows(modal))
}

func TestParseOfferedPeriods(t *testing.T) {
	combo := `
<select id="tabViewDiarioClasse:formAbaConceitos:comboPeriodo_input">
  <option value="TR1">1º Trimestre</option>
  <option value="TR2">2º Trimestre</option>
  <option value="CF">Conceito Final</option>
</select>`

	periods := ParseOfferedPeriods(combo)
	assert.Equal(t, []grading.ReferencePeriod{
		grading.PeriodTR1, grading.PeriodTR2, grading.PeriodCF,
	}, periods)
}

func TestExceptionSummary(t *testing.T) {
	fragment := `<div><span class="exception-summary ui-messages-error-summary"> Não é permitido conceito C sem registro de recuperação. </span></div>`

	msg, found := ExceptionSummary(fragment)
	require.True(t, found)
	assert.Equal(t, "Não é permitido conceito C sem registro de recuperação.", msg)

	_, found = ExceptionSummary("<div>ok</div>")
	assert.False(t, found)
}
