package grading

import (
	"hash/fnv"
)

// OpinionSummary carries a student's predominant grade and the opinion text
// derived from it, destined for the pedagogical listing of the period.
type OpinionSummary struct {
	// StudentName is the cleaned display name used to match the student
	// against the pedagogical listing.
	StudentName string

	// Predominant is the mode of the student's skill grades in the period.
	Predominant ConceptGrade

	// Text is the opinion paragraph to be written into the period row.
	Text string
}

// opinionBank holds the canned opinion paragraphs per predominant grade.
// The texts follow the register required by the pedagogical coordination:
// achievements first, then the improvement path.
var opinionBank = map[ConceptGrade][]string{
	GradeA: {
		"O estudante demonstra domínio consistente das habilidades trabalhadas no período, com entregas de alta qualidade, autonomia na resolução de problemas e participação ativa nas atividades propostas. Recomenda-se manter o ritmo de estudos e assumir desafios de maior complexidade.",
		"O estudante apresenta desempenho destacado, evidenciando compreensão aprofundada dos conteúdos e capacidade de aplicá-los em situações novas. Colabora com os colegas e contribui para o avanço coletivo da turma.",
	},
	GradeB: {
		"O estudante apresenta evolução compatível com o período, havendo oportunidades de aprimoramento em organização, consistência nas entregas e participação. A consolidação dos conteúdos ocorrerá com maior dedicação e estudos regulares.",
		"O estudante demonstra boa apropriação das habilidades do período, com desempenho regular nas avaliações. Para avançar, recomenda-se aprofundar os estudos nos temas com menor rendimento e ampliar a participação nas atividades práticas.",
	},
	GradeC: {
		"O estudante apresenta apropriação parcial das habilidades do período e necessita de acompanhamento direcionado. Recomenda-se a participação nas ações de recomposição de aprendizagem e a retomada dos conteúdos fundamentais com apoio docente.",
		"O estudante demonstra dificuldades na consolidação de parte das habilidades trabalhadas, com desempenho abaixo do esperado em algumas avaliações. O plano de recomposição de aprendizagem e a frequência nos atendimentos são essenciais para a recuperação.",
	},
	GradeNE: {
		"O estudante não evidenciou, no período, a apropriação das habilidades trabalhadas, seja por desempenho insuficiente nas avaliações ou por ausência de entregas. É indispensável a retomada integral dos conteúdos, com plano de estudos orientado e acompanhamento próximo da equipe pedagógica.",
	},
}

// opinionFallback is used if the bank has no entry for the grade.
const opinionFallback = "O estudante apresenta evolução compatível com o período, havendo oportunidades de aprimoramento em organização, consistência nas entregas e participação. A consolidação dos conteúdos ocorrerá com maior dedicação e estudos regulares."

// OpinionForGrade selects the opinion paragraph for a predominant grade.
// Selection is deterministic: the student name seeds the pick, so re-running
// a batch writes the same text for the same student.
func OpinionForGrade(grade ConceptGrade, studentName string) string {
	texts := opinionBank[grade]
	if len(texts) == 0 {
		for _, alt := range []ConceptGrade{GradeB, GradeA, GradeC, GradeNE} {
			if len(opinionBank[alt]) > 0 {
				texts = opinionBank[alt]
				break
			}
		}
	}
	if len(texts) == 0 {
		return opinionFallback
	}

	h := fnv.New32a()
	h.Write([]byte(CleanStudentName(studentName)))
	return texts[h.Sum32()%uint32(len(texts))]
}

// NewOpinionSummary computes the predominant grade of the ordered skill
// grades and pairs it with the opinion text for the student.
func NewOpinionSummary(displayName string, grades []ConceptGrade) (OpinionSummary, error) {
	mode, err := ModeForStudent(grades)
	if err != nil {
		return OpinionSummary{}, err
	}
	clean := CleanStudentName(displayName)
	return OpinionSummary{
		StudentName: clean,
		Predominant: mode,
		Text:        OpinionForGrade(mode, clean),
	}, nil
}
