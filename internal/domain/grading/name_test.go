package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanStudentName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Matheus Gonçalves dos Santos - [PCD]", "Matheus Gonçalves dos Santos"},
		{"Mateus Müller Biscaro - [MENOR]", "Mateus Müller Biscaro"},
		{"Ayumi Iura - [PCD - MENOR]", "Ayumi Iura"},
		{"Ana Paula Souza", "Ana Paula Souza"},
		{"  João da Silva  ", "João da Silva"},
		{"Carla Dias - [pcd]", "Carla Dias"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanStudentName(tt.in), "input %q", tt.in)
	}
}

func TestNamesMatch(t *testing.T) {
	assert.True(t, NamesMatch("Ayumi Iura - [PCD - MENOR]", "ayumi iura"))
	assert.True(t, NamesMatch("João  da  Silva", "João da Silva"))
	assert.False(t, NamesMatch("Ayumi Iura", "Ayumi Iura Santos"))
}

func TestNormalizeSkillID(t *testing.T) {
	assert.Equal(t,
		NormalizeSkillID("*Interpretar requisitos de projetos"),
		NormalizeSkillID("  Interpretar  requisitos de projetos "))
	assert.NotEqual(t,
		NormalizeSkillID("Interpretar requisitos"),
		NormalizeSkillID("Elaborar requisitos"))
}
