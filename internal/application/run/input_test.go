package run

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

func TestInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Input)
		wantErr bool
	}{
		{"valid concepts run", func(in *Input) {}, false},
		{"valid remedial run", func(in *Input) { *in = remedialInput() }, false},
		{"unknown kind", func(in *Input) { in.Kind = "bulk" }, true},
		{"short username", func(in *Input) { in.Credentials.Username = "ab" }, true},
		{"long password", func(in *Input) { in.Credentials.Password = strings.Repeat("x", 101) }, true},
		{"alphabetic classroom", func(in *Input) { in.Classroom = "36A528" }, true},
		{"empty classroom", func(in *Input) { in.Classroom = "" }, true},
		{"unknown period", func(in *Input) { in.Period = "TR9" }, true},
		{"closing period on concepts run", func(in *Input) { in.Period = grading.PeriodCF }, true},
		{"unknown default grade", func(in *Input) { in.DefaultGrade = "D" }, true},
		{"placeholder attitude", func(in *Input) { in.Attitude = grading.AttitudeSelecione }, true},
		{"valid attitude", func(in *Input) { in.Attitude = grading.AttitudeSempre }, false},
		{"remedial without plan", func(in *Input) { in.Kind = KindConceptsRemedial }, true},
		{"remedial with short description", func(in *Input) {
			*in = remedialInput()
			in.Remedial.Description = "curta"
		}, true},
		{"remedial with non-pdf artifact", func(in *Input) {
			*in = remedialInput()
			in.Remedial.Artifact = []byte("PK\x03\x04zipzip")
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := conceptsInput()
			tt.mutate(&in)

			err := in.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err), "expected a validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInputOpinionRunAcceptsClosingPeriod(t *testing.T) {
	in := opinionsInput()
	in.Period = grading.PeriodCF
	assert.NoError(t, in.Validate())
}

func TestInputEffectiveAttitude(t *testing.T) {
	in := conceptsInput()
	assert.Equal(t, grading.DefaultAttitude, in.EffectiveAttitude())

	in.Attitude = grading.AttitudeSempre
	assert.Equal(t, grading.AttitudeSempre, in.EffectiveAttitude())
}

func TestInputResolveOptions(t *testing.T) {
	in := conceptsInput()
	assert.False(t, in.ResolveOptions().KeepC)

	in = remedialInput()
	in.DefaultGrade = grading.GradeB
	opts := in.ResolveOptions()
	assert.True(t, opts.KeepC)
	assert.Equal(t, grading.GradeB, opts.DefaultGrade)
}
