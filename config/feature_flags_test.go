package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlagsDefaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.RunKindEnabled("concepts", nil))
	assert.True(t, ff.RunKindEnabled("concepts_remedial", nil))
	assert.True(t, ff.RunKindEnabled("opinions", nil))
	assert.False(t, ff.RunKindEnabled("unknown", nil))

	assert.True(t, ff.IsEnabled(FeatureRunHistory, nil))
	assert.True(t, ff.IsEnabled(FeatureRunEventReplay, nil))
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestFeatureFlagsEnvironmentOverride(t *testing.T) {
	t.Setenv("FEATURE_RUNS_OPINIONS", "false")
	ff := LoadFeatureFlags()

	assert.False(t, ff.RunKindEnabled("opinions", nil))
	assert.True(t, ff.RunKindEnabled("concepts", nil))
}

func TestFeatureFlagsRolloutPercent(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureRunsConceptsRemedial, 0))

	ctx := &FeatureContext{Classroom: "369528"}
	assert.False(t, ff.RunKindEnabled("concepts_remedial", ctx))

	require.NoError(t, ff.SetRolloutPercent(FeatureRunsConceptsRemedial, 100))
	assert.True(t, ff.RunKindEnabled("concepts_remedial", ctx))

	assert.Error(t, ff.SetRolloutPercent(FeatureRunsConceptsRemedial, 150))
	assert.Error(t, ff.SetRolloutPercent("no.such.feature", 50))
}

func TestFeatureFlagsClassroomOverride(t *testing.T) {
	ff := LoadFeatureFlags()
	ff.SetClassroomOverride("369528", FeatureRunsConcepts, false)

	assert.False(t, ff.RunKindEnabled("concepts", &FeatureContext{Classroom: "369528"}))
	assert.True(t, ff.RunKindEnabled("concepts", &FeatureContext{Classroom: "369529"}))

	ff.ClearClassroomOverrides("369528")
	assert.True(t, ff.RunKindEnabled("concepts", &FeatureContext{Classroom: "369528"}))
}

func TestFeatureFlagsAdminBypass(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureRunsOpinions))

	assert.False(t, ff.RunKindEnabled("opinions", &FeatureContext{Classroom: "369528"}))
	assert.True(t, ff.RunKindEnabled("opinions", &FeatureContext{Classroom: "369528", IsAdmin: true}))
}

func TestFeatureFlagsRolloutBucketIsStable(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureRunsConceptsRemedial, 50))

	ctx := &FeatureContext{Classroom: "369528"}
	first := ff.RunKindEnabled("concepts_remedial", ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.RunKindEnabled("concepts_remedial", ctx))
	}
}
