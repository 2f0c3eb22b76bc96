package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedules(t *testing.T) {
	schedules, err := ParseSchedules("0 6 * * *")
	require.NoError(t, err)
	assert.Equal(t, []string{"0 6 * * *"}, schedules)

	schedules, err = ParseSchedules("  0 6 * * * ;30   18 * * 5;")
	require.NoError(t, err)
	assert.Equal(t, []string{"0 6 * * *", "30 18 * * 5"}, schedules)
}

func TestParseSchedules_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{name: "empty spec", spec: ""},
		{name: "only separators", spec: " ; ;"},
		{name: "invalid cron", spec: "0 6 * * *;invalid"},
		{name: "duplicate schedule", spec: "0 6 * * *;0  6 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedules, err := ParseSchedules(tt.spec)
			require.Error(t, err)
			assert.Nil(t, schedules)
		})
	}
}
