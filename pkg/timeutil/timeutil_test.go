package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBRDate(t *testing.T) {
	d, err := ParseBRDate("01/10/2025")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())
	assert.Equal(t, 10, int(d.Month()))
	assert.Equal(t, 1, d.Day())

	_, err = ParseBRDate("2025-10-01")
	assert.Error(t, err)

	_, err = ParseBRDate("31/02/2025")
	assert.Error(t, err, "impossible calendar dates are rejected")
}

func TestParseBRDateRange(t *testing.T) {
	s, e, err := ParseBRDateRange("01/10/2025", "31/10/2025")
	require.NoError(t, err)
	assert.True(t, s.Before(e))

	_, _, err = ParseBRDateRange("31/10/2025", "01/10/2025")
	assert.Error(t, err)

	// Same-day ranges are allowed.
	_, _, err = ParseBRDateRange("01/10/2025", "01/10/2025")
	assert.NoError(t, err)
}

func TestFormatBR(t *testing.T) {
	assert.Equal(t, "05/03/2025", FormatBR(Date(2025, 3, 5)))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 30, DaysBetween(Date(2025, 10, 1), Date(2025, 10, 31)))
	assert.Equal(t, 30, DaysBetween(Date(2025, 10, 31), Date(2025, 10, 1)))
}
