package caldate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToday_UsesLocalComponents(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 23:30 local on Jan 9 is already Jan 10 in UTC.
	now := time.Date(2024, time.January, 9, 23, 30, 0, 0, loc)
	assert.Equal(t, "2024-01-09", Today(now))
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "2024-1-05", "2024/01/05", "2024-02-30", "2024-13-01", "20240105", "2024-01-05T00:00"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidDate), in)

		var ide *InvalidDateError
		require.True(t, errors.As(err, &ide))
		assert.Equal(t, in, ide.Value)
	}
}

func TestAddDays(t *testing.T) {
	tests := []struct {
		date string
		n    int
		want string
	}{
		{"2024-01-01", 1, "2024-01-02"},
		{"2024-01-31", 1, "2024-02-01"},
		{"2024-02-28", 1, "2024-02-29"},
		{"2023-02-28", 1, "2023-03-01"},
		{"2024-12-31", 1, "2025-01-01"},
		{"2024-03-01", -1, "2024-02-29"},
		{"2024-03-09", 14, "2024-03-23"},
		{"2024-01-01", 0, "2024-01-01"},
	}
	for _, tt := range tests {
		got, err := AddDays(tt.date, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s%+d", tt.date, tt.n)
	}

	_, err := AddDays("nope", 1)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestAddMonths_ClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		date string
		n    int
		want string
	}{
		{"2024-01-15", 1, "2024-02-15"},
		{"2024-01-31", 1, "2024-02-29"},
		{"2023-01-31", 1, "2023-02-28"},
		{"2024-01-31", 2, "2024-03-31"},
		{"2024-01-31", 3, "2024-04-30"},
		{"2024-11-30", 3, "2025-02-28"},
		{"2024-03-31", -1, "2024-02-29"},
	}
	for _, tt := range tests {
		got, err := AddMonths(tt.date, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s + %d months", tt.date, tt.n)
	}
}

func TestAddYears_LeapDay(t *testing.T) {
	got, err := AddYears("2024-02-29", 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", got)

	got, err = AddYears("2024-02-29", 4)
	require.NoError(t, err)
	assert.Equal(t, "2028-02-29", got)
}

func TestDiffDays(t *testing.T) {
	n, err := DiffDays("2024-01-01", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	n, err = DiffDays("2024-03-01", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, -60, n)

	// Spans the US spring-forward weekend.
	n, err = DiffDays("2024-03-09", "2024-03-11")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = DiffDays("2024-01-01", "x")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, 28, DaysInMonth(2100, time.February))
	assert.Equal(t, 31, DaysInMonth(2024, time.December))
}
