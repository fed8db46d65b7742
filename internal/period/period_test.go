package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/tally/internal/clock"
)

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    Weekday
		wantErr bool
	}{
		{"Sunday", Sunday, false},
		{"sunday", Sunday, false},
		{"MONDAY", Monday, false},
		{" mon ", Monday, false},
		{"Tuesday", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, Sunday, WeekdayOrDefault("garbage"))
}

func TestStart_BoundaryScenario(t *testing.T) {
	// 2025-03-10 is a Monday.
	start, err := Start("2025-03-10", Sunday)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", start)

	start, err = Start("2025-03-10", Monday)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", start)

	start, err = Start("2025-03-09", Monday)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", start)
}

func TestStart_Idempotent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	for _, w := range []Weekday{Sunday, Monday} {
		for i := 0; i < 800; i++ {
			d := FormatKey(base.AddDate(0, 0, i))
			once, err := Start(d, w)
			require.NoError(t, err)
			twice, err := Start(once, w)
			require.NoError(t, err)
			assert.Equal(t, once, twice, "date %s weekday %s", d, w)

			st, _ := ParseKey(once)
			assert.Equal(t, w.time(), st.Weekday())
			assert.True(t, Contains(once, d), "%s not within its own period %s", d, once)
		}
	}
}

func TestStart_AcrossYearAndDST(t *testing.T) {
	start, err := Start("2025-01-01", Sunday)
	require.NoError(t, err)
	assert.Equal(t, "2024-12-29", start)

	// US DST change week; calendar arithmetic must not drift.
	start, err = Start("2025-03-12", Sunday)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", start)
}

func TestEnd(t *testing.T) {
	end, err := End("2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", end)

	end, err = End("2024-02-25")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", end, "leap year")

	_, err = End("not-a-date")
	assert.Error(t, err)
}

func TestDays(t *testing.T) {
	days, err := Days("2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2025-03-09", "2025-03-10", "2025-03-11", "2025-03-12",
		"2025-03-13", "2025-03-14", "2025-03-15",
	}, days)
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("2025-03-09", "2025-03-09"))
	assert.True(t, Contains("2025-03-09", "2025-03-15"))
	assert.False(t, Contains("2025-03-09", "2025-03-16"))
	assert.False(t, Contains("2025-03-09", "2025-03-08"))
	assert.False(t, Contains("bad", "2025-03-08"))
}

func TestCurrent_UsesClock(t *testing.T) {
	c, err := clock.NewFixedDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", Current(c, Sunday))
	assert.Equal(t, "2025-03-10", Current(c, Monday))

	c.SetFixed(time.Date(2025, 3, 15, 23, 59, 59, 0, time.Local))
	assert.Equal(t, "2025-03-09", Current(c, Sunday))
}
