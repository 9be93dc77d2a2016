package cycling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParsePeriod(t *testing.T) {
	t.Run("accepts common periods", func(t *testing.T) {
		for _, s := range []string{"P1Y", "P6M", "P2W", "P1D", "PT6H", "PT90M", "-P1M", "P1DT12H"} {
			_, err := ParsePeriod(s)
			assert.NoError(t, err, s)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParsePeriod("one month")
		assert.Error(t, err)
	})

	t.Run("rejects fractional calendar components", func(t *testing.T) {
		_, err := ParsePeriod("P0.5M")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fractional")
	})
}

func TestPeriodAddTo(t *testing.T) {
	t.Run("calendar components step by calendar", func(t *testing.T) {
		p := MustParsePeriod("P1M")
		assert.Equal(t, date("2026-02-01"), p.AddTo(date("2026-01-01")))
		// Jan 31 + 1 month normalizes the way time.AddDate does.
		assert.Equal(t, date("2026-03-03"), p.AddTo(date("2026-01-31")))
	})

	t.Run("clock components step exactly", func(t *testing.T) {
		p := MustParsePeriod("PT6H")
		got := p.AddTo(date("2026-01-01"))
		assert.Equal(t, date("2026-01-01").Add(6*time.Hour), got)
	})

	t.Run("negative periods step backwards", func(t *testing.T) {
		p := MustParsePeriod("-P1M")
		assert.Equal(t, date("2025-12-01"), p.AddTo(date("2026-01-01")))
	})

	t.Run("mixed calendar and clock", func(t *testing.T) {
		p := MustParsePeriod("P1DT12H")
		assert.Equal(t, date("2026-01-02").Add(12*time.Hour), p.AddTo(date("2026-01-01")))
	})
}

func TestPeriodIsZero(t *testing.T) {
	assert.True(t, Period{}.IsZero())
	assert.True(t, MustParsePeriod("PT0S").IsZero())
	assert.False(t, MustParsePeriod("P1D").IsZero())
}

func TestOneOffPoints(t *testing.T) {
	points := OneOff{}.Points()
	require.Len(t, points, 1)
	assert.False(t, points[0].Dated)
	assert.Equal(t, "[]", points[0].String())
}

func TestDateCyclingPoints(t *testing.T) {
	t.Run("windows cover the range contiguously", func(t *testing.T) {
		c := DateCycling{
			Start:  date("2026-01-01"),
			Stop:   date("2026-04-01"),
			Period: MustParsePeriod("P1M"),
		}
		points := c.Points()
		require.Len(t, points, 3)
		assert.Equal(t, c.Start, points[0].Begin)
		assert.Equal(t, c.Stop, points[len(points)-1].End)
		for i, p := range points {
			assert.True(t, p.Dated)
			assert.Equal(t, c.Start, p.Start)
			assert.Equal(t, c.Stop, p.Stop)
			assert.True(t, p.Begin.Before(p.End), "window %d must not be empty", i)
			if i > 0 {
				assert.Equal(t, points[i-1].End, p.Begin, "window %d must start where %d ended", i, i-1)
			}
		}
	})

	t.Run("final window is clamped to stop", func(t *testing.T) {
		c := DateCycling{
			Start:  date("2026-01-01"),
			Stop:   date("2026-01-10"),
			Period: MustParsePeriod("P1W"),
		}
		points := c.Points()
		require.Len(t, points, 2)
		assert.Equal(t, date("2026-01-08"), points[1].Begin)
		assert.Equal(t, date("2026-01-10"), points[1].End)
	})

	t.Run("range shorter than one period yields one point", func(t *testing.T) {
		c := DateCycling{
			Start:  date("2026-01-01"),
			Stop:   date("2026-01-02"),
			Period: MustParsePeriod("P1M"),
		}
		points := c.Points()
		require.Len(t, points, 1)
		assert.Equal(t, c.Start, points[0].Begin)
		assert.Equal(t, c.Stop, points[0].End)
	})

	t.Run("empty range yields nothing", func(t *testing.T) {
		c := DateCycling{
			Start:  date("2026-01-01"),
			Stop:   date("2026-01-01"),
			Period: MustParsePeriod("P1D"),
		}
		assert.Empty(t, c.Points())
	})
}
