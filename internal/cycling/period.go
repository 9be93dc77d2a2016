package cycling

import (
	"fmt"
	"math"
	"time"

	"github.com/sosodev/duration"
)

// Period is an ISO-8601 duration (P1Y, P6M, PT6H, -P1D, ...) applied
// calendar-aware: year/month/week/day components step via AddDate so that
// stepping by P1M from Jan 31 lands on the calendar month boundary the way a
// scheduler operator expects, while the clock components are added as an
// exact time.Duration.
type Period struct {
	d   *duration.Duration
	raw string
}

// ParsePeriod parses an ISO-8601 duration string. Calendar components
// (years, months, weeks, days) must be whole numbers because they are
// applied via calendar arithmetic.
func ParsePeriod(s string) (Period, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
	}
	for name, v := range map[string]float64{
		"years": d.Years, "months": d.Months, "weeks": d.Weeks, "days": d.Days,
	} {
		if v != math.Trunc(v) {
			return Period{}, fmt.Errorf("invalid duration %q: fractional %s are not supported", s, name)
		}
	}
	return Period{d: d, raw: s}, nil
}

// MustParsePeriod is ParsePeriod that panics on error, for tests and
// compile-time-known constants.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// AddTo returns t shifted by the period, honoring a leading sign.
func (p Period) AddTo(t time.Time) time.Time {
	if p.d == nil {
		return t
	}
	sign := 1
	if p.d.Negative {
		sign = -1
	}
	shifted := t.AddDate(
		sign*int(p.d.Years),
		sign*int(p.d.Months),
		sign*(int(p.d.Weeks)*7+int(p.d.Days)),
	)
	clock := time.Duration(p.d.Hours*float64(time.Hour)) +
		time.Duration(p.d.Minutes*float64(time.Minute)) +
		time.Duration(p.d.Seconds*float64(time.Second))
	return shifted.Add(time.Duration(sign) * clock)
}

// IsZero reports whether the period shifts time at all.
func (p Period) IsZero() bool {
	return p.d == nil || (p.d.Years == 0 && p.d.Months == 0 && p.d.Weeks == 0 &&
		p.d.Days == 0 && p.d.Hours == 0 && p.d.Minutes == 0 && p.d.Seconds == 0)
}

func (p Period) String() string {
	return p.raw
}
