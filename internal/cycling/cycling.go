// Package cycling expands a cycle's timing definition into the sequence of
// concrete cycle points the graph builder unrolls over. A cycle is either
// one-off (a single undated point) or periodic (successive [begin, end)
// windows stepping through a date range).
package cycling

import (
	"fmt"
	"time"
)

// Point is one concrete instantiation of a cycle's timing. The zero value is
// the undated one-off point.
type Point struct {
	// Dated is false for the synthetic point of a one-off cycle, in which
	// case all date fields are zero.
	Dated bool

	// Start and Stop delimit the full cycling range.
	Start, Stop time.Time

	// Begin and End delimit this window; End never exceeds Stop.
	Begin, End time.Time
}

func (p Point) String() string {
	if !p.Dated {
		return "[]"
	}
	return fmt.Sprintf("[%s -- %s]", p.Begin.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

// Cycling produces the cycle points a cycle definition expands into. Points
// is a pure function of the definition: calling it twice yields the same
// sequence, so iteration is restartable by construction.
type Cycling interface {
	Points() []Point
}

// OneOff is the cycling of an undated cycle: a single synthetic point.
type OneOff struct{}

// Points returns the single undated point.
func (OneOff) Points() []Point {
	return []Point{{}}
}

// DateCycling steps from Start to Stop by Period. The final window's end is
// clamped to Stop, so the range is always covered exactly.
type DateCycling struct {
	Start, Stop time.Time
	Period      Period
}

// Points returns every [begin, end) window of the range. It yields at least
// one point whenever Start < Stop and never yields an empty window.
func (c DateCycling) Points() []Point {
	var points []Point
	begin := c.Start
	for begin.Before(c.Stop) {
		end := c.Period.AddTo(begin)
		if !end.After(begin) {
			// Guarded at config validation; reaching this means the period
			// cannot advance the clock and iteration would never terminate.
			panic(fmt.Sprintf("cycling period %s does not advance %s", c.Period, begin.Format(time.RFC3339)))
		}
		if end.After(c.Stop) {
			end = c.Stop
		}
		points = append(points, Point{
			Dated: true,
			Start: c.Start,
			Stop:  c.Stop,
			Begin: begin,
			End:   end,
		})
		begin = end
	}
	return points
}
