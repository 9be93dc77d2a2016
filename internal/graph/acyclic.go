package graph

import (
	"fmt"
	"strings"
)

// detectCycle validates that the linked task graph is acyclic using a DFS
// coloring walk over the child links. A reference chain that loops back onto
// itself would deadlock the scheduler window, so it is rejected at build
// time with the offending path spelled out.
func detectCycle(tasks []*Task) error {
	const (
		white = iota // unvisited
		gray         // on the current DFS path
		black        // fully explored
	)
	color := make(map[*Task]int, len(tasks))

	var visit func(t *Task, trail []string) error
	visit = func(t *Task, trail []string) error {
		color[t] = gray
		for _, child := range t.Children {
			switch color[child] {
			case gray:
				return fmt.Errorf("dependency cycle: %s", strings.Join(append(trail, child.Label()), " -> "))
			case white:
				if err := visit(child, append(trail, child.Label())); err != nil {
					return err
				}
			}
		}
		color[t] = black
		return nil
	}

	for _, t := range tasks {
		if color[t] == white {
			if err := visit(t, []string{t.Label()}); err != nil {
				return err
			}
		}
	}
	return nil
}
