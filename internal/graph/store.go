package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vk/windrose/internal/config"
)

// Failure modes of the coordinate stores. They signal specification bugs, so
// lookups never degrade into silent empty results.
var (
	ErrDuplicateKey = errors.New("coordinates already occupied")
	ErrAxisMismatch = errors.New("coordinate axes mismatch")
	ErrUnknownName  = errors.New("unknown item name")
)

// Array indexes the items sharing one name by their coordinates. The axis
// set is discovered from the first item inserted and enforced afterwards;
// the values ever seen on each axis are tracked for "all" policy fan-out.
type Array[T Item] struct {
	name  string
	dims  []string
	axes  map[string][]Value
	seen  map[string]map[string]struct{}
	items map[string]T
	order []string
}

// NewArray creates an empty array for items of the given name.
func NewArray[T Item](name string) *Array[T] {
	return &Array[T]{
		name:  name,
		axes:  make(map[string][]Value),
		seen:  make(map[string]map[string]struct{}),
		items: make(map[string]T),
	}
}

// Add inserts an item at the given coordinates. The first insertion fixes
// the axis set; later insertions must use exactly the same axes and a free
// coordinate tuple.
func (a *Array[T]) Add(coords Coordinates, item T) error {
	names := axisNames(coords)
	if a.dims == nil {
		a.dims = axisOrder(names)
		for _, dim := range a.dims {
			a.seen[dim] = make(map[string]struct{})
		}
	} else if err := a.checkDims(names); err != nil {
		return err
	}
	key := coordKey(a.dims, coords)
	if _, taken := a.items[key]; taken {
		return fmt.Errorf("array %s at %s: %w", a.name, Label(a.name, coords), ErrDuplicateKey)
	}
	for _, dim := range a.dims {
		v := coords[dim]
		if _, ok := a.seen[dim][v.String()]; !ok {
			a.seen[dim][v.String()] = struct{}{}
			a.axes[dim] = append(a.axes[dim], v)
		}
	}
	a.items[key] = item
	a.order = append(a.order, key)
	return nil
}

// Get looks an item up by coordinates. Every axis of the array must be
// present; extra axes of the reference are ignored, so a task's coordinates
// can address a data item spanning fewer axes.
func (a *Array[T]) Get(coords Coordinates) (T, error) {
	var zero T
	for _, dim := range a.dims {
		if _, ok := coords[dim]; !ok {
			return zero, fmt.Errorf("array %s: missing axis %q (have %v, need %v): %w",
				a.name, dim, axisOrder(axisNames(coords)), a.dims, ErrAxisMismatch)
		}
	}
	item, ok := a.items[coordKey(a.dims, coords)]
	if !ok {
		return zero, fmt.Errorf("array %s: no item at %s: %w", a.name, Label(a.name, coords), ErrUnknownName)
	}
	return item, nil
}

// IterTarget resolves a target specification into the ordered items it
// addresses relative to the reference coordinates: the Cartesian product,
// axis by axis, of the per-axis candidates (date selector for the date axis,
// single/all policy for the others).
func (a *Array[T]) IterTarget(spec *config.TargetSpec, ref Coordinates) ([]T, error) {
	hasDate := slices.Contains(a.dims, DateAxis)
	if !hasDate && (len(spec.Lags) > 0 || len(spec.Dates) > 0) {
		return nil, fmt.Errorf("%s has no date axis and cannot be targeted by dates or lags", a.name)
	}
	refDate, refDated := ref[DateAxis]
	if hasDate && !refDated && len(spec.Dates) == 0 {
		return nil, fmt.Errorf("%s has a date axis and needs a reference date or explicit target dates", a.name)
	}

	candidates := make([][]Value, len(a.dims))
	for i, dim := range a.dims {
		values, err := a.targetValues(spec, dim, refDate, ref)
		if err != nil {
			return nil, err
		}
		candidates[i] = values
	}

	var out []T
	for coords := range product(a.dims, candidates) {
		item, ok := a.items[coordKey(a.dims, coords)]
		if !ok {
			return nil, fmt.Errorf("target %s: no item at %s: %w", spec.Name, Label(a.name, coords), ErrUnknownName)
		}
		out = append(out, item)
	}
	return out, nil
}

// targetValues resolves the candidate values of one axis: the date selector
// on the date axis, the single/all parameter policy elsewhere.
func (a *Array[T]) targetValues(spec *config.TargetSpec, dim string, refDate Value, ref Coordinates) ([]Value, error) {
	if dim == DateAxis {
		switch {
		case len(spec.Lags) > 0:
			values := make([]Value, len(spec.Lags))
			for i, lag := range spec.Lags {
				values[i] = DateValue(lag.AddTo(refDate.Date()))
			}
			return values, nil
		case len(spec.Dates) > 0:
			values := make([]Value, len(spec.Dates))
			for i, date := range spec.Dates {
				values[i] = DateValue(date)
			}
			return values, nil
		default:
			return []Value{refDate}, nil
		}
	}
	if spec.Policy(dim) == config.PolicySingle {
		v, ok := ref[dim]
		if !ok {
			return nil, fmt.Errorf("target %s: reference has no value on axis %q required by the single policy: %w",
				spec.Name, dim, ErrAxisMismatch)
		}
		return []Value{v}, nil
	}
	return a.axes[dim], nil
}

// All returns the items in insertion order.
func (a *Array[T]) All() []T {
	out := make([]T, 0, len(a.items))
	for _, key := range a.order {
		out = append(out, a.items[key])
	}
	return out
}

func (a *Array[T]) checkDims(names []string) error {
	got := axisOrder(names)
	if !slices.Equal(a.dims, got) {
		return fmt.Errorf("array %s: coordinate axes %v don't match established axes %v: %w",
			a.name, got, a.dims, ErrAxisMismatch)
	}
	return nil
}

// product iterates the Cartesian product of the candidate values along dims.
func product(dims []string, candidates [][]Value) func(yield func(Coordinates) bool) {
	return func(yield func(Coordinates) bool) {
		if len(dims) == 0 {
			yield(Coordinates{})
			return
		}
		idx := make([]int, len(dims))
		for {
			coords := make(Coordinates, len(dims))
			for i, dim := range dims {
				if len(candidates[i]) == 0 {
					return
				}
				coords[dim] = candidates[i][idx[i]]
			}
			if !yield(coords) {
				return
			}
			i := len(dims) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(candidates[i]) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// Store is a name-keyed collection of Arrays holding every graph item of one
// kind.
type Store[T Item] struct {
	arrays map[string]*Array[T]
	order  []string
}

// NewStore creates an empty store.
func NewStore[T Item]() *Store[T] {
	return &Store[T]{arrays: make(map[string]*Array[T])}
}

// Add inserts an item, dispatching on its name.
func (s *Store[T]) Add(item T) error {
	name := item.ItemName()
	arr, ok := s.arrays[name]
	if !ok {
		arr = NewArray[T](name)
		s.arrays[name] = arr
		s.order = append(s.order, name)
	}
	return arr.Add(item.ItemCoordinates(), item)
}

// Get looks up one item by name and coordinates.
func (s *Store[T]) Get(name string, coords Coordinates) (T, error) {
	arr, ok := s.arrays[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("store: %q: %w", name, ErrUnknownName)
	}
	return arr.Get(coords)
}

// IterTarget applies the when-condition gate and delegates to the named
// array. A gated-out reference yields no items and no error; an unknown name
// or mismatched axes is a configuration error.
func (s *Store[T]) IterTarget(spec *config.TargetSpec, ref Coordinates) ([]T, error) {
	refDate, refDated := ref[DateAxis]
	if !refDated {
		if !spec.When.IsAlways() {
			return nil, fmt.Errorf("target %s: cannot use a when condition in a one-off cycle", spec.Name)
		}
	} else if !spec.When.IsActive(refDate.Date()) {
		return nil, nil
	}
	arr, ok := s.arrays[spec.Name]
	if !ok {
		return nil, fmt.Errorf("target %s: %w", spec.Name, ErrUnknownName)
	}
	return arr.IterTarget(spec, ref)
}

// All returns every stored item, ordered by name insertion then coordinate
// insertion.
func (s *Store[T]) All() []T {
	var out []T
	for _, name := range s.order {
		out = append(out, s.arrays[name].All()...)
	}
	return out
}
