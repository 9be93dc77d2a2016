// Package graph unrolls a validated workflow configuration into the concrete
// dependency graph the controller drives: Data and Task instances addressed
// by name plus a tuple of coordinate axis values (declared parameters and the
// cycle date), held in coordinate-indexed stores, with derived parent/child
// links that define the scheduling order.
package graph
