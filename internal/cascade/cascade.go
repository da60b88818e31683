// Package cascade expands a primary update kind into the full set of kinds
// that must be marked dirty for one trigger transaction.
package cascade

import (
	"fmt"

	"plantmart/internal/update"
)

// Table maps a kind to the kinds that must also be marked dirty when it
// fires. Order matters: dependents are visited in the listed order.
type Table map[update.Kind][]update.Kind

// Resolver is an immutable, cycle-checked view of a Table.
type Resolver struct {
	table Table
}

// NewResolver validates the table and builds a resolver.
//
// It fails if the table references a kind outside the taxonomy or if any
// kind can (directly or transitively) cascade back to itself. Rejecting
// cycles here means Expand never has to worry about runaway growth from a
// bad config, and a broken table stops the process at startup instead of
// at the first trigger.
func NewResolver(table Table) (*Resolver, error) {
	cp := make(Table, len(table))
	for k, deps := range table {
		if !k.Valid() {
			return nil, fmt.Errorf("cascade table: unknown kind %q", k)
		}
		for _, d := range deps {
			if !d.Valid() {
				return nil, fmt.Errorf("cascade table: %s depends on unknown kind %q", k, d)
			}
		}
		cp[k] = append([]update.Kind(nil), deps...)
	}
	if cycle := findCycle(cp); cycle != nil {
		return nil, fmt.Errorf("cascade table: cycle %v", cycle)
	}
	return &Resolver{table: cp}, nil
}

// Expand returns kind followed by every kind reachable through the table,
// each at most once, in deterministic breadth-first order.
//
// The visited set makes Expand terminate even on a cyclic table; the only
// way to hold a Resolver with a cyclic table is to have bypassed
// NewResolver, but the guard is kept so the invariant does not depend on
// construction discipline.
func (r *Resolver) Expand(kind update.Kind) []update.Kind {
	visited := map[update.Kind]struct{}{kind: {}}
	out := []update.Kind{kind}

	stack := append([]update.Kind(nil), r.table[kind]...)
	for len(stack) > 0 {
		k := stack[0]
		stack = stack[1:]
		if _, seen := visited[k]; seen {
			continue
		}
		visited[k] = struct{}{}
		out = append(out, k)
		stack = append(stack, r.table[k]...)
	}
	return out
}

// Dependents returns the direct dependents of kind.
func (r *Resolver) Dependents(kind update.Kind) []update.Kind {
	return append([]update.Kind(nil), r.table[kind]...)
}

// findCycle runs a three-color DFS over the table. It returns one cycle
// path for the error message, or nil if the table is a DAG.
func findCycle(table Table) []update.Kind {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := map[update.Kind]int{}

	var path []update.Kind
	var visit func(k update.Kind) []update.Kind
	visit = func(k update.Kind) []update.Kind {
		color[k] = gray
		path = append(path, k)
		for _, d := range table[k] {
			switch color[d] {
			case gray:
				// Trim the path down to the cycle itself.
				for i, p := range path {
					if p == d {
						return append(append([]update.Kind(nil), path[i:]...), d)
					}
				}
				return []update.Kind{d, d}
			case white:
				if c := visit(d); c != nil {
					return c
				}
			}
		}
		color[k] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, k := range update.Kinds() {
		if color[k] == white {
			if c := visit(k); c != nil {
				return c
			}
		}
	}
	return nil
}
