// Package synth turns discovered routes into latency alert definitions and
// writes them as one JSON file per handler class.
//
// An Alert is a pure function of its route's predicate, and Marshal always
// produces the same bytes for the same Alert, so rewriting an unchanged
// inventory leaves the directory byte-identical. The file name comes from
// FileKey(handler). Routes whose keys collide are resolved last-write-wins
// by NewPlan and reported in Plan.Collisions.
//
// Files of routes that disappear are kept unless Prune is called.
package synth
