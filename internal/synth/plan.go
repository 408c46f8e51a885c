package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alertsync/alertsync/internal/inventory"
)

// ErrCollision is returned by Plan.Check when two routes share a file key
// and the collision policy forbids overwriting.
var ErrCollision = errors.New("handler file key collision")

// Entry is one alert file to be written.
type Entry struct {
	Key   string
	Route inventory.Route
	Alert Alert
}

// Collision records every route that normalized to the same key, in the
// order they were processed. The last one is the one written.
type Collision struct {
	Key    string
	Routes []inventory.Route
}

// Skipped is a route whose key cannot be used as a file name.
type Skipped struct {
	Route  inventory.Route
	Reason string
}

// Plan is the deterministic set of alert files for one inventory.
type Plan struct {
	// Entries are unique by Key, ordered by first appearance.
	Entries    []Entry
	Collisions []Collision
	Skipped    []Skipped
}

// NewPlan groups routes by file key. For duplicate keys the last route wins,
// matching sequential overwrite semantics.
func NewPlan(routes []inventory.Route) *Plan {
	p := &Plan{}
	index := make(map[string]int, len(routes))
	seen := make(map[string][]inventory.Route)

	for _, r := range routes {
		key := FileKey(r.Handler)
		if reason := invalidKey(key); reason != "" {
			p.Skipped = append(p.Skipped, Skipped{Route: r, Reason: reason})
			continue
		}
		seen[key] = append(seen[key], r)

		e := Entry{Key: key, Route: r, Alert: NewAlert(r)}
		if i, ok := index[key]; ok {
			p.Entries[i] = e
			continue
		}
		index[key] = len(p.Entries)
		p.Entries = append(p.Entries, e)
	}

	for _, e := range p.Entries {
		if rs := seen[e.Key]; len(rs) > 1 {
			p.Collisions = append(p.Collisions, Collision{Key: e.Key, Routes: rs})
		}
	}
	return p
}

// Keys returns the set of planned file keys.
func (p *Plan) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(p.Entries))
	for _, e := range p.Entries {
		keys[e.Key] = struct{}{}
	}
	return keys
}

// Check returns ErrCollision when the plan has collisions and overwrite is
// not allowed.
func (p *Plan) Check(allowOverwrite bool) error {
	if allowOverwrite || len(p.Collisions) == 0 {
		return nil
	}
	c := p.Collisions[0]
	handlers := make([]string, 0, len(c.Routes))
	for _, r := range c.Routes {
		handlers = append(handlers, r.Handler)
	}
	return fmt.Errorf("%w: %d keys collide, first %q from %s",
		ErrCollision, len(p.Collisions), c.Key, strings.Join(handlers, ", "))
}

// invalidKey explains why key cannot name a file inside the output
// directory, or returns "" when it can.
func invalidKey(key string) string {
	switch {
	case strings.ContainsAny(key, `/\`):
		return "key contains a path separator"
	case strings.ContainsRune(key, 0):
		return "key contains a NUL byte"
	}
	return ""
}
