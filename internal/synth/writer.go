package synth

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// WriteResult summarizes one Write call.
type WriteResult struct {
	Dir string

	// Written equals the number of distinct keys in the plan.
	Written   int
	Created   int
	Updated   int
	Unchanged int

	// Files are the written file names, in plan order.
	Files []string
}

// Writer materializes a Plan as files in one directory.
type Writer struct {
	dir string
}

// NewWriter returns a Writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write creates the output directory if needed and writes one file per plan
// entry, overwriting whatever is there. Files of keys absent from the plan
// are left alone. A filesystem error aborts the write; files already written
// stay in place.
func (w *Writer) Write(p *Plan) (*WriteResult, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("synth: create output dir: %w", err)
	}

	res := &WriteResult{Dir: w.dir, Files: make([]string, 0, len(p.Entries))}
	for _, e := range p.Entries {
		data, err := Marshal(e.Alert)
		if err != nil {
			return res, err
		}

		name := FileName(e.Key)
		path := filepath.Join(w.dir, name)

		prev, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			res.Created++
		case err != nil:
			return res, fmt.Errorf("synth: read %s: %w", path, err)
		case bytes.Equal(prev, data):
			res.Unchanged++
		default:
			res.Updated++
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			return res, fmt.Errorf("synth: write %s: %w", path, err)
		}
		res.Written++
		res.Files = append(res.Files, name)
		slog.Debug("synth: alert written", "file", path, "predicate", e.Route.Predicate)
	}

	for _, c := range p.Collisions {
		slog.Warn("synth: handlers collide on one alert file, last one wins",
			"key", c.Key, "routes", len(c.Routes), "winner", c.Routes[len(c.Routes)-1].Handler)
	}
	for _, s := range p.Skipped {
		slog.Warn("synth: route skipped", "handler", s.Route.Handler, "reason", s.Reason)
	}

	slog.Info("synth: alert files written",
		"dir", w.dir,
		"written", res.Written,
		"created", res.Created,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
	)
	return res, nil
}
