package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alertsync/alertsync/internal/inventory"
)

// Fixed parts of every alert definition.
const (
	KindQueryAlert  = "query alert"
	DefaultPriority = "normal"

	queryTemplate   = "avg(last_5m):avg:http.endpoint.latency{endpoint=%s} > 500"
	nameTemplate    = "Alert for %s"
	messageTemplate = "High latency detected for %s"

	fileExt = ".json"
)

// Alert is one latency alert definition. Field order is the on-disk key order.
type Alert struct {
	Name     string `json:"name"`
	Kind     string `json:"type"`
	Query    string `json:"query"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// NewAlert derives the alert for a route. It depends on the predicate only.
func NewAlert(r inventory.Route) Alert {
	return Alert{
		Name:     fmt.Sprintf(nameTemplate, r.Predicate),
		Kind:     KindQueryAlert,
		Query:    fmt.Sprintf(queryTemplate, r.Predicate),
		Message:  fmt.Sprintf(messageTemplate, r.Predicate),
		Priority: DefaultPriority,
	}
}

// FileKey derives the file name stem from a handler identifier: the part
// before the first '#', with every '.' replaced by '_'.
func FileKey(handler string) string {
	class, _, _ := strings.Cut(handler, "#")
	return strings.ReplaceAll(class, ".", "_")
}

// FileName returns the alert file name for key.
func FileName(key string) string {
	return key + fileExt
}

// Marshal renders a as 4-space indented JSON with a trailing newline.
// HTML escaping is off so the query's '>' is written literally.
func Marshal(a Alert) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("synth: encode alert %q: %w", a.Name, err)
	}
	return buf.Bytes(), nil
}
