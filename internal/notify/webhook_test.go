package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/pipeline"
)

// recorder is an httptest handler that keeps every request body.
type recorder struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	b, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies = append(r.bodies, string(b))
	status := r.status
	r.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bodies) == 0 {
		return ""
	}
	return r.bodies[len(r.bodies)-1]
}

func result(status pipeline.Status) *pipeline.Result {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &pipeline.Result{
		RunID:        "run-42",
		StartedAt:    start,
		FinishedAt:   start.Add(1500 * time.Millisecond),
		Status:       status,
		Routes:       3,
		FilesWritten: 2,
		Committed:    true,
		CommitSHA:    "0123456789abcdef0123456789abcdef01234567",
	}
}

func webhook(t *testing.T, typ string, srv *httptest.Server) config.WebhookConfig {
	t.Helper()
	env := "ALERTSYNC_TEST_WEBHOOK_" + strings.ToUpper(typ)
	t.Setenv(env, srv.URL)
	return config.WebhookConfig{Type: typ, URLEnv: env}
}

func TestObserve_DefaultSkipsSuccess(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := New(config.NotifyConfig{Webhooks: []config.WebhookConfig{webhook(t, "http", srv)}})
	n.Observe(context.Background(), result(pipeline.StatusSuccess))
	if rec.count() != 0 {
		t.Fatalf("success run: got %d deliveries, want 0", rec.count())
	}

	n.Observe(context.Background(), result(pipeline.StatusDegraded))
	if rec.count() != 1 {
		t.Fatalf("degraded run: got %d deliveries, want 1", rec.count())
	}
}

func TestObserve_OnFilter(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := New(config.NotifyConfig{
		On:       []string{"success"},
		Webhooks: []config.WebhookConfig{webhook(t, "http", srv)},
	})
	n.Observe(context.Background(), result(pipeline.StatusFailed))
	n.Observe(context.Background(), result(pipeline.StatusSuccess))

	if rec.count() != 1 {
		t.Fatalf("got %d deliveries, want 1", rec.count())
	}
}

func TestObserve_HTTPPayload(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	res := result(pipeline.StatusPublishFailed)
	res.PublishErr = errors.New("push rejected")

	n := New(config.NotifyConfig{Webhooks: []config.WebhookConfig{webhook(t, "http", srv)}})
	n.Observe(context.Background(), res)

	var body struct {
		Run Report `json:"run"`
	}
	if err := json.Unmarshal([]byte(rec.last()), &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.Run.RunID != "run-42" {
		t.Errorf("run_id: got %q, want run-42", body.Run.RunID)
	}
	if body.Run.Status != "publish_failed" {
		t.Errorf("status: got %q, want publish_failed", body.Run.Status)
	}
	if body.Run.DurationMS != 1500 {
		t.Errorf("duration_ms: got %d, want 1500", body.Run.DurationMS)
	}
	if body.Run.Error != "push rejected" {
		t.Errorf("error: got %q, want push rejected", body.Run.Error)
	}
}

func TestObserve_SlackAndTeams(t *testing.T) {
	slack := &recorder{}
	slackSrv := httptest.NewServer(slack)
	defer slackSrv.Close()
	teams := &recorder{}
	teamsSrv := httptest.NewServer(teams)
	defer teamsSrv.Close()

	n := New(config.NotifyConfig{Webhooks: []config.WebhookConfig{
		webhook(t, "slack", slackSrv),
		webhook(t, "teams", teamsSrv),
	}})
	n.Observe(context.Background(), result(pipeline.StatusDegraded))

	var sl map[string]string
	if err := json.Unmarshal([]byte(slack.last()), &sl); err != nil {
		t.Fatalf("decode slack payload: %v", err)
	}
	if !strings.HasPrefix(sl["text"], "*[DEGRADED]*") {
		t.Errorf("slack text: got %q", sl["text"])
	}
	if !strings.Contains(sl["text"], "committed 0123456") {
		t.Errorf("slack text missing short sha: %q", sl["text"])
	}

	var tm map[string]interface{}
	if err := json.Unmarshal([]byte(teams.last()), &tm); err != nil {
		t.Fatalf("decode teams payload: %v", err)
	}
	if tm["@type"] != "MessageCard" {
		t.Errorf("@type: got %v, want MessageCard", tm["@type"])
	}
	if tm["themeColor"] != "FFAB40" {
		t.Errorf("themeColor: got %v, want FFAB40", tm["themeColor"])
	}
}

func TestObserve_FailuresDoNotPanic(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := New(config.NotifyConfig{Webhooks: []config.WebhookConfig{
		webhook(t, "http", srv),
		{Type: "http", URLEnv: "ALERTSYNC_TEST_UNSET_WEBHOOK"},
	}})
	n.Observe(context.Background(), result(pipeline.StatusFailed))

	if rec.count() != 1 {
		t.Fatalf("got %d deliveries, want 1", rec.count())
	}
}
