package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alertsync/alertsync/internal/config"
)

// maxBodyBytes caps how much of a mappings response is read.
const maxBodyBytes = 32 << 20

// ErrMalformed marks a 200 response whose body does not have the mappings
// document shape. It is fatal for a run.
var ErrMalformed = errors.New("malformed mappings document")

// Route is one discovered HTTP route.
type Route struct {
	// Predicate is the route's matching condition, e.g.
	// "{GET [/users/{id}], produces [application/json]}".
	Predicate string

	// Handler names the code serving the route, e.g.
	// "com.app.UserController#get(Long)".
	Handler string
}

// Inventory is the outcome of one fetch.
type Inventory struct {
	URL        string
	FetchedAt  time.Time
	Routes     []Route
	Attempts   int
	StatusCode int

	// Err is non-nil when the endpoint could not be read (connectivity or a
	// non-200 status). Routes is empty in that case and the run carries on.
	Err error
}

// Degraded reports whether the fetch failed and the inventory is empty for
// that reason rather than because the service exposes no routes.
func (inv *Inventory) Degraded() bool {
	return inv.Err != nil
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Fetcher reads the route inventory from an actuator mappings endpoint.
type Fetcher struct {
	cfg        config.InventoryConfig
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// New returns a Fetcher for cfg. It builds the HTTP client once and reuses
// it across Fetch calls.
func New(cfg config.InventoryConfig) (*Fetcher, error) {
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("inventory: build http client: %w", err)
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.InitialBackoff
			b.MaxInterval = cfg.MaxBackoff
			b.MaxElapsedTime = 0
			return b
		},
	}, nil
}

// Fetch retrieves and decodes the route list.
//
// Connectivity failures and non-200 statuses never produce an error: the
// returned Inventory has no routes and Err set. Transient failures (network,
// 429, 5xx) are retried up to MaxAttempts first. Only a malformed 200 body
// returns an error, wrapping ErrMalformed.
func (f *Fetcher) Fetch(ctx context.Context) (*Inventory, error) {
	inv := &Inventory{URL: f.cfg.URL}

	var body []byte
	op := func() error {
		inv.Attempts++
		b, code, err := f.get(ctx)
		inv.StatusCode = code
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if code != http.StatusOK {
			serr := &StatusError{Code: code}
			if retryable(code) {
				return serr
			}
			return backoff.Permanent(serr)
		}
		body = b
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(f.newBackOff(), uint64(f.cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		slog.Warn("inventory: fetch attempt failed, will retry",
			"url", f.cfg.URL, "attempt", inv.Attempts, "err", err, "retry_in", wait)
	})
	inv.FetchedAt = time.Now().UTC()

	if err != nil {
		inv.Err = fmt.Errorf("inventory: fetch %s: %w", f.cfg.URL, err)
		slog.Warn("inventory: endpoint unavailable, continuing with empty inventory",
			"url", f.cfg.URL, "attempts", inv.Attempts, "err", err)
		return inv, nil
	}

	routes, err := Decode(body, f.cfg.Context, f.cfg.Servlet)
	if err != nil {
		return nil, fmt.Errorf("inventory: %s: %w", f.cfg.URL, err)
	}
	inv.Routes = routes
	slog.Info("inventory: routes discovered", "url", f.cfg.URL, "count", len(routes))
	return inv, nil
}

// get performs one GET and returns the body for a 200 response.
func (f *Fetcher) get(ctx context.Context) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

type mappingsDocument struct {
	Contexts map[string]*contextDocument `json:"contexts"`
}

type contextDocument struct {
	Mappings *struct {
		DispatcherServlets map[string][]routeEntry `json:"dispatcherServlets"`
	} `json:"mappings"`
}

type routeEntry struct {
	Predicate string `json:"predicate"`
	Handler   string `json:"handler"`
}

// Decode extracts the route list at
// contexts.<contextName>.mappings.dispatcherServlets.<servlet>.
// Absent or null predicate/handler fields become empty strings; any other
// deviation from that shape wraps ErrMalformed.
func Decode(body []byte, contextName, servlet string) ([]Route, error) {
	var doc mappingsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ctxDoc, ok := doc.Contexts[contextName]
	if !ok || ctxDoc == nil {
		return nil, fmt.Errorf("%w: contexts.%s is missing", ErrMalformed, contextName)
	}
	if ctxDoc.Mappings == nil {
		return nil, fmt.Errorf("%w: contexts.%s.mappings is missing", ErrMalformed, contextName)
	}
	entries, ok := ctxDoc.Mappings.DispatcherServlets[servlet]
	if !ok || entries == nil {
		return nil, fmt.Errorf("%w: contexts.%s.mappings.dispatcherServlets.%s is missing",
			ErrMalformed, contextName, servlet)
	}

	routes := make([]Route, 0, len(entries))
	for _, e := range entries {
		routes = append(routes, Route{Predicate: e.Predicate, Handler: e.Handler})
	}
	return routes, nil
}
