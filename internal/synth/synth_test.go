package synth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertsync/alertsync/internal/inventory"
)

var usersRoute = inventory.Route{Predicate: "/users/{id}", Handler: "com.app.UserController#get"}

const usersAlertJSON = `{
    "name": "Alert for /users/{id}",
    "type": "query alert",
    "query": "avg(last_5m):avg:http.endpoint.latency{endpoint=/users/{id}} > 500",
    "message": "High latency detected for /users/{id}",
    "priority": "normal"
}
`

func TestFileKey(t *testing.T) {
	tests := []struct {
		handler string
		want    string
	}{
		{"com.foo.BarController#list", "com_foo_BarController"},
		{"", ""},
		{"com.app.UserController#get(Long)", "com_app_UserController"},
		{"NoPackage#run", "NoPackage"},
		{"com.app.Plain", "com_app_Plain"},
		{"a.b#c#d", "a_b"},
		{"#onlyMethod", ""},
	}
	for _, tc := range tests {
		t.Run(tc.handler, func(t *testing.T) {
			assert.Equal(t, tc.want, FileKey(tc.handler))
		})
	}
}

func TestMarshal_ExactBytes(t *testing.T) {
	data, err := Marshal(NewAlert(usersRoute))
	require.NoError(t, err)
	assert.Equal(t, usersAlertJSON, string(data))
}

func TestMarshal_Deterministic(t *testing.T) {
	routes := []inventory.Route{
		usersRoute,
		{Predicate: `{GET [/search], params [q], produces [application/json]}`, Handler: "x.Y#z"},
		{Predicate: `<&> "quoted" ünïcode`, Handler: "h#m"},
		{},
	}
	for _, r := range routes {
		first, err := Marshal(NewAlert(r))
		require.NoError(t, err)
		second, err := Marshal(NewAlert(r))
		require.NoError(t, err)
		assert.Equal(t, first, second, "predicate %q", r.Predicate)

		var decoded Alert
		require.NoError(t, json.Unmarshal(first, &decoded))
		assert.Equal(t, NewAlert(r), decoded)
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	data, err := Marshal(NewAlert(inventory.Route{Predicate: "/a&b"}))
	require.NoError(t, err)
	assert.Contains(t, string(data), "} > 500")
	assert.Contains(t, string(data), "/a&b")
	assert.NotContains(t, string(data), `\u003e`)
	assert.NotContains(t, string(data), `\u0026`)
}

func TestNewPlan_CollisionLastWins(t *testing.T) {
	first := inventory.Route{Predicate: "/users", Handler: "com.app.UserController#list"}
	second := inventory.Route{Predicate: "/users/{id}", Handler: "com.app.UserController#get"}
	other := inventory.Route{Predicate: "/orders", Handler: "com.app.OrderController#list"}

	p := NewPlan([]inventory.Route{first, other, second})

	require.Len(t, p.Entries, 2)
	assert.Equal(t, "com_app_UserController", p.Entries[0].Key)
	assert.Equal(t, second, p.Entries[0].Route)
	assert.Equal(t, "com_app_OrderController", p.Entries[1].Key)

	require.Len(t, p.Collisions, 1)
	assert.Equal(t, "com_app_UserController", p.Collisions[0].Key)
	assert.Equal(t, []inventory.Route{first, second}, p.Collisions[0].Routes)

	assert.NoError(t, p.Check(true))
	assert.ErrorIs(t, p.Check(false), ErrCollision)
}

func TestNewPlan_SkipsKeysWithSeparators(t *testing.T) {
	p := NewPlan([]inventory.Route{
		{Predicate: "/webjars/**", Handler: "ResourceHttpRequestHandler [classpath [META-INF/resources/webjars/]]"},
		usersRoute,
	})
	require.Len(t, p.Entries, 1)
	require.Len(t, p.Skipped, 1)
	assert.Equal(t, "key contains a path separator", p.Skipped[0].Reason)
	assert.NoError(t, p.Check(false))
}

func TestWriter_EndToEnd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "alerts")
	w := NewWriter(dir)

	res, err := w.Write(NewPlan([]inventory.Route{usersRoute}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []string{"com_app_UserController.json"}, listDir(t, dir))

	data, err := os.ReadFile(filepath.Join(dir, "com_app_UserController.json"))
	require.NoError(t, err)

	var a Alert
	require.NoError(t, json.Unmarshal(data, &a))
	assert.Equal(t, "Alert for /users/{id}", a.Name)
	assert.Contains(t, a.Query, "endpoint=/users/{id}")
	assert.Equal(t, "normal", a.Priority)
	assert.Equal(t, "query alert", a.Kind)
}

func TestWriter_IdempotentRewrite(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	routes := []inventory.Route{
		usersRoute,
		{Predicate: "/orders", Handler: "com.app.OrderController#list"},
	}

	_, err := w.Write(NewPlan(routes))
	require.NoError(t, err)
	before := snapshotDir(t, dir)

	res, err := w.Write(NewPlan(routes))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Unchanged)
	assert.Zero(t, res.Created)
	assert.Zero(t, res.Updated)
	assert.Equal(t, before, snapshotDir(t, dir))
}

func TestWriter_CollisionWritesSecondRoute(t *testing.T) {
	dir := t.TempDir()
	second := inventory.Route{Predicate: "/users/{id}/roles", Handler: "com.app.UserController#roles"}

	res, err := NewWriter(dir).Write(NewPlan([]inventory.Route{usersRoute, second}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	require.Equal(t, []string{"com_app_UserController.json"}, listDir(t, dir))

	data, err := os.ReadFile(filepath.Join(dir, "com_app_UserController.json"))
	require.NoError(t, err)
	var a Alert
	require.NoError(t, json.Unmarshal(data, &a))
	assert.Equal(t, "Alert for /users/{id}/roles", a.Name)
}

func TestWriter_EmptyPlanRetainsOrphans(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	_, err := w.Write(NewPlan([]inventory.Route{usersRoute}))
	require.NoError(t, err)

	res, err := w.Write(NewPlan(nil))
	require.NoError(t, err)
	assert.Zero(t, res.Written)
	assert.Equal(t, []string{"com_app_UserController.json"}, listDir(t, dir))
}

func TestWriter_EmptyPlanFreshDirIsEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "alerts")
	res, err := NewWriter(dir).Write(NewPlan(nil))
	require.NoError(t, err)
	assert.Zero(t, res.Written)
	assert.Empty(t, listDir(t, dir))
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"live.json", "gone.json", "manual_override.json", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	removed, err := Prune(dir, map[string]struct{}{"live": {}}, []string{"manual_*.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.json"}, removed)
	assert.Equal(t, []string{"README.md", "live.json", "manual_override.json", "nested.json"}, listDir(t, dir))
}

func TestPrune_MissingDir(t *testing.T) {
	removed, err := Prune(filepath.Join(t.TempDir(), "absent"), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPrune_InvalidPattern(t *testing.T) {
	_, err := Prune(t.TempDir(), nil, []string{"[unclosed"})
	assert.Error(t, err)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func snapshotDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, name := range listDir(t, dir) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		out[name] = string(data)
	}
	return out
}
