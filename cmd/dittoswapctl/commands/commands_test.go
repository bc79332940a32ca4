package commands

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/backing/memory"
	"github.com/marmos91/dittoswap/pkg/cache"
	"github.com/marmos91/dittoswap/pkg/controlplane/api"
)

const testPageSize = 512

type harness struct {
	t        *testing.T
	url      string
	contexts string
	cache    *cache.Cache
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	disp := backing.NewDispatcher(memory.New(memory.Config{PageSize: testPageSize}), backing.DispatcherOptions{})
	c, err := cache.New(disp, &cache.Config{PageSize: testPageSize, GracePeriod: time.Hour, PrefetchCapacity: 8})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = disp.Close()
	})

	srv := httptest.NewServer(api.NewRouter(api.Dependencies{
		Cache:      c,
		Device:     disp,
		DeviceKind: "memory",
		Instance:   "test-instance",
	}, nil))
	t.Cleanup(srv.Close)

	return &harness{
		t:        t,
		url:      srv.URL,
		contexts: filepath.Join(t.TempDir(), "contexts.yaml"),
		cache:    c,
	}
}

// run executes the CLI against the test server with the given output
// format. stdin feeds commands that read a page.
func (h *harness) run(format string, stdin []byte, args ...string) (string, error) {
	h.t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(bytes.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--server", h.url, "--contexts-file", h.contexts, "-o", format, "--no-color"}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("json", nil, "status")
	require.NoError(t, err)

	var status ServerStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, "test-instance", status.Instance)
	assert.Equal(t, "memory", status.Device)
	assert.Equal(t, testPageSize, status.PageSize)
	assert.EqualValues(t, 3600, status.GraceSec)

	out, err = h.run("table", nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "DittoSwap Daemon Status")
	assert.Contains(t, out, "3600s (1h0m0s)")
}

func TestStatus_Unreachable(t *testing.T) {
	h := newHarness(t)
	h.url = "http://127.0.0.1:1"

	out, err := h.run("json", nil, "status")
	require.NoError(t, err)

	var status ServerStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Healthy)
	assert.Equal(t, "unreachable", status.Status)
	assert.NotEmpty(t, status.Error)
}

func TestGrace(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("table", nil, "grace", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "Grace period set to 90s")
	assert.Equal(t, 90*time.Second, h.cache.GracePeriod())

	out, err = h.run("table", nil, "grace", "--", "-5")
	require.NoError(t, err)
	assert.Contains(t, out, "Negative value ignored")
	assert.Equal(t, 90*time.Second, h.cache.GracePeriod())

	out, err = h.run("json", nil, "grace")
	require.NoError(t, err)
	assert.JSONEq(t, `{"seconds":90}`, out)

	_, err = h.run("table", nil, "grace", "1m")
	assert.ErrorContains(t, err, "whole seconds")
}

func TestRegionsAndPages(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("table", nil, "regions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No regions initialized")

	_, err = h.run("table", nil, "regions", "init", "3")
	require.NoError(t, err)
	assert.True(t, h.cache.Initialized(3))

	_, err = h.run("table", nil, "regions", "init", "32")
	assert.ErrorContains(t, err, "invalid region")

	page := bytes.Repeat([]byte{0x5A}, testPageSize)
	_, err = h.run("table", page, "page", "store", "4", "7")
	assert.ErrorContains(t, err, "dittoswapctl regions init 4")

	_, err = h.run("table", page[:10], "page", "store", "3", "7")
	assert.ErrorContains(t, err, "dittoswapctl status")

	_, err = h.run("table", page, "page", "store", "3", "7")
	require.NoError(t, err)

	out, err = h.run("json", nil, "stats")
	require.NoError(t, err)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	// Rejected stores are counted too: region 4 and the short page.
	assert.EqualValues(t, 3, stats.Stores)
	assert.EqualValues(t, 1, stats.InMemoryPages)

	out, err = h.run("table", nil, "page", "load", "3", "7")
	require.NoError(t, err)
	assert.Equal(t, string(page), out)

	// The load consumed the page, so this one misses and reads a slot
	// that was never written back.
	out, err = h.run("table", nil, "page", "load", "3", "7")
	require.NoError(t, err)
	assert.Equal(t, string(make([]byte, testPageSize)), out)

	out, err = h.run("json", nil, "promoted")
	require.NoError(t, err)
	assert.JSONEq(t, `{"counter":"nr_promoted_page","pages":2}`, out)

	out, err = h.run("json", nil, "regions", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `{"regions":[3]}`, out)

	_, err = h.run("table", nil, "regions", "invalidate", "3", "--yes")
	require.NoError(t, err)
	assert.False(t, h.cache.Initialized(3))
}

func TestStats_Table(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.cache.InitRegion(0))

	out, err := h.run("table", nil, "stats", "--non-zero=false", "--gauges=false", "--reset=false")
	require.NoError(t, err)
	assert.Contains(t, out, "nr_store")
	assert.Contains(t, out, "len_quarantine_list")

	out, err = h.run("table", nil, "stats", "--non-zero", "--gauges=false", "--reset=false")
	require.NoError(t, err)
	assert.Contains(t, out, "nr_init")
	assert.NotContains(t, out, "nr_store")

	out, err = h.run("table", nil, "stats", "--non-zero=false", "--gauges=false", "--reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Event counters reset")
	assert.Zero(t, h.cache.Stats().Inits)
}

func TestPrefetch(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("json", nil, "prefetch", "4")
	require.NoError(t, err)
	assert.Contains(t, out, `"requested": 4`)

	_, err = h.run("json", nil, "prefetch", "many")
	assert.ErrorContains(t, err, "invalid page count")
}

func TestContextLifecycle(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("table", nil, "context", "add", "local", "--use=false")
	require.NoError(t, err)
	assert.Contains(t, out, `Context "local" saved and selected`)

	out, err = h.run("table", nil, "context", "add", "other", "--use=false")
	require.NoError(t, err)
	assert.NotContains(t, out, "selected")

	out, err = h.run("table", nil, "context", "current")
	require.NoError(t, err)
	assert.Equal(t, "local", strings.TrimSpace(out))

	_, err = h.run("table", nil, "context", "use", "other")
	require.NoError(t, err)

	out, err = h.run("json", nil, "context", "list")
	require.NoError(t, err)
	var rows []contextRowView
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "local", rows[0].Name)
	assert.False(t, rows[0].Current)
	assert.True(t, rows[1].Current)
	assert.Equal(t, h.url, rows[1].ServerURL)

	_, err = h.run("table", nil, "context", "remove", "other", "--yes")
	require.NoError(t, err)
	_, err = h.run("table", nil, "context", "current")
	assert.Error(t, err)

	_, err = h.run("table", nil, "context", "use", "missing")
	assert.ErrorContains(t, err, "context not found")
}

type contextRowView struct {
	Name      string `json:"name"`
	Current   bool   `json:"current"`
	ServerURL string `json:"server_url"`
}
