package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/logwatch/pkg/demo"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/export"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
)

const testToken = "cli-test-token"

// syncBuffer is written from stream goroutines while tests read it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startDemo(t *testing.T, opts demo.Options) (*demo.Server, string) {
	t.Helper()
	opts.Token = testToken
	srv := demo.NewServer(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.DisconnectAll()
		ts.Close()
	})

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LOGWATCH_API_KEY", testToken)
	return srv, ts.URL
}

func run(ctx context.Context, t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	root := NewRootCommand(BuildInfo{Version: "test"})
	root.SetOut(out)
	root.SetErr(&syncBuffer{})
	root.SetArgs(append([]string{
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--api-url", baseURL,
	}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	root := NewRootCommand(BuildInfo{Version: "1.2.0", Commit: "abc123"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "logwatch 1.2.0 (commit abc123)\n", out.String())
}

func TestStreamsCommands(t *testing.T) {
	srv, url := startDemo(t, demo.Options{})
	ctx := context.Background()

	out, err := run(ctx, t, url, "streams", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No log streams found")

	out, err = run(ctx, t, url, "streams", "create", "errors", "srv-demo-web", "--level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Created stream errors")

	streams := srv.Store().Streams()
	require.Len(t, streams, 1)
	id := streams[0].ID

	out, err = run(ctx, t, url, "streams", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "srv-demo-web")

	_, err = run(ctx, t, url, "streams", "update", id, "--name", "fatal-only", "--level", "fatal", "--enabled=false")
	require.NoError(t, err)
	got := srv.Store().Streams()[0]
	assert.Equal(t, "fatal-only", got.Name)
	assert.Equal(t, "fatal", got.Filter.Level.String())
	assert.False(t, got.Enabled)

	_, err = run(ctx, t, url, "streams", "update", id)
	assert.True(t, errors.IsValidation(err), "empty patch should be rejected, got %v", err)

	_, err = run(ctx, t, url, "streams", "delete", id)
	require.NoError(t, err)
	assert.Empty(t, srv.Store().Streams())

	_, err = run(ctx, t, url, "streams", "delete", id)
	assert.True(t, errors.IsNotFound(err), "got %v", err)
}

func TestStreamsCreateRejectsBadLevel(t *testing.T) {
	_, url := startDemo(t, demo.Options{})
	_, err := run(context.Background(), t, url, "streams", "create", "x", "srv-demo-web", "--level", "loud")
	assert.True(t, errors.IsValidation(err), "got %v", err)
}

func TestOverridesCommands(t *testing.T) {
	srv, url := startDemo(t, demo.Options{})
	ctx := context.Background()
	ls := srv.Store().CreateStream(registry.StreamInput{Name: "all", ResourceID: "srv-demo-web", Enabled: true})

	out, err := run(ctx, t, url, "overrides", "create", ls.ID, "srv-demo-worker", "level=warn", "sampling=0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Created override")

	list, ok := srv.Store().Overrides(ls.ID)
	require.True(t, ok)
	require.Len(t, list, 1)
	oid := list[0].ID

	out, err = run(ctx, t, url, "overrides", "list", ls.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "level=warn,sampling=0.5")

	_, err = run(ctx, t, url, "overrides", "update", ls.ID, oid, "level=error")
	require.NoError(t, err)
	list, _ = srv.Store().Overrides(ls.ID)
	assert.Equal(t, map[string]string{"level": "error"}, list[0].Overrides)

	_, err = run(ctx, t, url, "overrides", "delete", ls.ID, oid)
	require.NoError(t, err)
	list, _ = srv.Store().Overrides(ls.ID)
	assert.Empty(t, list)

	_, err = run(ctx, t, url, "overrides", "create", ls.ID, "srv-demo-web", "novalue")
	assert.True(t, errors.IsValidation(err), "got %v", err)
}

func TestRecentPrintsLines(t *testing.T) {
	_, url := startDemo(t, demo.Options{History: 40, Seed: 7})

	out, err := run(context.Background(), t, url, "recent", "srv-demo-web", "--lines", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5)
	for _, l := range lines {
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T.* \[[A-Z]+\] `, l)
	}
}

func TestRecentExport(t *testing.T) {
	_, url := startDemo(t, demo.Options{History: 40, Seed: 7})
	dest := filepath.Join(t.TempDir(), "recent.jsonl")

	out, err := run(context.Background(), t, url, "recent", "srv-demo-web", "srv-demo-worker", "--lines", "10", "--level", "warn", "--export", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported")

	entries, err := export.ReadFile(dest, export.FormatJSONL)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.GreaterOrEqual(t, e.Level.Rank(), 2, "level %s below warn", e.Level)
	}
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp), "entries not oldest first")
	}
}

func TestRecentUnknownResource(t *testing.T) {
	_, url := startDemo(t, demo.Options{})
	_, err := run(context.Background(), t, url, "recent", "srv-missing")
	assert.True(t, errors.IsNotFound(err), "got %v", err)
}

func TestMissingTokenIsRejected(t *testing.T) {
	_, url := startDemo(t, demo.Options{})
	t.Setenv("LOGWATCH_API_KEY", "")
	t.Setenv("RENDER_API_KEY", "")
	_, err := run(context.Background(), t, url, "streams", "list")
	assert.True(t, errors.IsAuthRejected(err), "got %v", err)
}

func TestTailPlain(t *testing.T) {
	_, url := startDemo(t, demo.Options{Interval: 20 * time.Millisecond, BatchSize: 2, History: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	out, err := run(ctx, t, url, "tail", "srv-demo-web", "--plain", "--lines", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Greater(t, len(lines), 3, "live lines should follow the initial three")
	for _, l := range lines {
		assert.Contains(t, l, " [")
	}
}

func TestTailPlainFiltersLevel(t *testing.T) {
	_, url := startDemo(t, demo.Options{Interval: 10 * time.Millisecond, BatchSize: 5})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := run(ctx, t, url, "tail", "srv-demo-web", "--plain", "--lines", "0", "--level", "error")
	require.NoError(t, err)

	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		if l == "" {
			continue
		}
		assert.Regexp(t, `\[(ERROR|FATAL)\]`, l)
	}
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]string
		wantErr bool
	}{
		{name: "single", args: []string{"level=warn"}, want: map[string]string{"level": "warn"}},
		{name: "empty value", args: []string{"source="}, want: map[string]string{"source": ""}},
		{name: "value with equals", args: []string{"q=a=b"}, want: map[string]string{"q": "a=b"}},
		{name: "missing equals", args: []string{"level"}, wantErr: true},
		{name: "empty key", args: []string{"=warn"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePairs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFileIsRead(t *testing.T) {
	_, url := startDemo(t, demo.Options{History: 20})
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: \""+url+"\"\n"), 0600))

	root := NewRootCommand(BuildInfo{Version: "test"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&syncBuffer{})
	root.SetArgs([]string{"--config", path, "recent", "srv-demo-web", "-n", "2"})
	require.NoError(t, root.Execute())
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 2)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.NewValidationError("level", "bad", "loud"), exitUsage},
		{"not found", errors.NewNotFoundError("log stream", "ls-1"), exitUsage},
		{"wrapped not found", errors.Wrap(errors.NewNotFoundError("log stream", "ls-1"), "delete"), exitUsage},
		{"auth", errors.NewAuthRejectedError("bad key", 401), exitAuth},
		{"connection", errors.NewConnectionFaultError("dial", nil), exitNetwork},
		{"io", errors.NewIOError("rename", "/tmp/x", nil), exitFailure},
		{"plain", assert.AnError, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestUnknownResourceExitsWithUsageStatus(t *testing.T) {
	_, url := startDemo(t, demo.Options{})
	_, err := run(context.Background(), t, url, "recent", "srv-missing")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestLabelsCommand(t *testing.T) {
	_, url := startDemo(t, demo.Options{History: 60, Seed: 3})

	out, err := run(context.Background(), t, url, "labels", "instance", "srv-demo-web")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "srv-demo-web-"), "unexpected value %q", l)
	}

	out, err = run(context.Background(), t, url, "labels", "no-such-label", "srv-demo-web")
	require.NoError(t, err)
	assert.Contains(t, out, "No values found for label no-such-label")
}
