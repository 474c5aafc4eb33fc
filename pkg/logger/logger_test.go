package logger

import (
	"log/slog"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"garbage": slog.LevelWarn,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err)
		assert.Equal(t, want, got, "ParseLevel(%q)", input)
	}
}

// With attaches a "component" attribute alongside any extra args, so
// every line a component-scoped logger writes carries its identity.
func TestWithAttachesComponentAttribute(t *testing.T) {
	Init(slog.LevelDebug, mustTempFile(t), "simple")

	l := With("pool", "pool_id", "p1")
	require.NotNil(t, l)
	l.Info("scaled up")
}

func TestLastSegmentReturnsFinalPathComponent(t *testing.T) {
	assert.Equal(t, "coordinator", lastSegment("github.com/agentmesh/coordinator"))
	assert.Equal(t, "logger", lastSegment("github.com/agentmesh/coordinator/pkg/logger"))
	assert.Equal(t, "solo", lastSegment("solo"))
}

// A zero program counter (no caller info available) is never
// attributed to an own package, regardless of the allowlist.
func TestFilteringHandlerIsOwnPackageRejectsZeroPC(t *testing.T) {
	h := &filteringHandler{
		handler:     slog.NewTextHandler(os.Stderr, nil),
		minLevel:    slog.LevelInfo,
		ownPackages: []string{"some/other/module"},
	}
	assert.False(t, h.isOwnPackage(0))
}

// This test's own call site is under github.com/agentmesh/coordinator,
// so it is recognized as an own package under the module's prefix.
func TestFilteringHandlerIsOwnPackageMatchesCurrentModule(t *testing.T) {
	h := &filteringHandler{
		handler:     slog.NewTextHandler(os.Stderr, nil),
		minLevel:    slog.LevelInfo,
		ownPackages: []string{"github.com/agentmesh/coordinator"},
	}
	pc, _, _, ok := runtime.Caller(0)
	require.True(t, ok)
	assert.True(t, h.isOwnPackage(pc))
}

func TestFilteringHandlerEnabledAtDebugIgnoresCaller(t *testing.T) {
	h := &filteringHandler{
		handler:  slog.NewTextHandler(os.Stderr, nil),
		minLevel: slog.LevelDebug,
	}
	assert.True(t, h.Enabled(nil, slog.LevelDebug))
}

func TestInitWithOwnPackagesSetsDefaultLogger(t *testing.T) {
	f := mustTempFile(t)
	InitWithOwnPackages(slog.LevelInfo, f, "simple", []string{"example.com/plugin"})
	assert.NotNil(t, GetLogger())
}

func TestSimpleTextHandlerWritesLevelAndMessage(t *testing.T) {
	var buf strings.Builder
	h := &simpleTextHandler{writer: &buf}
	rec := slog.NewRecord(time.Now(), slog.LevelWarn, "disk nearly full", 0)
	rec.AddAttrs(slog.String("path", "/var/log"))

	require.NoError(t, h.Handle(nil, rec))
	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "disk nearly full")
	assert.Contains(t, out, "path=/var/log")
}

func mustTempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "logger-test-*.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}
