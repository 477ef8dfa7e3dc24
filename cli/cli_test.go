package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/require"
)

// newTestApp builds an App wired onto a fresh kingpin.Application, with
// stdout/stderr captured into buffers instead of the real console.
func newTestApp(t *testing.T) (*App, *kingpin.Application, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	a := NewApp()
	a.out = textOutput{stdoutWriter: &stdout, stderrWriter: &stderr}

	kpapp := kingpin.New("allocsim-test", "test")
	a.Attach(kpapp)

	return a, kpapp, &stdout, &stderr
}

func writeTraceDir(t *testing.T, sizes, liveness string) string {
	t.Helper()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "submemory_size_list.txt"), []byte(sizes), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "submemory_liveness.txt"), []byte(liveness), 0o600))

	return dir
}

const (
	sampleSizes = "1 33554432\n" +
		"2 41943040\n"
	sampleLiveness = "1 0 alloc 5 free\n" +
		"2 10 alloc 30 free\n"
)

func TestReplay_EndToEndReportsSegmentsAndMaxReservedSize(t *testing.T) {
	_, kpapp, stdout, _ := newTestApp(t)

	dir := writeTraceDir(t, sampleSizes, sampleLiveness)

	_, err := kpapp.Parse([]string{"replay", dir})
	require.NoError(t, err)

	out := stdout.String()
	require.Contains(t, out, "records replayed:     2")
	require.Contains(t, out, "segments created:")
	require.Contains(t, out, "max reserved size:")
}

func TestReplay_UnknownTraceDirFails(t *testing.T) {
	_, kpapp, _, _ := newTestApp(t)

	_, err := kpapp.Parse([]string{"replay", filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestReplay_PolicyFlagRejectsUnknownEnumValue(t *testing.T) {
	_, kpapp, _, _ := newTestApp(t)

	dir := writeTraceDir(t, sampleSizes, sampleLiveness)

	_, err := kpapp.Parse([]string{"replay", "--policy=quantum-leap", dir})
	require.Error(t, err)
}

func TestBench_MultiplePoliciesPrintsSortedTable(t *testing.T) {
	_, kpapp, stdout, _ := newTestApp(t)

	dir := writeTraceDir(t, sampleSizes, sampleLiveness)

	_, err := kpapp.Parse([]string{"bench", "--policy=round-large", "--policy=next-pow2", dir})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 3, "expected a header row plus one row per trace/policy combination")
	require.Contains(t, lines[0], "trace")
	require.Contains(t, lines[0], "policy")

	// results are sorted by trace dir then policy: next-pow2 sorts before round-large.
	require.Contains(t, lines[1], "next-pow2")
	require.Contains(t, lines[2], "round-large")
}

func TestBench_InvalidTraceDirFailsFast(t *testing.T) {
	_, kpapp, _, _ := newTestApp(t)

	_, err := kpapp.Parse([]string{"bench", filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestServeMetrics_ShutsDownOnContextCancellation(t *testing.T) {
	a, kpapp, _, _ := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	a.rootctx = ctx

	_, err := kpapp.Parse([]string{"serve-metrics", "--listen-addr=127.0.0.1:0"})
	require.NoError(t, err)
}

func TestMetricsListenAddr_EnablesRegistryDuringReplay(t *testing.T) {
	a, kpapp, _, _ := newTestApp(t)

	dir := writeTraceDir(t, sampleSizes, sampleLiveness)

	_, err := kpapp.Parse([]string{"--metrics-listen-addr=127.0.0.1:0", "replay", dir})
	require.NoError(t, err)
	require.NotNil(t, a.registry())
}
