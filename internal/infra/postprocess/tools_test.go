package postprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

)

type fakeStore struct {
	mu       sync.Mutex
	uploads  map[string]string // remote -> local
	deleted  []string
	failures map[string]error // remote -> forced upload error
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string]string), failures: make(map[string]error)}
}

func (s *fakeStore) Upload(ctx context.Context, localPath, remotePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[remotePath]; ok {
		return err
	}
	s.uploads[remotePath] = localPath
	return nil
}

func (s *fakeStore) DeleteLocalTree(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, path)
}

func (s *fakeStore) FetchPayload(ctx context.Context, remotePath string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func newTestRegistry(t *testing.T) (*Registry, *fakeStore, string) {
	t.Helper()
	store := newFakeStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(store, logger), store, t.TempDir()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessorFallback(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	assert.NotNil(t, reg.Processor("nuclei"))
	assert.NotNil(t, reg.Processor("does-not-exist"))
	assert.NotNil(t, reg.Default())
}

func TestDefaultProcessorUploadsAndCleans(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	stdout := writeFile(t, dir, "output.stdout", "out")
	stderr := writeFile(t, dir, "output.stderr", "err")

	reg.Default()(context.Background(), "scan-1", "mytool", dir, []string{stdout, stderr})

	assert.Equal(t, stdout, store.uploads["data/scan-1/vulnr/mytool/review/output.stdout"])
	assert.Equal(t, stderr, store.uploads["data/scan-1/vulnr/mytool/review/output.stderr"])
	assert.Equal(t, []string{dir}, store.deleted)
}

func TestDefaultProcessorSkipsMissingFiles(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	stdout := writeFile(t, dir, "output.stdout", "out")
	ghost := filepath.Join(dir, "never-written.json")

	reg.Default()(context.Background(), "scan-1", "mytool", dir, []string{stdout, ghost})

	assert.Len(t, store.uploads, 1)
	assert.Equal(t, []string{dir}, store.deleted, "missing candidates do not block cleanup")
}

func TestDefaultProcessorIsIdempotent(t *testing.T) {
	reg, store, dir := newTestRegistry(t)

	// second invocation on an already-processed (empty) dir is a no-op
	reg.Default()(context.Background(), "scan-1", "mytool", dir, nil)
	reg.Default()(context.Background(), "scan-1", "mytool", dir, nil)

	assert.Empty(t, store.uploads)
	assert.Equal(t, []string{dir, dir}, store.deleted)
}

func TestUploadFailureBlocksCleanup(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	stdout := writeFile(t, dir, "output.stdout", "out")
	stderr := writeFile(t, dir, "output.stderr", "err")
	store.failures["data/scan-1/vulnr/mytool/review/output.stderr"] = errors.New("minio down")

	reg.Default()(context.Background(), "scan-1", "mytool", dir, []string{stdout, stderr})

	assert.Empty(t, store.deleted, "one failed upload must keep the whole directory")
}

func TestNucleiDigest(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "output.stdout", "finding A\n")

	var banner strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&banner, "banner line %d\n", i)
	}
	banner.WriteString("real stderr content\n")
	writeFile(t, dir, "output.stderr", banner.String())

	reg.Processor("nuclei")(context.Background(), "scan-1", "nuclei", dir, nil)

	digestLocal := store.uploads["data/scan-1/vulnr/nuclei/llm/compiled_llm_input.txt"]
	require.NotEmpty(t, digestLocal)
	data, err := os.ReadFile(digestLocal)
	require.NoError(t, err)

	digest := string(data)
	assert.Contains(t, digest, `stdout: """finding A`)
	assert.Contains(t, digest, "real stderr content")
	assert.NotContains(t, digest, "banner line", "the first 12 stderr lines are dropped")

	assert.Contains(t, store.uploads, "data/scan-1/vulnr/nuclei/review/output.stdout")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/nuclei/review/output.stderr")
	assert.Equal(t, []string{dir}, store.deleted)
}

func TestNiktoMissingJSONIsSkipped(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "output.stdout", "nikto findings")

	reg.Processor("nikto")(context.Background(), "scan-1", "nikto", dir, nil)

	assert.Contains(t, store.uploads, "data/scan-1/vulnr/nikto/llm/nikto_llm_input.txt")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/nikto/review/output.stdout")
	assert.NotContains(t, store.uploads, "data/scan-1/vulnr/nikto/review/nikto_results.json")
	assert.Equal(t, []string{dir}, store.deleted, "missing nikto json does not block cleanup")
}

func TestNiktoMissingStdoutBlocksCleanup(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "nikto_results.json", "{}")

	reg.Processor("nikto")(context.Background(), "scan-1", "nikto", dir, nil)

	assert.Empty(t, store.deleted)
}

func TestSqlmapFindsResultSubdir(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "output.stdout", "sqlmap run")
	writeFile(t, dir, "example.com/log", "injection log")

	reg.Processor("sqlmap")(context.Background(), "scan-1", "sqlmap", dir, nil)

	assert.Contains(t, store.uploads, "data/scan-1/vulnr/sqlmap/llm/sqlmap_log.txt")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/sqlmap/review/output.stdout")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/sqlmap/review/log.txt")
	assert.Equal(t, []string{dir}, store.deleted)
}

func TestSqlmapMissingSubdirForcesCleanup(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "output.stdout", "sqlmap crashed early")

	reg.Processor("sqlmap")(context.Background(), "scan-1", "sqlmap", dir, nil)

	assert.Contains(t, store.uploads, "data/scan-1/vulnr/sqlmap/review/output.stdout_FAILURE")
	assert.Equal(t, []string{dir}, store.deleted,
		"non-recoverable sqlmap output is deleted regardless of upload outcome")
}

func TestSqlmapMissingSubdirCleansEvenOnUploadFailure(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "output.stdout", "sqlmap crashed early")
	store.failures["data/scan-1/vulnr/sqlmap/review/output.stdout_FAILURE"] = errors.New("minio down")

	reg.Processor("sqlmap")(context.Background(), "scan-1", "sqlmap", dir, nil)

	assert.Equal(t, []string{dir}, store.deleted)
}

func TestTrivyMissingReportBlocksCleanup(t *testing.T) {
	reg, store, dir := newTestRegistry(t)

	reg.Processor("trivy")(context.Background(), "scan-1", "trivy", dir, nil)
	assert.Empty(t, store.deleted)

	writeFile(t, dir, "trivy_results.json", "{}")
	reg.Processor("trivy")(context.Background(), "scan-1", "trivy", dir, nil)
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/trivy/review/trivy_results.json")
	assert.NotContains(t, store.uploads, "data/scan-1/vulnr/trivy/llm/trivy_results.json",
		"trivy has no llm artifact")
	assert.Equal(t, []string{dir}, store.deleted)
}

func TestWpscanJSONToBoth(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "wpscan_results.json", "{}")

	reg.Processor("wpscan")(context.Background(), "scan-1", "wpscan", dir, nil)

	assert.Contains(t, store.uploads, "data/scan-1/vulnr/wpscan/llm/wpscan_results.json")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/wpscan/review/wpscan_results.json")
	assert.Equal(t, []string{dir}, store.deleted)
}

func TestSemgrepUsesStderr(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "output.stderr", "semgrep summary")

	reg.Processor("semgrep")(context.Background(), "scan-1", "semgrep", dir, nil)

	assert.Contains(t, store.uploads, "data/scan-1/vulnr/semgrep/llm/semgrep_scan_output.txt")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/semgrep/review/output.stderr")
}

func TestTrufflehogUsesStdout(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	writeFile(t, dir, "output.stdout", "secret found")

	reg.Processor("trufflehog")(context.Background(), "scan-1", "trufflehog", dir, nil)

	assert.Contains(t, store.uploads, "data/scan-1/vulnr/trufflehog/llm/trufflehog_scan_output.txt")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/trufflehog/review/output.stdout")
}

func TestHttpxShortOutputUploadsFullFile(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	stdout := writeFile(t, dir, "output.stdout", "line1\nline2\nline3\n")

	reg.Processor("httpx")(context.Background(), "scan-1", "httpx", dir, nil)

	assert.Equal(t, stdout, store.uploads["data/scan-1/vulnr/httpx/llm/httpx_summary.txt"],
		"under 20 lines the stdout file itself is the summary")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/httpx/review/output.stdout")
	assert.Equal(t, []string{dir}, store.deleted)
}

func TestHttpxLongOutputIsTruncatedTo20Lines(t *testing.T) {
	reg, store, dir := newTestRegistry(t)
	var sb strings.Builder
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	writeFile(t, dir, "output.stdout", sb.String())

	reg.Processor("httpx")(context.Background(), "scan-1", "httpx", dir, nil)

	summaryLocal := store.uploads["data/scan-1/vulnr/httpx/llm/httpx_summary.txt"]
	require.NotEmpty(t, summaryLocal)
	assert.Equal(t, filepath.Join(dir, "httpx_summary.txt"), summaryLocal)

	data, err := os.ReadFile(summaryLocal)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 20)
	assert.Equal(t, "line 1", lines[0])
	assert.Equal(t, "line 20", lines[19])
}

func TestHeadLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", "a\nb\nc\n")

	head, full, err := headLines(path, 5)
	require.NoError(t, err)
	assert.True(t, full)
	assert.Equal(t, "a\nb\nc\n", head)

	head, full, err = headLines(path, 2)
	require.NoError(t, err)
	assert.False(t, full)
	assert.Equal(t, "a\nb\n", head)
}
