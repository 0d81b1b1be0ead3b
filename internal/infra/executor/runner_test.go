package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/postprocess"
)

// recordingStore captures uploads and deletions instead of talking to MinIO.
type recordingStore struct {
	mu       sync.Mutex
	uploads  map[string]string // remote -> local
	deleted  []string
	failures map[string]error // remote -> forced error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		uploads:  make(map[string]string),
		failures: make(map[string]error),
	}
}

func (s *recordingStore) Upload(ctx context.Context, localPath, remotePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[remotePath]; ok {
		return err
	}
	s.uploads[remotePath] = localPath
	return nil
}

func (s *recordingStore) DeleteLocalTree(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, path)
	os.RemoveAll(path)
}

func (s *recordingStore) FetchPayload(ctx context.Context, remotePath string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func newTestRunner(t *testing.T) (*Runner, *recordingStore, string) {
	t.Helper()
	root := t.TempDir()
	store := newRecordingStore()
	procs := postprocess.NewRegistry(store, testLogger())
	return NewRunner(root, procs, testLogger()), store, root
}

func TestExecuteSuccess(t *testing.T) {
	runner, store, root := newTestRunner(t)

	out := runner.Execute(context.Background(),
		[]string{"sh", "-c", "echo hello"}, "scan-1", "sometool", time.Minute)

	assert.True(t, out.Success)
	assert.Equal(t, 0, out.ReturnCode)
	assert.Equal(t, "hello\n", out.Stdout)
	assert.Equal(t, "sometool", out.ToolName)
	require.Len(t, out.OutputFilePaths, 2)

	// unregistered tool falls through to the default processor: both stream
	// captures uploaded for review, directory cleaned up
	assert.Equal(t, out.OutputFilePaths[0], store.uploads["data/scan-1/vulnr/sometool/review/output.stdout"])
	assert.Equal(t, out.OutputFilePaths[1], store.uploads["data/scan-1/vulnr/sometool/review/output.stderr"])
	assert.Contains(t, store.deleted, filepath.Join(root, "scan-1", "sometool"))
}

func TestExecuteFailureDispatchesDefault(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	out := runner.Execute(context.Background(),
		[]string{"sh", "-c", "echo boom >&2; exit 3"}, "scan-1", "nuclei", time.Minute)

	assert.False(t, out.Success)
	assert.Equal(t, 3, out.ReturnCode)
	assert.Equal(t, "boom\n", out.Stderr)

	// failed runs never reach the tool-specific processor
	assert.NotContains(t, store.uploads, "data/scan-1/vulnr/nuclei/llm/compiled_llm_input.txt")
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/nuclei/review/output.stderr")
}

func TestExecuteTimeout(t *testing.T) {
	runner, store, root := newTestRunner(t)

	out := runner.Execute(context.Background(),
		[]string{"sleep", "5"}, "scan-1", "sometool", 100*time.Millisecond)

	assert.False(t, out.Success)
	assert.Equal(t, -1, out.ReturnCode)
	assert.Contains(t, out.Stderr, "timed out")
	require.Len(t, out.OutputFilePaths, 1)
	assert.Equal(t, filepath.Join(root, "scan-1", "sometool", "output.stderr"), out.OutputFilePaths[0])

	// the timeout message is persisted and routed through the default processor
	assert.Contains(t, store.uploads, "data/scan-1/vulnr/sometool/review/output.stderr")
}

func TestExecuteBinaryNotFound(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	out := runner.Execute(context.Background(),
		[]string{"definitely-not-a-binary-xyz"}, "scan-1", "sometool", time.Minute)

	assert.False(t, out.Success)
	assert.Equal(t, -1, out.ReturnCode)
	assert.Contains(t, out.Stderr, "An unexpected error occurred")
	assert.Empty(t, out.OutputFilePaths)
	assert.Empty(t, store.uploads, "nothing was produced, nothing is uploaded")
}

func TestExecuteEmptyCommand(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	out := runner.Execute(context.Background(), nil, "scan-1", "sometool", time.Minute)
	assert.False(t, out.Success)
	assert.Equal(t, -1, out.ReturnCode)
}

func TestExecuteTruncatesStreams(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	out := runner.Execute(context.Background(),
		[]string{"sh", "-c", `head -c 3000 /dev/zero | tr '\0' 'a'`}, "scan-1", "sometool", time.Minute)

	require.True(t, out.Success)
	assert.Len(t, out.Stdout, 2000, "summary keeps only the last 2000 characters")
	assert.Equal(t, strings.Repeat("a", 2000), out.Stdout)
}

func TestExecuteCollectsToolArtifacts(t *testing.T) {
	runner, _, root := newTestRunner(t)

	// simulate a tool writing its own report file next to the streams
	report := filepath.Join(root, "scan-2", "sometool", "report.json")
	out := runner.Execute(context.Background(),
		[]string{"sh", "-c", "mkdir -p $(dirname " + report + ") && echo '{}' > " + report}, "scan-2", "sometool", time.Minute)

	require.True(t, out.Success)
	assert.Contains(t, out.OutputFilePaths, report)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("abc", 5))
	assert.Equal(t, "cde", tail("abcde", 3))
	assert.Equal(t, "", tail("", 3))
}
