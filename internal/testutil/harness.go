// Package testutil holds helpers shared by the app, CLI and module tests.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/internal/tracking"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// WriteFiles writes files (relative path to content) under a fresh temp
// directory and returns it.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

// LogOnFailure dumps buf when the test fails or JFORM_TEST_LOGS=true.
func LogOnFailure(t *testing.T, buf *SafeBuffer) {
	t.Helper()
	t.Cleanup(func() {
		if t.Failed() || os.Getenv("JFORM_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
}

// RecorderModule registers a "recorder" tracker that records into Recorder.
type RecorderModule struct {
	Recorder *tracking.Recorder
}

// NewRecorderModule returns a module with a fresh recorder.
func NewRecorderModule() *RecorderModule {
	return &RecorderModule{Recorder: &tracking.Recorder{}}
}

// Register implements handlers.Module.
func (m *RecorderModule) Register(h *handlers.Handlers) {
	h.RegisterTracker("recorder", func(context.Context, handlers.Settings) (tracking.Tracker, error) {
		return m.Recorder, nil
	})
}
