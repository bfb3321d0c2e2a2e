package specfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgate/mcpgate/pkg/logging"
)

func TestWatcher_ReloadsOnAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers: []\n"), 0o644))

	changes := make(chan *File, 4)
	w := NewWatcher(path, logging.NewDiscardLogger(), func(f *File) error {
		changes <- f
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before touching the file.
	time.Sleep(100 * time.Millisecond)

	// Editors save by writing a temp file and renaming it over the target.
	tmp := filepath.Join(dir, "servers.yaml.tmp")
	updated := "servers:\n  - id: fs\n    type: STDIO\n    command: npx\n"
	require.NoError(t, os.WriteFile(tmp, []byte(updated), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case f := <-changes:
		require.Len(t, f.Servers, 1)
		assert.Equal(t, "fs", f.Servers[0].ID)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never delivered the change")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcher_SkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers: []\n"), 0o644))

	changes := make(chan *File, 4)
	w := NewWatcher(path, logging.NewDiscardLogger(), func(f *File) error {
		changes <- f
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("servers: [::broken"), 0o644))

	select {
	case f := <-changes:
		t.Fatalf("malformed file must not reach the callback: %+v", f)
	case <-time.After(debounceDelay + 500*time.Millisecond):
	}
}
