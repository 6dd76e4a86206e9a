package schedules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenant: acme\n"), 0o644))

	changes := make(chan string, 10)
	w, err := NewWatcher(path, func(_ context.Context, p string) {
		changes <- p
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("tenant: acme\nschedules: []\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case p := <-changes:
		require.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}

	select {
	case p := <-changes:
		t.Fatalf("expected writes to be coalesced, got extra notification for %s", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSyncWatcher(t *testing.T) {
	store, _ := testStore(t)
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenant: acme\nschedules: []\n"), 0o644))

	w, err := SyncWatcher(store, path, SyncOptions{}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	require.Eventually(t, func() bool {
		all, err := store.List(context.Background(), ListOptions{})
		return err == nil && len(all) == 3
	}, 3*time.Second, 20*time.Millisecond)
}
