package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy.part"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	paths, err := Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.pdf"),
	}, paths)
}

func TestScan_MissingDir(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestWatcher_ReportsSettledFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(Config{Dir: dir, SettleDelay: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	path := filepath.Join(dir, "deed.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	select {
	case got := <-w.Events():
		assert.Equal(t, path, got.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no event for dropped file")
	}
}

func TestWatcher_IgnoresPartialFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(Config{Dir: dir, SettleDelay: 30 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.pdf.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("x"), 0o644))

	select {
	case got := <-w.Events():
		assert.Equal(t, filepath.Join(dir, "real.txt"), got.Path,
			"only the real file is reported")
	case <-time.After(3 * time.Second):
		t.Fatal("no event for dropped file")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	w.Stop()
	w.Stop()
}

func TestWatcher_CreatesDropDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "drop")
	w, err := NewWatcher(Config{Dir: dir, SettleDelay: 30 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}
