package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/orderfiles/internal/logger"
)

func touch(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestGarbageCollector_Collect(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, SubsystemDir, "42", "Acme", "Citrus")
	now := time.Now()

	finished := filepath.Join(dir, "label_ABC.pdf")
	fresh := filepath.Join(dir, "label_ABC.pdf.1111.part")
	stale := filepath.Join(dir, "label_ABC.pdf.2222.part")
	oldFinished := filepath.Join(dir, "artwork_DEF.tiff")

	touch(t, finished, now)
	touch(t, fresh, now.Add(-time.Hour))
	touch(t, stale, now.Add(-48*time.Hour))
	touch(t, oldFinished, now.Add(-90*24*time.Hour))

	gc := NewGarbageCollector(base, logger.Nop(), time.Hour, 24*time.Hour)
	gc.now = func() time.Time { return now }

	require.NoError(t, gc.Collect(context.Background()))

	assert.FileExists(t, finished)
	assert.FileExists(t, fresh, "part files still being written are kept")
	assert.FileExists(t, oldFinished, "finished downloads are never collected")
	assert.NoFileExists(t, stale)
}

func TestGarbageCollector_MissingRoot(t *testing.T) {
	gc := NewGarbageCollector(filepath.Join(t.TempDir(), "nothing-yet"), logger.Nop(), time.Hour, 0)

	assert.NoError(t, gc.Collect(context.Background()))
	assert.Equal(t, DefaultGCThreshold, gc.threshold)
}

func TestGarbageCollector_Cancelled(t *testing.T) {
	base := t.TempDir()
	touch(t, filepath.Join(base, SubsystemDir, "1", "a.part"), time.Now().Add(-48*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gc := NewGarbageCollector(base, logger.Nop(), time.Hour, time.Hour)
	assert.ErrorIs(t, gc.Collect(ctx), context.Canceled)
}

func TestGarbageCollector_StartStop(t *testing.T) {
	base := t.TempDir()
	stale := filepath.Join(base, SubsystemDir, "7", "b.part")
	touch(t, stale, time.Now().Add(-48*time.Hour))

	gc := NewGarbageCollector(base, logger.Nop(), time.Hour, time.Hour)
	require.NoError(t, gc.Start(context.Background()))
	gc.Stop()

	assert.NoFileExists(t, stale, "Start collects immediately")
}
