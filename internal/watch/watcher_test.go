package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"oncostats/internal/registry"
)

type change struct {
	source     string
	categories []string
}

type collector struct {
	mu      sync.Mutex
	changes []change
}

func (c *collector) DatasetChanged(_ context.Context, source string, categories []string) {
	c.mu.Lock()
	c.changes = append(c.changes, change{source, categories})
	c.mu.Unlock()
}

func (c *collector) snapshot() []change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]change(nil), c.changes...)
}

func TestWatcher_CoalescesWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	got := &collector{}
	w, err := New(dir, registry.MustDefault(), got, nil)
	require.NoError(t, err)
	w.Debounce = 100 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	path := filepath.Join(dir, "liver.csv")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("Age_Group\n20-30\n"), 0o644))
	}
	// not a catalog source
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(got.snapshot()) > 0 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(3 * w.Debounce)

	changes := got.snapshot()
	require.Len(t, changes, 1)
	assert.Equal(t, "liver.csv", changes[0].source)
	assert.Equal(t, []string{"Liver Cancer"}, changes[0].categories)
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := New(t.TempDir(), registry.MustDefault(), &collector{}, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}

func TestWatcher_MissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "nope"), registry.MustDefault(), &collector{}, nil)
	require.NoError(t, err)
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}

func TestNotifiers(t *testing.T) {
	a, b := &collector{}, &collector{}
	Notifiers{a, b}.DatasetChanged(context.Background(), "bone.csv", []string{"Bone Cancer"})

	want := []change{{"bone.csv", []string{"Bone Cancer"}}}
	assert.Equal(t, want, a.snapshot())
	assert.Equal(t, want, b.snapshot())
}
