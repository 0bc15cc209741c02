package texture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/gpu/nulldev"
)

func testConfig(root string) config.TextureConfig {
	return config.TextureConfig{Workers: 2, QueueSize: 8, MemoryBudgetMB: 1, Root: root}
}

// pollUntil polls the loader until cond holds or the deadline passes.
func pollUntil(t *testing.T, l *Loader, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for loader")
		}
		l.Poll()
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLoaderLoadsTexture(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "albedo.png"), 4, 2)

	dev := nulldev.New()
	l, err := NewLoader(dev, testConfig(dir), nil)
	require.NoError(t, err)
	defer l.Close()

	h := l.Request("albedo.png", KindColor)
	assert.Same(t, h, l.Request(filepath.Join(dir, "albedo.png"), KindColor))
	assert.NotEqual(t, h, l.Request("albedo.png", KindData))

	pollUntil(t, l, func() bool { return h.Status() == StatusReady })
	tex := h.Texture()
	require.NotNil(t, tex)
	assert.Equal(t, 4, tex.Width())
	assert.Equal(t, 2, tex.Height())
	assert.Equal(t, gputypes.TextureFormatRGBA8UnormSrgb, tex.Format())
	assert.Len(t, tex.(*nulldev.Texture).Pixels, 4*2*4)
	assert.Equal(t, uint64(1), h.Version())
	assert.NotEmpty(t, h.ID.String())
}

func TestLoaderMissingFileFails(t *testing.T) {
	l, err := NewLoader(nulldev.New(), testConfig(t.TempDir()), nil)
	require.NoError(t, err)
	defer l.Close()

	h := l.Request("missing.png", KindNormal)
	pollUntil(t, l, func() bool { return h.Status() == StatusFailed })
	assert.Error(t, h.Err())
	assert.Nil(t, h.Texture())
	assert.Equal(t, 0, l.Pending())

	fb, err := l.Fallback(KindNormal)
	require.NoError(t, err)
	assert.Equal(t, []byte{128, 128, 255, 255}, fb.(*nulldev.Texture).Pixels)
	again, err := l.Fallback(KindNormal)
	require.NoError(t, err)
	assert.Same(t, fb, again)
}

func TestLoaderBudgetRetries(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "b.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "huge.png"), 8, 8)

	l, err := newLoader(nulldev.New(), testConfig(dir), nil)
	require.NoError(t, err)
	defer l.Close()
	// one 4x4 RGBA image at a time
	l.budget = semaphore.NewWeighted(64)
	l.budgetBytes = 64
	l.startWorkers(2)

	a := l.Request("a.png", KindColor)
	b := l.Request("b.png", KindColor)
	huge := l.Request("huge.png", KindColor)

	pollUntil(t, l, func() bool {
		return a.Status() == StatusReady && b.Status() == StatusReady && huge.Status() == StatusFailed
	})
	assert.ErrorIs(t, huge.Err(), ErrOverBudget)
}

func TestLoaderCancel(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2)

	l, err := newLoader(nulldev.New(), testConfig(dir), nil)
	require.NoError(t, err)
	defer l.Close()

	h := l.Request("a.png", KindColor)
	h.Cancel()
	l.startWorkers(1)

	pollUntil(t, l, func() bool { return h.Status() == StatusCancelled })
	assert.ErrorIs(t, h.Err(), ErrCancelled)
	assert.Nil(t, h.Texture())
}

func TestLoaderClose(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2)

	l, err := NewLoader(nulldev.New(), testConfig(dir), nil)
	require.NoError(t, err)
	h := l.Request("a.png", KindColor)
	pollUntil(t, l, func() bool { return h.Status() == StatusReady })
	tex := h.Texture().(*nulldev.Texture)

	require.NoError(t, l.Close())
	assert.True(t, tex.Released())
	assert.NoError(t, l.Close())

	late := l.Request("a.png", KindData)
	assert.Equal(t, StatusCancelled, late.Status())
	assert.ErrorIs(t, late.Err(), ErrClosed)
}

func TestLoaderReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 2, 2)

	cfg := testConfig(dir)
	cfg.Watch = true
	l, err := NewLoader(nulldev.New(), cfg, nil)
	require.NoError(t, err)
	defer l.Close()

	h := l.Request("a.png", KindColor)
	pollUntil(t, l, func() bool { return h.Status() == StatusReady })
	first := h.Texture().(*nulldev.Texture)

	writePNG(t, path, 8, 4)
	pollUntil(t, l, func() bool { return h.Version() >= 2 && h.Texture().Width() == 8 })
	assert.True(t, first.Released())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
