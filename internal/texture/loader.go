package texture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/gpu"
)

// Loader errors.
var (
	ErrCancelled  = errors.New("texture: load cancelled")
	ErrOverBudget = errors.New("texture: image larger than memory budget")
	ErrClosed     = errors.New("texture: loader closed")
)

// Kind selects the texel format and the fallback of a texture.
type Kind int

// Texture kinds.
const (
	KindColor Kind = iota
	KindNormal
	KindData
	numKinds
)

func (k Kind) format() gputypes.TextureFormat {
	if k == KindColor {
		return gputypes.TextureFormatRGBA8UnormSrgb
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// Status is the readiness of a texture.
type Status int32

// Texture states.
const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is the outcome of one attempt to run a task.
type Result int

// Task results.
const (
	Done Result = iota
	RetryLater
	Failed
)

// Handle is a requested texture. Texture, Err and Version change only in
// Loader.Poll, on the frame thread.
type Handle struct {
	ID   uuid.UUID
	Path string
	Kind Kind

	status    atomic.Int32
	cancelled atomic.Bool
	version   uint64
	texture   gpu.Texture
	err       error
}

// Status returns the load state.
func (h *Handle) Status() Status { return Status(h.status.Load()) }

// Texture returns the GPU texture once ready.
func (h *Handle) Texture() gpu.Texture { return h.texture }

// Err returns why the load failed.
func (h *Handle) Err() error { return h.err }

// Version counts completed loads, including reloads.
func (h *Handle) Version() uint64 { return h.version }

// Cancel asks the loader to drop the request. A task that already started
// decoding finishes; one that has not is dropped.
func (h *Handle) Cancel() { h.cancelled.Store(true) }

type task struct {
	handle   *Handle
	attempts int
}

type decoded struct {
	task     *task
	img      *image.RGBA
	reserved int64
	err      error
}

type handleKey struct {
	path string
	kind Kind
}

// Loader decodes texture files on worker goroutines and turns them into
// GPU textures on the frame thread.
type Loader struct {
	dev gpu.Device
	cfg config.TextureConfig
	log *zap.Logger

	budget      *semaphore.Weighted
	budgetBytes int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	queue  chan *task
	done   chan decoded
	reload chan string

	mu      sync.Mutex
	handles map[handleKey]*Handle
	retry   []*task

	watcher  *fsnotify.Watcher
	watched  map[string]bool
	fallback [numKinds]gpu.Texture
	closed   bool
}

// NewLoader starts cfg.Workers decoding goroutines and, with cfg.Watch,
// a file watcher that reloads changed textures.
func NewLoader(dev gpu.Device, cfg config.TextureConfig, log *zap.Logger) (*Loader, error) {
	l, err := newLoader(dev, cfg, log)
	if err != nil {
		return nil, err
	}
	l.startWorkers(cfg.Workers)
	return l, nil
}

func newLoader(dev gpu.Device, cfg config.TextureConfig, log *zap.Logger) (*Loader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	budget := int64(cfg.MemoryBudgetMB) << 20
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		dev:         dev,
		cfg:         cfg,
		log:         log,
		budget:      semaphore.NewWeighted(budget),
		budgetBytes: budget,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan *task, queueSize),
		done:        make(chan decoded, queueSize),
		reload:      make(chan string, queueSize),
		handles:     make(map[handleKey]*Handle),
		watched:     make(map[string]bool),
	}
	if cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("texture: watch: %w", err)
		}
		l.watcher = w
		l.wg.Add(1)
		go l.watchLoop()
	}
	return l, nil
}

func (l *Loader) startWorkers(n int) {
	for i := 0; i < n; i++ {
		l.wg.Add(1)
		go l.worker()
	}
}

func (l *Loader) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case t := <-l.queue:
			l.run(t)
		}
	}
}

func (l *Loader) run(t *task) {
	t.attempts++
	res, d := l.load(t)
	switch res {
	case RetryLater:
		l.mu.Lock()
		l.retry = append(l.retry, t)
		l.mu.Unlock()
	default:
		select {
		case l.done <- d:
		case <-l.ctx.Done():
			if d.reserved > 0 {
				l.budget.Release(d.reserved)
			}
		}
	}
}

// load runs one attempt. It never blocks on the budget: a texture that
// does not fit right now is retried after Poll frees memory.
func (l *Loader) load(t *task) (Result, decoded) {
	h := t.handle
	if h.cancelled.Load() || l.ctx.Err() != nil {
		return Failed, decoded{task: t, err: ErrCancelled}
	}
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return Failed, decoded{task: t, err: err}
	}
	cfg, err := DecodeConfig(h.Path, data)
	if err != nil {
		return Failed, decoded{task: t, err: err}
	}
	need := int64(cfg.Width) * int64(cfg.Height) * 4
	if need > l.budgetBytes {
		return Failed, decoded{task: t, err: fmt.Errorf("%w: %s needs %d bytes", ErrOverBudget, filepath.Base(h.Path), need)}
	}
	if !l.budget.TryAcquire(need) {
		return RetryLater, decoded{}
	}
	img, err := Decode(h.Path, data)
	if err != nil {
		l.budget.Release(need)
		return Failed, decoded{task: t, err: err}
	}
	return Done, decoded{task: t, img: img, reserved: need}
}

func (l *Loader) enqueue(t *task) {
	select {
	case l.queue <- t:
	default:
		l.mu.Lock()
		l.retry = append(l.retry, t)
		l.mu.Unlock()
	}
}

// Request returns the handle for path, starting a load on first use.
// Relative paths resolve against the configured root.
func (l *Loader) Request(path string, kind Kind) *Handle {
	if !filepath.IsAbs(path) && l.cfg.Root != "" {
		path = filepath.Join(l.cfg.Root, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	key := handleKey{path: path, kind: kind}

	l.mu.Lock()
	if h, ok := l.handles[key]; ok {
		l.mu.Unlock()
		return h
	}
	h := &Handle{ID: uuid.New(), Path: path, Kind: kind}
	if l.closed {
		h.status.Store(int32(StatusCancelled))
		h.err = ErrClosed
		l.mu.Unlock()
		return h
	}
	l.handles[key] = h
	l.mu.Unlock()

	l.watch(filepath.Dir(path))
	l.log.Debug("texture requested", zap.String("id", h.ID.String()), zap.String("path", path))
	l.enqueue(&task{handle: h})
	return h
}

// Poll creates GPU textures for finished loads, records failures and
// requeues tasks that were over budget or whose files changed. It returns
// the handles whose state or texture changed.
func (l *Loader) Poll() []*Handle {
	var changed []*Handle
	for {
		select {
		case d := <-l.done:
			if l.finish(d) {
				changed = append(changed, d.task.handle)
			}
			continue
		default:
		}
		break
	}

	for {
		select {
		case path := <-l.reload:
			l.requeuePath(path)
			continue
		default:
		}
		break
	}

	l.mu.Lock()
	retry := l.retry
	l.retry = nil
	l.mu.Unlock()
	for _, t := range retry {
		l.enqueue(t)
	}
	return changed
}

func (l *Loader) finish(d decoded) bool {
	h := d.task.handle
	if d.err != nil {
		if errors.Is(d.err, ErrCancelled) {
			h.status.Store(int32(StatusCancelled))
		} else {
			h.status.Store(int32(StatusFailed))
			l.log.Warn("texture load failed",
				zap.String("id", h.ID.String()), zap.String("path", h.Path), zap.Error(d.err))
		}
		h.err = d.err
		return true
	}
	defer l.budget.Release(d.reserved)

	b := d.img.Bounds()
	tex, err := l.dev.CreateTexture(gpu.TextureDesc{
		Label:  filepath.Base(h.Path),
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: h.Kind.format(),
	}, d.img.Pix)
	if err != nil {
		h.status.Store(int32(StatusFailed))
		h.err = err
		l.log.Warn("texture upload failed", zap.String("path", h.Path), zap.Error(err))
		return true
	}
	if h.texture != nil {
		h.texture.Release()
	}
	h.texture = tex
	h.err = nil
	h.version++
	h.status.Store(int32(StatusReady))
	l.log.Debug("texture ready",
		zap.String("id", h.ID.String()), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()),
		zap.Int("attempts", d.task.attempts))
	return true
}

// Pending returns the number of requests that have not finished.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, h := range l.handles {
		if h.Status() == StatusLoading {
			n++
		}
	}
	return n
}

var fallbackTexels = [numKinds][4]byte{
	KindColor:  {255, 255, 255, 255},
	KindNormal: {128, 128, 255, 255},
	KindData:   {0, 0, 0, 0},
}

// Fallback returns the 1x1 texture bound in place of a failed one.
func (l *Loader) Fallback(kind Kind) (gpu.Texture, error) {
	if kind < 0 || kind >= numKinds {
		kind = KindColor
	}
	if l.fallback[kind] == nil {
		texel := fallbackTexels[kind]
		tex, err := l.dev.CreateTexture(gpu.TextureDesc{
			Label:  fmt.Sprintf("fallback/%d", kind),
			Width:  1,
			Height: 1,
			Format: kind.format(),
		}, texel[:])
		if err != nil {
			return nil, err
		}
		l.fallback[kind] = tex
	}
	return l.fallback[kind], nil
}

// Close stops the workers and the watcher and releases every texture.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	var err error
	if l.watcher != nil {
		err = multierr.Append(err, l.watcher.Close())
	}
	l.wg.Wait()

	for _, h := range l.handles {
		if h.texture != nil {
			h.texture.Release()
			h.texture = nil
		}
		if h.Status() == StatusLoading {
			h.status.Store(int32(StatusCancelled))
			h.err = ErrClosed
		}
	}
	for i, tex := range l.fallback {
		if tex != nil {
			tex.Release()
			l.fallback[i] = nil
		}
	}
	return err
}
