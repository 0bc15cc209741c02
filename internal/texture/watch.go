package texture

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

func (l *Loader) watch(dir string) {
	if l.watcher == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watched[dir] {
		return
	}
	if err := l.watcher.Add(dir); err != nil {
		l.log.Warn("cannot watch texture directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	l.watched[dir] = true
}

func (l *Loader) watchLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			select {
			case l.reload <- filepath.Clean(ev.Name):
			default:
				l.log.Warn("texture reload queue full", zap.String("path", ev.Name))
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Warn("texture watcher error", zap.Error(err))
		}
	}
}

// requeuePath reloads every handle of path that is not mid-load.
func (l *Loader) requeuePath(path string) {
	l.mu.Lock()
	var tasks []*task
	for key, h := range l.handles {
		if key.path != path || h.Status() == StatusLoading || h.Status() == StatusCancelled {
			continue
		}
		tasks = append(tasks, &task{handle: h})
	}
	l.mu.Unlock()
	for _, t := range tasks {
		l.log.Info("reloading texture", zap.String("path", path))
		l.enqueue(t)
	}
}
