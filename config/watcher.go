// 配置文件变更监听器实现。
//
// 监听的是文件所在目录而不是文件本身：编辑器和 ConfigMap 常以
// "写临时文件再 rename" 的方式替换配置，直接监听文件会在第一次替换后失效。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileEvent 一次去抖后的文件变更
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp 变更类型
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	}
	return "UNKNOWN"
}

// translateOp 把 fsnotify 的位掩码折成一个 FileOp。
// 文件被 rename 走等同于删除；只改权限或时间戳不算变更。
func translateOp(op fsnotify.Op) (FileOp, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return FileOpRemove, true
	case op.Has(fsnotify.Create):
		return FileOpCreate, true
	case op.Has(fsnotify.Write):
		return FileOpWrite, true
	}
	return 0, false
}

// WatcherOption 配置 FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 同一路径的事件在该时间内合并为一次回调
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounceDelay = d
		}
	}
}

func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// FileWatcher 基于 fsnotify 监听一组配置文件
type FileWatcher struct {
	paths         map[string]struct{}
	dirs          []string
	debounceDelay time.Duration
	logger        *zap.Logger

	mu        sync.Mutex
	callbacks []func(FileEvent)
	notify    *fsnotify.Watcher
	stop      context.CancelFunc
	done      chan struct{}
}

// NewFileWatcher 记录要监听的路径。文件可以暂不存在，但所在目录在 Start 时必须存在。
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:         make(map[string]struct{}, len(paths)),
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", p, err)
		}
		w.paths[abs] = struct{}{}
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
		if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("config file does not exist, will watch for creation", zap.String("path", abs))
		}
	}
	return w, nil
}

// OnChange 注册回调；回调在监听 goroutine 中串行执行
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 开始监听，直到 ctx 结束或调用 Stop
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.notify != nil {
		return errors.New("watcher already running")
	}

	nw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	for _, dir := range w.dirs {
		if err := nw.Add(dir); err != nil {
			_ = nw.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.notify, w.stop, w.done = nw, cancel, make(chan struct{})
	go w.loop(ctx, nw, w.done)

	w.logger.Info("file watcher started",
		zap.Strings("dirs", w.dirs),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop 停止监听并等待监听 goroutine 退出，可重复调用
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	nw, cancel, done := w.notify, w.stop, w.done
	w.notify, w.stop, w.done = nil, nil, nil
	w.mu.Unlock()

	if nw == nil {
		return nil
	}
	cancel()
	err := nw.Close()
	<-done
	w.logger.Info("file watcher stopped")
	return err
}

// IsRunning 是否处于监听状态
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notify != nil
}

// loop 收集事件并按路径去抖。pending 只在本 goroutine 内访问。
func (w *FileWatcher) loop(ctx context.Context, nw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	pending := make(map[string]FileEvent)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-nw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Name)
			if _, watched := w.paths[path]; !watched {
				continue
			}
			op, ok := translateOp(ev.Op)
			if !ok {
				continue
			}
			// create 之后紧跟的 write 仍按 create 上报
			if prev, exists := pending[path]; exists && prev.Op == FileOpCreate && op == FileOpWrite {
				op = FileOpCreate
			}
			pending[path] = FileEvent{Path: path, Op: op, Timestamp: time.Now()}
			timer.Reset(w.debounceDelay)

		case err, ok := <-nw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watcher error", zap.Error(err))

		case <-timer.C:
			w.mu.Lock()
			callbacks := slices.Clone(w.callbacks)
			w.mu.Unlock()

			for _, evt := range pending {
				w.logger.Debug("dispatching file event",
					zap.String("path", evt.Path),
					zap.Stringer("op", evt.Op))
				for _, cb := range callbacks {
					cb(evt)
				}
			}
			clear(pending)
		}
	}
}
