// Package intake feeds dropped documents into review sessions. It can
// scan a drop directory once or watch it for new arrivals.
package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Config configures the intake watcher.
type Config struct {
	// Dir is the drop directory.
	Dir string `koanf:"dir"`

	// SettleDelay is how long a file must stay unchanged before it is
	// reported. Copies in progress keep firing write events.
	SettleDelay time.Duration `koanf:"settle_delay"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dir:         "./drop",
		SettleDelay: 2 * time.Second,
	}
}

// Dropped is one file that arrived in the drop directory.
type Dropped struct {
	Path      string
	Timestamp time.Time
}

// Scan lists the regular files currently in dir, sorted by name.
// Hidden files and partial downloads are ignored.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan drop dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || ignored(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func ignored(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".tmp")
}

// Watcher reports files dropped into the directory after they settle.
type Watcher struct {
	cfg     Config
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	events  chan Dropped
	stop    chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher for the configured drop directory.
func NewWatcher(cfg Config, logger *zap.Logger) (*Watcher, error) {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		cfg:     cfg,
		watcher: fw,
		logger:  logger.Named("intake"),
		events:  make(chan Dropped, 64),
		stop:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Events flow on the Events channel until Stop
// or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create drop dir: %w", err)
	}
	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch drop dir: %w", err)
	}

	go w.processEvents(ctx)

	w.logger.Info("watching drop directory", zap.String("dir", w.cfg.Dir))
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}

	w.mu.Lock()
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()
}

// Events returns the channel for receiving dropped files.
func (w *Watcher) Events() <-chan Dropped {
	return w.events
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if ignored(filepath.Base(event.Name)) {
				continue
			}
			w.touch(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// touch resets the settle timer for a path. Every write pushes the
// report further out; the file is announced once it goes quiet.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.cfg.SettleDelay)
		return
	}

	w.pending[path] = time.AfterFunc(w.cfg.SettleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}

		select {
		case w.events <- Dropped{Path: path, Timestamp: time.Now()}:
		case <-w.stop:
		}
	})
}
