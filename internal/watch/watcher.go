package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reconnectDelays is the backoff schedule used to re-establish a watch on
// a path that was removed or renamed out from under the watcher (for
// example during a branch checkout that recreates .git/index).
var reconnectDelays = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// Options configures a Watcher.
type Options struct {
	// Recursive watches every subdirectory of each root, not just its
	// top level.
	Recursive bool
	// IgnorePatterns are glob patterns (matched against the path
	// relative to its repository root and against its base name) that
	// suppress file-modification signals. They never suppress branch-change, commit, or repo-entry
	// signals.
	IgnorePatterns []string
	// DebounceDelay coalesces a burst of file-modification touches into
	// one emitted signal. Zero uses a 300ms default.
	DebounceDelay time.Duration
	// PollInterval is used only when the fsnotify backend is
	// unavailable. Zero uses a 2s default.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = 300 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// Watcher monitors one or more repository roots and emits classified
// Signals. It uses fsnotify when available and falls back to polling
// .git/HEAD and .git/logs/HEAD otherwise.
type Watcher struct {
	opts       Options
	classifier *Classifier

	fsw         *fsnotify.Watcher
	pollingMode bool

	mu         sync.Mutex
	roots      map[string]bool
	debouncers map[string]*Debouncer
	pending    map[string]string // root -> most recent pending relPath

	onSignal func(Signal)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Watcher. If the fsnotify backend cannot be
// initialized, the watcher falls back to polling mode rather than
// returning an error.
func New(opts Options) *Watcher {
	opts = opts.withDefaults()
	w := &Watcher{
		opts:       opts,
		classifier: NewClassifier(),
		roots:      make(map[string]bool),
		debouncers: make(map[string]*Debouncer),
		pending:    make(map[string]string),
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("watch: fsnotify unavailable (%v), falling back to polling", err)
		w.pollingMode = true
		return w
	}
	w.fsw = fsw
	return w
}

// AddRoot begins watching root and immediately emits its repo-entry
// signal (the first touch is the act of starting to watch, since plain
// write/create/remove events carry no reliable "opened" signal on every
// platform).
func (w *Watcher) AddRoot(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}

	w.mu.Lock()
	w.roots[root] = true
	w.debouncers[root] = NewDebouncer(w.opts.DebounceDelay, func() { w.flushPending(root) })
	w.mu.Unlock()

	if !w.pollingMode {
		if err := w.addWatches(root); err != nil {
			return err
		}
	}

	for _, sig := range w.classifier.Enter(root) {
		w.emit(sig)
	}
	return nil
}

// RemoveRoot stops watching root and forgets its classification state.
func (w *Watcher) RemoveRoot(root string) {
	root, _ = filepath.Abs(root)
	w.mu.Lock()
	delete(w.roots, root)
	if d, ok := w.debouncers[root]; ok {
		d.Cancel()
		delete(w.debouncers, root)
	}
	delete(w.pending, root)
	w.mu.Unlock()
	w.classifier.Forget(root)
}

func (w *Watcher) addWatches(root string) error {
	gitDir := filepath.Join(root, ".git")
	if err := w.fsw.Add(gitDir); err != nil {
		return fmt.Errorf("watch %s: %w", gitDir, err)
	}
	_ = w.fsw.Add(filepath.Join(gitDir, "logs"))

	if !w.opts.Recursive {
		return w.fsw.Add(root)
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("watch: failed to watch %s: %v", path, err)
		}
		return nil
	})
}

// Start begins dispatching classified signals to onSignal until ctx is
// canceled. Must be called once.
func (w *Watcher) Start(ctx context.Context, onSignal func(Signal)) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.onSignal = onSignal

	if w.pollingMode {
		w.startPolling(ctx)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				w.handleEvent(ctx, event)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				log.Printf("watch: fsnotify error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	root := w.rootFor(event.Name)
	if root == "" {
		return
	}

	rel, isGit := RelPath(root, event.Name)
	switch {
	case isGit && rel == "HEAD":
		for _, sig := range w.classifier.HeadChanged(root) {
			w.emit(sig)
		}
	case isGit && rel == "logs/HEAD":
		for _, sig := range w.classifier.LogChanged(root) {
			w.emit(sig)
		}
	case isGit:
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.reestablish(ctx, event.Name)
		}
	default:
		if w.ignored(rel) {
			return
		}
		w.mu.Lock()
		w.pending[root] = rel
		d := w.debouncers[root]
		w.mu.Unlock()
		if d != nil {
			d.Trigger()
		}
	}
}

func (w *Watcher) flushPending(root string) {
	w.mu.Lock()
	rel, ok := w.pending[root]
	delete(w.pending, root)
	w.mu.Unlock()
	if !ok {
		return
	}
	for _, sig := range w.classifier.FileChanged(root, rel) {
		w.emit(sig)
	}
}

func (w *Watcher) reestablish(ctx context.Context, path string) {
	go func() {
		for _, delay := range reconnectDelays {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				if err := w.fsw.Add(path); err == nil {
					return
				}
			}
		}
		log.Printf("watch: failed to re-establish watch on %s", path)
	}()
}

func (w *Watcher) rootFor(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var best string
	for root := range w.roots {
		if path == root || (len(path) > len(root) && path[:len(root)+1] == root+string(filepath.Separator)) {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best
}

func (w *Watcher) ignored(rel string) bool {
	for _, pattern := range w.opts.IgnorePatterns {
		if ok, err := filepath.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) startPolling(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.pollOnce()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) pollOnce() {
	w.mu.Lock()
	roots := make([]string, 0, len(w.roots))
	for root := range w.roots {
		roots = append(roots, root)
	}
	w.mu.Unlock()

	for _, root := range roots {
		for _, sig := range w.classifier.HeadChanged(root) {
			w.emit(sig)
		}
		for _, sig := range w.classifier.LogChanged(root) {
			w.emit(sig)
		}
	}
}

func (w *Watcher) emit(sig Signal) {
	if w.onSignal != nil {
		w.onSignal(sig)
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	for _, d := range w.debouncers {
		d.Cancel()
	}
	w.mu.Unlock()

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
