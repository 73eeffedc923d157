// Package daemon runs the tour inbox.
//
// The daemon:
//  1. Imports every tour file already sitting in the inbox directory
//  2. Watches the inbox for new export files (.json, .yaml, .yml, .jsonl)
//  3. Imports each file once it has stopped changing, then moves it to
//     processed/ or failed/
//  4. Optionally retries unsynced routes on an interval
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tourplanner/tp/internal/planner"
	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/transfer"
)

// Subdirectories of the inbox that receive handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Importer stores imported tours.
type Importer interface {
	ImportTours(ctx context.Context, tours []*schema.Tour, syncRoutes bool) (planner.ImportResult, error)
	InitializeBacklog(ctx context.Context) (int, error)
}

// ImportEvent reports one handled inbox file.
type ImportEvent struct {
	Path    string
	MovedTo string
	// Tours holds the stored tours, with their new ids, on success.
	Tours  []*schema.Tour
	Result planner.ImportResult
	Err    error
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must stay unchanged before it
	// is imported.
	DebounceInterval time.Duration

	// BacklogInterval is how often unsynced routes are retried. Zero
	// disables retries.
	BacklogInterval time.Duration

	// SyncRoutes resolves routes of imported tours before the file is
	// moved away.
	SyncRoutes bool

	// OnImport is called after every handled file.
	OnImport func(ImportEvent)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		SyncRoutes:       true,
		Logger:           log.New(os.Stderr, "[inbox] ", log.LstdFlags),
	}
}

// Daemon orchestrates inbox watching and importing.
type Daemon struct {
	importer Importer
	dir      string
	config   *Config

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon for dir. A nil config uses DefaultConfig.
func New(importer Importer, dir string, config *Config) (*Daemon, error) {
	if importer == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		importer:    importer,
		dir:         abs,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Dir returns the absolute inbox directory.
func (d *Daemon) Dir() string {
	return d.dir
}

// Start creates the inbox, imports files already present and watches for
// new ones. It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting inbox daemon on %s", d.dir)

	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(d.dir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	// Watch before scanning so that a file dropped in between is seen by
	// at least one of the two.
	if err := d.watcher.Start(d.dir); err != nil {
		return err
	}

	if _, err := d.ScanInbox(); err != nil {
		_ = d.Stop()
		return fmt.Errorf("initial scan failed: %w", err)
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	if d.config.BacklogInterval > 0 {
		d.wg.Add(1)
		go d.retryBacklog()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. Files being imported finish
// first.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping inbox daemon")
		d.cancel()
		err = d.watcher.Stop()
		d.wg.Wait()
		d.config.Logger.Println("Inbox daemon stopped")
	})
	return err
}

// ScanInbox imports every import file currently in the inbox, oldest
// name first. It returns the number of files handled.
func (d *Daemon) ScanInbox() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImportFile(e.Name()) {
			paths = append(paths, filepath.Join(d.dir, e.Name()))
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		d.importFile(path)
	}
	return len(paths), nil
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			if event.Op == OpDelete {
				d.dropChange(event.Path)
				continue
			}
			d.queueChange(event.Path)

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange (re)starts the debounce timer of path.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[path] = time.Now()
}

func (d *Daemon) dropChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	delete(d.changeQueue, path)
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges imports files that have been quiet for the
// debounce interval.
func (d *Daemon) processPendingChanges() {
	now := time.Now()

	d.changeQueueMu.Lock()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) >= d.config.DebounceInterval {
			ready = append(ready, path)
			delete(d.changeQueue, path)
		}
	}
	d.changeQueueMu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		if d.ctx.Err() != nil {
			return
		}
		d.importFile(path)
	}
}

// importFile imports one file and moves it out of the inbox.
func (d *Daemon) importFile(path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}
	d.config.Logger.Printf("Importing %s", path)

	ev := ImportEvent{Path: path}
	tours, err := transfer.ImportFile(path, transfer.FormatFromPath(path))
	if err == nil {
		ev.Result, err = d.importer.ImportTours(d.ctx, tours, d.config.SyncRoutes)
	}
	ev.Err = err

	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		d.config.Logger.Printf("Error importing %s: %v", path, err)
	} else {
		ev.Tours = tours
		d.config.Logger.Printf("Imported %d tours from %s (%d routes synced)",
			ev.Result.Imported, filepath.Base(path), ev.Result.Synced)
	}

	moved, mvErr := d.moveTo(path, dest)
	if mvErr != nil {
		d.config.Logger.Printf("Error moving %s: %v", path, mvErr)
	}
	ev.MovedTo = moved

	if d.config.OnImport != nil {
		d.config.OnImport(ev)
	}
}

// moveTo renames path into the given inbox subdirectory, prefixing the
// name with a timestamp so repeated drops of the same file do not clash.
func (d *Daemon) moveTo(path, sub string) (string, error) {
	name := time.Now().UTC().Format("20060102T150405.000") + "-" + filepath.Base(path)
	dest := filepath.Join(d.dir, sub, name)
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (d *Daemon) retryBacklog() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.BacklogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			n, err := d.importer.InitializeBacklog(d.ctx)
			if err != nil {
				d.config.Logger.Printf("Error retrying backlog: %v", err)
			} else if n > 0 {
				d.config.Logger.Printf("Backlog retry synced %d tours", n)
			}
		}
	}
}
