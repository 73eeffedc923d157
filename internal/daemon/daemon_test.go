package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tourplanner/tp/internal/planner"
	"github.com/tourplanner/tp/internal/schema"
)

// fakeImporter records imported tours.
type fakeImporter struct {
	mu       sync.Mutex
	imported []*schema.Tour
	backlogs int
	err      error
}

func (f *fakeImporter) ImportTours(ctx context.Context, tours []*schema.Tour, syncRoutes bool) (planner.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return planner.ImportResult{}, f.err
	}
	f.imported = append(f.imported, tours...)
	return planner.ImportResult{Imported: len(tours)}, nil
}

func (f *fakeImporter) InitializeBacklog(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backlogs++
	return 0, nil
}

func (f *fakeImporter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.imported {
		out = append(out, t.Name)
	}
	return out
}

// startDaemon runs a daemon on a fresh inbox and returns it with the
// channel of import events.
func startDaemon(t *testing.T, imp Importer, prepare func(dir string)) (*Daemon, <-chan ImportEvent) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "inbox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if prepare != nil {
		prepare(dir)
	}

	events := make(chan ImportEvent, 10)
	d, err := New(imp, dir, &Config{
		DebounceInterval: 20 * time.Millisecond,
		BacklogInterval:  10 * time.Millisecond,
		OnImport:         func(ev ImportEvent) { events <- ev },
		Logger:           log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Start() returned %v", err)
		}
	})
	return d, events
}

func waitEvent(t *testing.T, events <-chan ImportEvent) ImportEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for import")
		return ImportEvent{}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, "inbox", nil); err == nil {
		t.Error("New(nil importer) should fail")
	}
	if _, err := New(&fakeImporter{}, "", nil); err == nil {
		t.Error("New(empty dir) should fail")
	}
}

func TestDaemon_ImportsExistingFiles(t *testing.T) {
	imp := &fakeImporter{}
	d, events := startDaemon(t, imp, func(dir string) {
		writeFile(t, filepath.Join(dir, "a.json"), `[{"name":"Wachau","from":"Krems","to":"Melk"}]`)
		writeFile(t, filepath.Join(dir, "b.yaml"), "format_version: v1.0.0\ntours:\n  - name: Ennstal\n")
		writeFile(t, filepath.Join(dir, "ignored.txt"), "hello")
	})

	first := waitEvent(t, events)
	second := waitEvent(t, events)
	if first.Err != nil || second.Err != nil {
		t.Fatalf("import errors: %v, %v", first.Err, second.Err)
	}
	if got := strings.Join(imp.names(), ","); got != "Wachau,Ennstal" {
		t.Errorf("imported = %s, want Wachau,Ennstal", got)
	}

	for _, ev := range []ImportEvent{first, second} {
		if filepath.Dir(ev.MovedTo) != filepath.Join(d.Dir(), ProcessedDir) {
			t.Errorf("%s moved to %q, want processed/", ev.Path, ev.MovedTo)
		}
		if _, err := os.Stat(ev.Path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s still in inbox", ev.Path)
		}
	}
	if _, err := os.Stat(filepath.Join(d.Dir(), "ignored.txt")); err != nil {
		t.Errorf("non-import file was touched: %v", err)
	}
}

func TestDaemon_ImportsDroppedFile(t *testing.T) {
	imp := &fakeImporter{}
	d, events := startDaemon(t, imp, nil)

	// Give the watcher a moment after Start.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(d.Dir(), "drop.json"), `{"format_version":"v1.1.0","tours":[{"name":"Semmering"}]}`)

	ev := waitEvent(t, events)
	if ev.Err != nil {
		t.Fatalf("import failed: %v", ev.Err)
	}
	if ev.Result.Imported != 1 || len(ev.Tours) != 1 {
		t.Errorf("Imported = %d with %d tours, want 1", ev.Result.Imported, len(ev.Tours))
	}
	if got := imp.names(); len(got) != 1 || got[0] != "Semmering" {
		t.Errorf("imported = %v", got)
	}
}

func TestDaemon_BadFileMovedToFailed(t *testing.T) {
	imp := &fakeImporter{}
	d, events := startDaemon(t, imp, func(dir string) {
		writeFile(t, filepath.Join(dir, "broken.json"), `{"tours": [`)
	})

	ev := waitEvent(t, events)
	if ev.Err == nil {
		t.Fatal("expected import error for malformed JSON")
	}
	if filepath.Dir(ev.MovedTo) != filepath.Join(d.Dir(), FailedDir) {
		t.Errorf("moved to %q, want failed/", ev.MovedTo)
	}
	if len(imp.names()) != 0 {
		t.Errorf("nothing should be imported, got %v", imp.names())
	}
}

func TestDaemon_ImporterErrorMovesToFailed(t *testing.T) {
	imp := &fakeImporter{err: errors.New("database locked")}
	d, events := startDaemon(t, imp, func(dir string) {
		writeFile(t, filepath.Join(dir, "ok.json"), `[{"name":"Rax"}]`)
	})

	ev := waitEvent(t, events)
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "database locked") {
		t.Fatalf("Err = %v, want importer error", ev.Err)
	}
	if filepath.Dir(ev.MovedTo) != filepath.Join(d.Dir(), FailedDir) {
		t.Errorf("moved to %q, want failed/", ev.MovedTo)
	}
}

func TestDaemon_RetriesBacklog(t *testing.T) {
	imp := &fakeImporter{}
	startDaemon(t, imp, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		imp.mu.Lock()
		n := imp.backlogs
		imp.mu.Unlock()
		if n > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("backlog was never retried")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
