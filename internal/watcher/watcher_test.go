package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcher_DebouncedChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "price_list.xlsx")
	other := filepath.Join(dir, "notes.txt")

	var mu sync.Mutex
	changed := make(map[string]int)
	w := NewWatcher([]string{target}, func(path string) {
		mu.Lock()
		changed[path]++
		mu.Unlock()
	}, zap.NewNop())
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Several quick writes collapse into one callback.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(target, []byte("data"), 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := os.WriteFile(other, []byte("ignored"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := changed[target]
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for change callback")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give any stray debounce timers a chance to fire.
	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if changed[target] != 1 {
		t.Errorf("expected 1 debounced callback, got %d", changed[target])
	}
	if changed[other] != 0 {
		t.Errorf("unwatched file triggered callback")
	}
}

func TestWatcher_StartStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{filepath.Join(dir, "a.xlsx")}, nil, zap.NewNop())

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	w.Stop()
	w.Stop()
}
