package delegate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/textgrab/textgrab/internal/model"
)

func TestFind_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	helper := filepath.Join(dir, "custom-helper.exe")
	if err := os.WriteFile(helper, []byte("fake"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Find(model.Bits32, []string{helper})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got != helper {
		t.Errorf("got %q, want %q", got, helper)
	}
}

func TestFind_MissingHelper(t *testing.T) {
	dir := t.TempDir()
	_, err := Find(model.Bits32, []string{filepath.Join(dir, "nope.exe")})
	if !errors.Is(err, ErrHelperNotFound) {
		t.Errorf("err = %v, want ErrHelperNotFound", err)
	}
}

func TestFind_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "textgrab-x86.exe")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Find(model.Bits32, []string{sub}); !errors.Is(err, ErrHelperNotFound) {
		t.Errorf("a directory must not count as a helper, err = %v", err)
	}
}

func TestCandidatePaths_ExtraFirst(t *testing.T) {
	paths := CandidatePaths(model.Bits32, []string{"/opt/first", "/opt/second"})
	if len(paths) < 2 || paths[0] != "/opt/first" || paths[1] != "/opt/second" {
		t.Errorf("explicit candidates must come first, got %v", paths[:2])
	}
}

func TestSpawn_RecursionGuard(t *testing.T) {
	var l Launcher
	err := l.Spawn("/does/not/matter", SpawnOptions{PID: 1, Port: 1, RunningAsDelegate: true})
	if !errors.Is(err, ErrRecursion) {
		t.Errorf("err = %v, want ErrRecursion", err)
	}
}

func TestSpawn_MissingBinary(t *testing.T) {
	var l Launcher
	err := l.Spawn(filepath.Join(t.TempDir(), "ghost.exe"), SpawnOptions{PID: 1, Port: 1})
	if err == nil {
		l.Terminate()
		t.Fatal("Spawn should fail for a missing binary")
	}
	if l.Running() {
		t.Error("failed spawn must not leave the launcher running")
	}
}

func TestTerminate_Idempotent(t *testing.T) {
	var l Launcher
	l.Terminate()
	l.Terminate()
}

func TestWatchForHelper_SeesArrival(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "textgrab-x86.exe")

	var hits atomic.Int32
	gotPath := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchForHelper(ctx, model.Bits32, []string{target}, func(path string) {
		hits.Add(1)
		gotPath <- path
	})
	if err != nil {
		t.Fatalf("WatchForHelper: %v", err)
	}

	if err := os.WriteFile(target, []byte("fake"), 0o755); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-gotPath:
		if filepath.Clean(p) != filepath.Clean(target) {
			t.Errorf("got %q, want %q", p, target)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("helper arrival not observed")
	}
	if hits.Load() != 1 {
		t.Errorf("found callback fired %d times, want 1", hits.Load())
	}
}

func TestWatchForHelper_UnrelatedFileIgnored(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "textgrab-x86.exe")

	called := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := WatchForHelper(ctx, model.Bits32, []string{target}, func(string) {
		called <- struct{}{}
	}); err != nil {
		t.Fatalf("WatchForHelper: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Fatal("unrelated file triggered the helper callback")
	case <-time.After(300 * time.Millisecond):
	}
}
