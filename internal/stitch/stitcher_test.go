package stitch

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

// collector is a thread-safe Emit sink; flush timers deliver from their own
// goroutines.
type collector struct {
	mu    sync.Mutex
	texts []string
}

func (c *collector) emit(text, _, _ string) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func newTestStitcher(cfg Config) (*Stitcher, *collector) {
	c := &collector{}
	return NewStitcher(cfg, c.emit), c
}

func TestStitcher_TypewriterConvergence(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	for i, f := range []string{"H", "He", "Hel", "Hell", "Hello"} {
		s.Offer(f, "", "socket", now.Add(time.Duration(i)*10*time.Millisecond))
	}
	s.FlushNow()

	if want := []string{"Hello"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_UnrelatedTextFlushesInOrder(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	s.Offer("Hello", "", "socket", now)
	s.Offer("Goodbye", "", "socket", now.Add(10*time.Millisecond))
	s.FlushNow()

	if want := []string{"Hello", "Goodbye"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_ExactRepeatIsSilent(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	s.Offer("Hello", "", "socket", now)
	s.Offer("Hello", "", "socket", now.Add(10*time.Millisecond))
	s.Offer("Hello", "", "accessibility", now.Add(20*time.Millisecond))
	s.FlushNow()

	if want := []string{"Hello"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_GrowthBound(t *testing.T) {
	s, c := newTestStitcher(Config{MaxGrowth: 10})
	now := time.Now()
	s.Offer("abc", "", "socket", now)
	// Shares the prefix but jumps far past the growth bound, so it is a new
	// sentence, not an extension.
	s.Offer("abcdefghijklmnopqrstuvwxyz", "", "socket", now.Add(10*time.Millisecond))
	s.FlushNow()

	if want := []string{"abc", "abcdefghijklmnopqrstuvwxyz"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_FlushTimer(t *testing.T) {
	s, c := newTestStitcher(Config{FlushAfter: 20 * time.Millisecond})
	s.Offer("Hello", "", "socket", time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for len(c.got()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if want := []string{"Hello"}; !reflect.DeepEqual(c.got(), want) {
		t.Fatalf("after timer: got %q, want %q", c.got(), want)
	}

	// A redraw of the already-flushed sentence stays silent.
	s.Offer("Hello", "", "socket", time.Now())
	s.FlushNow()
	if want := []string{"Hello"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("after redraw: got %q, want %q", c.got(), want)
	}
}

func TestCollapseDoubled(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TTeesstt", "Test"},
		{"GGaammee  OOvveerr", "Game Over"},
		{"HHeelllloo!!", "Hello!"},
		{"11--22", "1-2"},
		// Ordinary text with doubled letters must pass through untouched;
		// only a fully pair-doubled fragment is a rendering artifact.
		{"Hello", "Hello"},
		{"coffee", "coffee"},
		{"Hello world", "Hello world"},
		{"ab", "ab"},
		{"aabb mostly normal tail", "aabb mostly normal tail"},
		// Odd length can never be a doubled rendering.
		{"HHeelllloo!", "HHeelllloo!"},
	}
	for _, tt := range tests {
		if got := collapseDoubled(tt.in); got != tt.want {
			t.Errorf("collapseDoubled(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStitcher_DoubledFragment(t *testing.T) {
	s, c := newTestStitcher(Config{})
	s.Offer("TTeesstt", "", "socket", time.Now())
	s.FlushNow()

	if want := []string{"Test"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_DoubledLetterWordSurvivesPipeline(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	s.Offer("Hello", "", "socket", now)
	s.Offer("Goodbye", "", "socket", now.Add(10*time.Millisecond))
	s.FlushNow()

	if want := []string{"Hello", "Goodbye"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_SingleCharAccumulation(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	for i, f := range []string{"a", "b", "c"} {
		s.Offer(f, "", "socket", now.Add(time.Duration(i)*10*time.Millisecond))
	}
	s.FlushNow()

	if want := []string{"abc"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_RepeatedSingleCharCollapses(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Offer("!", "", "socket", now.Add(time.Duration(i)*10*time.Millisecond))
	}
	s.FlushNow()

	if want := []string{"!"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_SplitCapitalRejoin(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	s.Offer("W", "", "socket", now)
	s.Offer("elcome home", "", "socket", now.Add(100*time.Millisecond))
	s.FlushNow()

	if want := []string{"Welcome home"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_SplitCapitalExpires(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	s.Offer("W", "", "socket", now)
	s.Offer("elcome home", "", "socket", now.Add(3*time.Second))
	s.FlushNow()

	if want := []string{"elcome home"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_LoneCapitalEventuallyFlushes(t *testing.T) {
	s, c := newTestStitcher(Config{FlushAfter: 20 * time.Millisecond})
	s.Offer("I", "", "socket", time.Now())

	// No continuation ever arrives; the prefix demotes into the
	// single-character path and flushes from there.
	deadline := time.Now().Add(3 * time.Second)
	for len(c.got()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if want := []string{"I"}; !reflect.DeepEqual(c.got(), want) {
		t.Fatalf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_FlushNowIncludesPendingCapital(t *testing.T) {
	s, c := newTestStitcher(Config{})
	s.Offer("W", "", "socket", time.Now())
	s.FlushNow()

	if want := []string{"W"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_CharBufferJoinsContinuation(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	s.Offer("s", "", "socket", now)
	s.Offer("o", "", "socket", now.Add(10*time.Millisecond))
	s.Offer("rry about that", "", "socket", now.Add(20*time.Millisecond))
	s.FlushNow()

	if want := []string{"sorry about that"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_LargeFragmentBypass(t *testing.T) {
	s, c := newTestStitcher(Config{BypassLen: 10})
	now := time.Now()
	s.Offer("Hello", "", "socket", now)
	long := "The quick brown fox jumps over the lazy dog"
	s.Offer(long, "", "system_event", now.Add(10*time.Millisecond))

	if want := []string{"Hello", long}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_GarbageDropped(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	for _, f := range []string{
		"0x7ffe12345678",
		"DEADBEEF1234",
		`bad \\u0041 literal`,
		"averylongidentifierwithoutanyspacesatallthatkeepsgoingandgoing",
		"   ",
		"",
	} {
		s.Offer(f, "", "socket", now)
	}
	s.FlushNow()

	if got := c.got(); len(got) != 0 {
		t.Errorf("garbage emitted: %q", got)
	}
}

func TestStitcher_CJKLongTextKept(t *testing.T) {
	s, c := newTestStitcher(Config{})
	long := "これは五十文字を超える長い日本語の文章でも空白が無いというだけで捨てられてはいけないという確認のための文章です"
	s.Offer(long, "", "socket", time.Now())
	s.FlushNow()

	if want := []string{long}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}

func TestStitcher_StartupGrace(t *testing.T) {
	s, c := newTestStitcher(Config{StartupGrace: time.Hour})
	s.Offer("menu residue", "", "socket", time.Now())
	s.FlushNow()

	if got := c.got(); len(got) != 0 {
		t.Errorf("text accepted during startup grace: %q", got)
	}
}

func TestStitcher_Reset(t *testing.T) {
	s, c := newTestStitcher(Config{})
	now := time.Now()
	s.Offer("Hello", "", "socket", now)
	s.Reset()
	s.FlushNow()
	if got := c.got(); len(got) != 0 {
		t.Fatalf("buffered text survived Reset: %q", got)
	}

	// After Reset the same string is a fresh sentence again.
	s.Offer("Hello", "", "socket", now.Add(time.Second))
	s.FlushNow()
	if want := []string{"Hello"}; !reflect.DeepEqual(c.got(), want) {
		t.Errorf("got %q, want %q", c.got(), want)
	}
}
