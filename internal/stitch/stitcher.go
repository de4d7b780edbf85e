package stitch

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultFlushAfter is the silence interval that ends a typewriter
	// sentence.
	DefaultFlushAfter = 300 * time.Millisecond
	// DefaultMaxGrowth bounds a single prefix-extension step; a larger jump
	// means the new fragment is unrelated text that happens to share a
	// prefix.
	DefaultMaxGrowth = 50
	// DefaultBypassLen is the fragment length above which stitching is
	// skipped entirely; window-message sources deliver whole paragraphs.
	DefaultBypassLen = 2000
	// splitPrefixWindow is how long a lone capital letter waits for its
	// lowercase continuation. Some renderers draw the initial capital of a
	// sentence as a separate call.
	splitPrefixWindow = 1200 * time.Millisecond
)

// Emit receives each stitched line together with the provenance of the last
// fragment that contributed to it. Called without internal locks held.
type Emit func(text, label, source string)

// Config tunes the stitcher. Zero values select the defaults.
type Config struct {
	FlushAfter   time.Duration
	MaxGrowth    int
	BypassLen    int
	StartupGrace time.Duration
}

// Stitcher reconciles single-character and prefix-extension fragments into
// complete lines before they reach the Debouncer. All rules re-arm a
// single-shot flush timer; the timer callback takes the same lock as Offer,
// so an arriving fragment and an in-flight flush cannot race.
type Stitcher struct {
	mu   sync.Mutex
	cfg  Config
	emit Emit

	startedAt time.Time

	// Growing sentence buffer ("H", "He", "Hel", ...).
	growBuf    string
	growLabel  string
	growSource string
	growSent   bool
	growTimer  *time.Timer

	// Isolated one-character fragments awaiting promotion or flush.
	charBuf    string
	charLabel  string
	charSource string
	charTimer  *time.Timer

	// A lone capital letter waiting for its lowercase continuation. The
	// timer demotes it into the single-character buffer when nothing ever
	// arrives, so a genuine one-word sentence ("I") still flushes.
	pendingPrefix   string
	pendingLabel    string
	pendingSource   string
	pendingPrefixAt time.Time
	prefixTimer     *time.Timer
}

// NewStitcher creates a stitcher delivering finished lines to emit.
func NewStitcher(cfg Config, emit Emit) *Stitcher {
	if cfg.FlushAfter <= 0 {
		cfg.FlushAfter = DefaultFlushAfter
	}
	if cfg.MaxGrowth <= 0 {
		cfg.MaxGrowth = DefaultMaxGrowth
	}
	if cfg.BypassLen <= 0 {
		cfg.BypassLen = DefaultBypassLen
	}
	return &Stitcher{cfg: cfg, emit: emit, startedAt: time.Now()}
}

// Reset drops all buffered state and restarts the startup grace period.
// Called at session start.
func (s *Stitcher) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	s.growBuf, s.growLabel, s.growSource, s.growSent = "", "", "", false
	s.charBuf, s.charLabel, s.charSource = "", "", ""
	s.pendingPrefix = ""
	s.startedAt = time.Now()
}

// Offer feeds one raw fragment into the state machine.
func (s *Stitcher) Offer(fragment, label, source string, now time.Time) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}

	s.mu.Lock()
	if s.cfg.StartupGrace > 0 && now.Sub(s.startedAt) < s.cfg.StartupGrace {
		s.mu.Unlock()
		return
	}
	if isGarbage(fragment) {
		s.mu.Unlock()
		return
	}

	// Heuristic priority is fixed: doubling-collapse first, then the
	// prefix rules. A doubled fragment must never be mistaken for a
	// prefix extension of its un-doubled form.
	fragment = collapseDoubled(fragment)

	var out []emission
	fragment, out = s.rejoinSplitPrefixLocked(fragment, label, source, now, out)

	switch {
	case fragment == "":
		// Consumed as a pending prefix.
	case utf8.RuneCountInString(fragment) == 1:
		out = s.offerSingleLocked(fragment, label, source, now, out)
	case len(fragment) > s.cfg.BypassLen:
		// Already a complete line; skip the state machine.
		out = s.forceFlushLocked(out)
		out = append(out, emission{fragment, label, source})
	default:
		out = s.offerSentenceLocked(fragment, label, source, out)
	}
	s.mu.Unlock()

	s.dispatch(out)
}

// FlushNow force-flushes all pending buffers, e.g. at session stop.
func (s *Stitcher) FlushNow() {
	s.mu.Lock()
	out := s.forceFlushLocked(nil)
	s.stopTimersLocked()
	s.mu.Unlock()
	s.dispatch(out)
}

type emission struct{ text, label, source string }

func (s *Stitcher) dispatch(out []emission) {
	for _, e := range out {
		s.emit(e.text, e.label, e.source)
	}
}

// rejoinSplitPrefixLocked implements the split-capital artifact: a lone
// ASCII capital followed shortly by a lowercase continuation is re-joined.
// Returns the (possibly joined) fragment, or "" when the fragment was
// stored as the new pending prefix. A prefix superseded by a fragment it
// cannot join is dropped, matching the one-letter carry of the renderers
// that produce the artifact.
func (s *Stitcher) rejoinSplitPrefixLocked(fragment, label, source string, now time.Time, out []emission) (string, []emission) {
	if s.pendingPrefix != "" {
		if now.Sub(s.pendingPrefixAt) <= splitPrefixWindow &&
			len(fragment) >= 2 &&
			isLowerASCII(fragment[0]) &&
			!strings.HasPrefix(fragment, s.pendingPrefix) {
			fragment = s.pendingPrefix + fragment
		}
		s.clearPrefixLocked()
	}

	if len(fragment) == 1 && isUpperASCII(fragment[0]) && s.growBuf == "" && s.charBuf == "" {
		s.pendingPrefix = fragment
		s.pendingLabel = label
		s.pendingSource = source
		s.pendingPrefixAt = now
		if s.prefixTimer != nil {
			s.prefixTimer.Stop()
		}
		s.prefixTimer = time.AfterFunc(splitPrefixWindow, s.onPrefixTimer)
		return "", out
	}
	return fragment, out
}

func (s *Stitcher) clearPrefixLocked() {
	s.pendingPrefix = ""
	if s.prefixTimer != nil {
		s.prefixTimer.Stop()
		s.prefixTimer = nil
	}
}

// onPrefixTimer fires when no continuation arrived in time: the capital was
// a real one-character fragment after all, so it joins the regular
// single-character path and flushes from there.
func (s *Stitcher) onPrefixTimer() {
	s.mu.Lock()
	if s.pendingPrefix != "" {
		s.charBuf += s.pendingPrefix
		if s.pendingLabel != "" {
			s.charLabel = s.pendingLabel
		}
		s.charSource = s.pendingSource
		s.pendingPrefix = ""
		s.armCharTimerLocked()
	}
	s.mu.Unlock()
}

// offerSingleLocked accumulates a printable one-rune fragment into the
// single-character buffer.
func (s *Stitcher) offerSingleLocked(fragment, label, source string, _ time.Time, out []emission) []emission {
	r, _ := utf8.DecodeRuneInString(fragment)
	if !unicode.IsPrint(r) {
		return out
	}
	s.charBuf += fragment
	if label != "" {
		s.charLabel = label
	}
	s.charSource = source
	s.armCharTimerLocked()
	return out
}

// offerSentenceLocked runs the growing-buffer rules for a multi-rune
// fragment.
func (s *Stitcher) offerSentenceLocked(fragment, label, source string, out []emission) []emission {
	if s.growBuf != "" {
		// Exact repeat: redraws of an already-captured sentence stay
		// silent. No timer reset, no emission.
		if fragment == s.growBuf {
			return out
		}
		// Prefix extension: the typewriter added characters.
		if strings.HasPrefix(fragment, s.growBuf) &&
			len(fragment) > len(s.growBuf) &&
			len(fragment)-len(s.growBuf) < s.cfg.MaxGrowth {
			s.growBuf = fragment
			if label != "" {
				s.growLabel = label
			}
			s.growSource = source
			s.growSent = false
			s.armGrowTimerLocked()
			return out
		}
	}

	// Unrelated fragment: a new sentence begins. Flush whatever is pending.
	if s.growBuf != "" && !s.growSent {
		out = append(out, emission{s.growBuf, s.growLabel, s.growSource})
	}

	if norm := normalizeRun(s.charBuf); norm != "" {
		switch {
		case strings.HasPrefix(fragment, norm):
			// The sentence supersedes the accumulated characters.
		case utf8.RuneCountInString(norm) <= 6 && !strings.HasSuffix(norm, " "):
			// Short typewriter head glued to its continuation.
			fragment = norm + fragment
		default:
			out = append(out, emission{norm, s.charLabel, s.charSource})
		}
		s.charBuf = ""
		s.stopCharTimerLocked()
	}

	s.growBuf = fragment
	s.growLabel = label
	s.growSource = source
	s.growSent = false
	s.armGrowTimerLocked()
	return out
}

// forceFlushLocked emits any unsent buffers immediately.
func (s *Stitcher) forceFlushLocked(out []emission) []emission {
	if s.growBuf != "" && !s.growSent {
		out = append(out, emission{s.growBuf, s.growLabel, s.growSource})
		s.growSent = true
	}
	if s.pendingPrefix != "" {
		s.charBuf += s.pendingPrefix
		if s.pendingLabel != "" {
			s.charLabel = s.pendingLabel
		}
		if s.charSource == "" {
			s.charSource = s.pendingSource
		}
		s.clearPrefixLocked()
	}
	if norm := normalizeRun(s.charBuf); norm != "" {
		out = append(out, emission{norm, s.charLabel, s.charSource})
	}
	s.charBuf = ""
	return out
}

func (s *Stitcher) armGrowTimerLocked() {
	if s.growTimer != nil {
		s.growTimer.Stop()
	}
	s.growTimer = time.AfterFunc(s.cfg.FlushAfter, s.onGrowTimer)
}

func (s *Stitcher) armCharTimerLocked() {
	if s.charTimer != nil {
		s.charTimer.Stop()
	}
	s.charTimer = time.AfterFunc(s.cfg.FlushAfter, s.onCharTimer)
}

func (s *Stitcher) stopCharTimerLocked() {
	if s.charTimer != nil {
		s.charTimer.Stop()
		s.charTimer = nil
	}
}

func (s *Stitcher) stopTimersLocked() {
	if s.growTimer != nil {
		s.growTimer.Stop()
		s.growTimer = nil
	}
	s.stopCharTimerLocked()
	if s.prefixTimer != nil {
		s.prefixTimer.Stop()
		s.prefixTimer = nil
	}
}

// onGrowTimer fires after FlushAfter of silence: the sentence is complete.
// The buffer is kept (with growSent set) so later redraws of the same
// string are ignored rather than re-emitted.
func (s *Stitcher) onGrowTimer() {
	s.mu.Lock()
	var out []emission
	if s.growBuf != "" && !s.growSent {
		out = append(out, emission{s.growBuf, s.growLabel, s.growSource})
		s.growSent = true
	}
	s.mu.Unlock()
	s.dispatch(out)
}

func (s *Stitcher) onCharTimer() {
	s.mu.Lock()
	var out []emission
	if norm := normalizeRun(s.charBuf); norm != "" {
		out = append(out, emission{norm, s.charLabel, s.charSource})
	}
	s.charBuf = ""
	s.mu.Unlock()
	s.dispatch(out)
}

// collapseDoubled undoes the shadow-rendering artifact where every glyph is
// drawn twice ("GGaammee"). Only a fragment that is doubled in full
// collapses: even rune count and every disjoint pair identical. Anything
// less passes through untouched; ordinary words carrying a doubled letter
// ("Hello", "coffee") must never be altered.
func collapseDoubled(s string) string {
	runes := []rune(s)
	if len(runes) < 4 || len(runes)%2 != 0 {
		return s
	}
	for i := 0; i+1 < len(runes); i += 2 {
		if runes[i] != runes[i+1] {
			return s
		}
	}
	var b strings.Builder
	b.Grow(len(s) / 2)
	for i := 0; i < len(runes); i += 2 {
		b.WriteRune(runes[i])
	}
	return b.String()
}

// normalizeRun reduces a single-character accumulation buffer before flush:
// an all-identical run collapses to one rune, and a fully pair-doubled run
// collapses pairwise. Repeated redraws of a single glyph otherwise look like
// a word.
func normalizeRun(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return ""
	}
	allSame := true
	for _, r := range runes[1:] {
		if r != runes[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return string(runes[0])
	}
	return collapseDoubled(s)
}

// isGarbage drops fragments that are rendering-engine internals rather than
// prose: hex pointers, hex dumps, literal escape sequences, and very long
// space-free non-CJK identifiers.
func isGarbage(s string) bool {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return true
	}
	if strings.Contains(s, `\u`) {
		return true
	}
	if len(s) >= 8 && isHex(s) {
		return true
	}
	if len(s) > 50 && !strings.ContainsRune(s, ' ') && !containsCJK(s) {
		return true
	}
	return false
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x3000 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

func isUpperASCII(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLowerASCII(c byte) bool { return c >= 'a' && c <= 'z' }
