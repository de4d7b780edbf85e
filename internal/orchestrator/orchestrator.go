// Package orchestrator owns capture sessions: it starts and stops the
// channels, funnels their fragments through the stitch pipeline, and
// delivers a single ordered event stream to the consumer.
package orchestrator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"pkt.systems/pslog"

	"github.com/textgrab/textgrab/internal/channel"
	"github.com/textgrab/textgrab/internal/config"
	"github.com/textgrab/textgrab/internal/delegate"
	"github.com/textgrab/textgrab/internal/ingest"
	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/otel"
	"github.com/textgrab/textgrab/internal/proc"
	"github.com/textgrab/textgrab/internal/stitch"
)

const (
	// stopJoinTimeout bounds how long Stop waits for channel goroutines.
	// Channels that miss the deadline are abandoned; their late fragments
	// are discarded by the session id check.
	stopJoinTimeout = 1500 * time.Millisecond
	// eventBuffer is the outbound stream capacity. A consumer that stalls
	// longer than this loses events rather than wedging capture.
	eventBuffer = 256
)

// Orchestrator runs at most one capture session at a time. Starting a new
// session invalidates the previous one; events from superseded sessions
// never reach the stream.
type Orchestrator struct {
	cfg     *config.Config
	metrics *otel.Metrics

	events chan model.Event

	// sessionID only grows. A session's events are valid while its id
	// equals the current value.
	sessionID atomic.Uint64

	mu      sync.Mutex
	current *session
}

// New creates an orchestrator. metrics may be nil.
func New(cfg *config.Config, metrics *otel.Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		metrics: metrics,
		events:  make(chan model.Event, eventBuffer),
	}
}

// Events returns the outbound stream. Text and status events for a session
// appear in emission order; consumers should drop events whose SessionID
// does not match the most recent Start.
func (o *Orchestrator) Events() <-chan model.Event {
	return o.events
}

// SessionID returns the id of the most recently started session.
func (o *Orchestrator) SessionID() uint64 {
	return o.sessionID.Load()
}

// SocketAddr returns the ingest listener address of the current session, or
// nil when no session or socket channel is up. Useful with port 0.
func (o *Orchestrator) SocketAddr() net.Addr {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.current.server == nil {
		return nil
	}
	return o.current.server.Addr()
}

// RequestLearn is accepted for compatibility with older capture frontends
// that submitted a sample of the on-screen text to train capture against.
// The stitch pipeline no longer needs a training phase, so the sample is
// discarded.
func (o *Orchestrator) RequestLearn(sample string) {}

// Start begins capturing from pid, stopping any previous session first. The
// returned ArchitectureInfo reflects the probe; a mismatch means capture was
// delegated to a helper process. Start only fails on invalid options; a
// channel that cannot come up degrades the session and reports a status
// event instead.
func (o *Orchestrator) Start(ctx context.Context, pid uint32, opts model.SessionOptions) (model.ArchitectureInfo, error) {
	if pid == 0 {
		return model.ArchitectureInfo{}, fmt.Errorf("orchestrator: target pid is required")
	}
	o.Stop()

	id := o.sessionID.Add(1)
	sctx, cancel := context.WithCancel(ctx)
	port := o.cfg.Port
	if opts.IPCPort != 0 {
		port = opts.IPCPort
	}
	s := &session{
		o:      o,
		id:     id,
		pid:    pid,
		port:   port,
		opts:   opts,
		ctx:    sctx,
		cancel: cancel,
	}
	s.debouncer = stitch.NewDebouncer(o.cfg.DebounceDuration, 0)
	s.stitcher = stitch.NewStitcher(stitch.Config{
		FlushAfter:   o.cfg.FlushAfterDuration,
		StartupGrace: o.cfg.StartupGraceDuration,
	}, s.onStitched)

	log := pslog.Ctx(ctx).With("session", id, "pid", pid)
	arch := proc.Probe(pid)
	log.Info("capture session starting",
		"target_bits", arch.TargetBits.String(),
		"host_bits", arch.HostBits.String())

	// A mismatched target cannot be instrumented from this process. The
	// socket server stays here; the helper connects to it as a client.
	// An unknown width is not a mismatch: proceed optimistically.
	delegated := arch.Mismatched() && !opts.RunningAsDelegate

	s.startSocket(sctx)
	if delegated {
		s.startDelegation(sctx, arch)
	} else {
		s.startLocalChannels(sctx)
	}

	o.mu.Lock()
	o.current = s
	o.mu.Unlock()

	o.metrics.RecordSessionStart(sctx)
	return arch, nil
}

// Stop ends the current session, if any. Pending stitch buffers are flushed
// before the session is invalidated so a typewriter sentence that was still
// accumulating is not lost.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	s := o.current
	o.current = nil
	o.mu.Unlock()
	if s == nil {
		return
	}

	s.stitcher.FlushNow()
	o.sessionID.Add(1)

	s.cancel()
	if s.server != nil {
		s.server.Close()
	}
	if s.launcher != nil {
		s.launcher.Terminate()
	}

	var wg sync.WaitGroup
	for _, ch := range s.channels {
		wg.Add(1)
		go func(ch channel.Channel) {
			defer wg.Done()
			ch.Stop()
		}(ch)
	}
	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(stopJoinTimeout):
		pslog.Ctx(s.ctx).Warn("abandoning slow channels", "session", s.id)
	}
}

type session struct {
	o    *Orchestrator
	id   uint64
	pid  uint32
	port uint16
	opts model.SessionOptions

	ctx    context.Context
	cancel context.CancelFunc

	stitcher  *stitch.Stitcher
	debouncer *stitch.Debouncer

	server   *ingest.Server
	channels []channel.Channel
	launcher *delegate.Launcher
}

func (s *session) stale() bool {
	return s.o.sessionID.Load() != s.id
}

func (s *session) sink() channel.Sink {
	return channel.Sink{
		Text:   s.offerFragment,
		Status: s.postStatus,
	}
}

// startSocket brings up the ingest server. A bind failure (the usual cause
// is a second capture session on the same port) degrades to a status event.
func (s *session) startSocket(ctx context.Context) {
	if !s.opts.ChannelEnabled(model.ChannelSocket) {
		return
	}
	srv := ingest.NewServer(s.o.cfg.Host, s.port, s.pid)
	srv.OnText = func(text, label string) {
		s.offerFragment(model.ChannelSocket, text, label)
	}
	srv.OnStatus = func(message string) {
		s.postStatus(model.ChannelSocket, message)
	}
	if err := srv.Start(ctx); err != nil {
		s.o.metrics.RecordChannelError(ctx, string(model.ChannelSocket))
		s.postStatus(model.ChannelSocket, fmt.Sprintf("socket channel unavailable: %v", err))
		return
	}
	s.server = srv
}

// startLocalChannels starts the in-process capture channels for a width-
// compatible target.
func (s *session) startLocalChannels(ctx context.Context) {
	if s.opts.ChannelEnabled(model.ChannelAccessibility) {
		s.startChannel(ctx, channel.NewAccessibility(s.pid, s.o.cfg.PollIntervalDuration, s.sink()))
	}
	if s.opts.ChannelEnabled(model.ChannelSystemEvent) {
		s.startChannel(ctx, channel.NewSysEvent(s.pid, s.sink()))
	}
	if s.opts.ChannelEnabled(model.ChannelInstrumentation) && s.opts.AgentPath != "" {
		s.startChannel(ctx, channel.NewInstrumentation(s.opts.AgentPath, s.pid, s.port, s.sink()))
	}
}

func (s *session) startChannel(ctx context.Context, ch channel.Channel) {
	if err := ch.Start(ctx); err != nil {
		s.o.metrics.RecordChannelError(ctx, string(ch.Kind()))
		s.postStatus(ch.Kind(), fmt.Sprintf("channel failed to start: %v", err))
		return
	}
	s.channels = append(s.channels, ch)
}

// startDelegation hands the session to a helper binary of the target's
// width. When no helper exists the session degrades to socket-only capture
// and watches for the helper to be dropped into place.
func (s *session) startDelegation(ctx context.Context, arch model.ArchitectureInfo) {
	s.launcher = &delegate.Launcher{}
	s.postStatus("", fmt.Sprintf("target is %s, this process is %s: delegating capture",
		arch.TargetBits, arch.HostBits))

	path, err := delegate.Find(arch.TargetBits, s.o.cfg.HelperPaths)
	if err != nil {
		s.postStatus("", fmt.Sprintf("未找到 %s helper binary; running socket-only until one appears", arch.TargetBits))
		s.watchForHelper(ctx, arch)
		return
	}
	s.spawnHelper(ctx, path)
}

func (s *session) watchForHelper(ctx context.Context, arch model.ArchitectureInfo) {
	err := delegate.WatchForHelper(ctx, arch.TargetBits, s.o.cfg.HelperPaths, func(path string) {
		if s.stale() {
			return
		}
		s.spawnHelper(ctx, path)
	})
	if err != nil {
		pslog.Ctx(ctx).Warn("helper watch unavailable", "error", err.Error())
	}
}

func (s *session) spawnHelper(ctx context.Context, path string) {
	err := s.launcher.Spawn(path, delegate.SpawnOptions{
		PID:                       s.pid,
		Port:                      s.port,
		PreferInstrumentationOnly: s.opts.PreferInstrumentationOnly,
		RunningAsDelegate:         s.opts.RunningAsDelegate,
	})
	if err != nil {
		s.postStatus("", fmt.Sprintf("helper spawn failed: %v", err))
		return
	}
	s.o.metrics.RecordDelegateSpawn(ctx)
	s.postStatus("", fmt.Sprintf("capture delegated to %s", path))
}

// offerFragment feeds one raw fragment into the pipeline.
func (s *session) offerFragment(source model.ChannelKind, text, label string) {
	if s.stale() {
		return
	}
	if s.opts.PreferInstrumentationOnly &&
		(source == model.ChannelAccessibility || source == model.ChannelSystemEvent) {
		// These channels stay up for diagnostics but their text is noise
		// when the instrumentation hook is trusted.
		return
	}
	s.o.metrics.RecordFragment(s.ctx, string(source))
	s.stitcher.Offer(text, label, string(source), time.Now())
}

// onStitched receives completed lines from the stitcher and applies
// truncation and dedup before emission.
func (s *session) onStitched(text, label, source string) {
	if s.stale() {
		return
	}
	text = truncateRunes(text, s.o.cfg.MaxChars)
	if !s.debouncer.ShouldEmit(text, time.Now()) {
		s.o.metrics.RecordSuppressed(s.ctx)
		return
	}

	kind := model.ChannelKind(source)
	if kind == "" {
		kind = model.ChannelStitcher
	}
	s.o.metrics.RecordText(s.ctx, string(kind))
	s.emit(model.Event{
		SessionID: s.id,
		Text: &model.TextEvent{
			Text:       text,
			Source:     kind,
			Label:      label,
			ObservedAt: time.Now(),
		},
	})
}

func (s *session) postStatus(source model.ChannelKind, message string) {
	if s.stale() {
		return
	}
	s.emit(model.Event{
		SessionID: s.id,
		Status: &model.StatusEvent{
			Message: message,
			Source:  source,
			At:      time.Now(),
		},
	})
}

// emit delivers without blocking; a stalled consumer loses events instead of
// wedging the capture goroutines.
func (s *session) emit(ev model.Event) {
	select {
	case s.o.events <- ev:
	default:
		pslog.Ctx(s.ctx).Warn("event stream full, dropping event", "session", s.id)
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
