package model

import (
	"fmt"
	"strings"
	"time"
)

// ChannelKind identifies one independent source of candidate text fragments.
type ChannelKind string

const (
	// ChannelSocket is the TCP line server fed by injected or external emitters.
	ChannelSocket ChannelKind = "socket"
	// ChannelAccessibility is the focused-element accessibility poller.
	ChannelAccessibility ChannelKind = "accessibility"
	// ChannelSystemEvent is the OS accessibility event subscription.
	ChannelSystemEvent ChannelKind = "system_event"
	// ChannelInstrumentation is the in-process hooking agent bridge.
	ChannelInstrumentation ChannelKind = "instrumentation"
	// ChannelStitcher marks text synthesized by the stitcher itself
	// (flushed buffers that no longer map to a single source fragment).
	ChannelStitcher ChannelKind = "stitcher"
)

// AllChannels lists every capture channel an orchestrator can run.
var AllChannels = []ChannelKind{
	ChannelSocket,
	ChannelAccessibility,
	ChannelSystemEvent,
	ChannelInstrumentation,
}

// ParseChannelKind parses a channel name from config or flags.
func ParseChannelKind(s string) (ChannelKind, error) {
	k := ChannelKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ChannelSocket, ChannelAccessibility, ChannelSystemEvent, ChannelInstrumentation:
		return k, nil
	}
	return "", fmt.Errorf("unknown channel %q (supported: socket, accessibility, system_event, instrumentation)", s)
}

// TextEvent is one deduplicated, debounced piece of on-screen text.
// Immutable once constructed; never persisted.
type TextEvent struct {
	// Text is the captured string, trimmed and stitched.
	Text string `json:"text"`
	// Source is the channel that observed the text.
	Source ChannelKind `json:"source"`
	// Label is provenance reported by the emitter (e.g. the hooked API),
	// empty when the channel has no finer-grained origin.
	Label string `json:"label,omitempty"`
	// ObservedAt is when the final fragment was accepted.
	ObservedAt time.Time `json:"observed_at"`
}

// StatusEvent is a human-readable notification about capture progress or a
// recovered failure. Status events flow through the same stream as text so
// the consumer sees them in order.
type StatusEvent struct {
	Message string      `json:"message"`
	Source  ChannelKind `json:"source,omitempty"`
	At      time.Time   `json:"at"`
}

// Event is the tagged union carried on the orchestrator's outbound stream.
// Exactly one of Text and Status is non-nil.
type Event struct {
	// SessionID tags the capture session that produced the event. Consumers
	// must discard events whose SessionID is not the current session's.
	SessionID uint64 `json:"session_id"`

	Text   *TextEvent   `json:"text_event,omitempty"`
	Status *StatusEvent `json:"status_event,omitempty"`
}

// IsText reports whether the event carries captured text.
func (e Event) IsText() bool { return e.Text != nil }

// IsStatus reports whether the event carries a status notification.
func (e Event) IsStatus() bool { return e.Status != nil }

// Bits is a process pointer width.
type Bits int

const (
	BitsUnknown Bits = 0
	Bits32      Bits = 32
	Bits64      Bits = 64
)

func (b Bits) String() string {
	switch b {
	case Bits32:
		return "x86"
	case Bits64:
		return "x64"
	}
	return "unknown"
}

// ArchitectureInfo is the per-session probe result. Delegation is attempted
// only when both values are known and unequal.
type ArchitectureInfo struct {
	TargetBits Bits `json:"target_bits"`
	HostBits   Bits `json:"host_bits"`
}

// Mismatched reports whether direct instrumentation is impossible and a
// helper of the target's width is required.
func (a ArchitectureInfo) Mismatched() bool {
	return a.TargetBits != BitsUnknown && a.HostBits != BitsUnknown && a.TargetBits != a.HostBits
}

// Process describes one candidate target process from the process directory.
type Process struct {
	PID  uint32 `json:"pid"`
	Name string `json:"name"`
	Exe  string `json:"exe,omitempty"`
	Bits Bits   `json:"bits,omitempty"`
}

// SessionOptions selects what a capture session runs.
type SessionOptions struct {
	// IPCPort is the loopback TCP port the socket channel binds. Zero keeps
	// the configured default.
	IPCPort uint16
	// Channels is the set of enabled channels. Empty means all.
	Channels []ChannelKind
	// PreferInstrumentationOnly suppresses accessibility and system-event
	// text (those channels stay up for diagnostics only).
	PreferInstrumentationOnly bool
	// AgentPath is the engine-specific instrumentation agent executable.
	// Empty disables the instrumentation channel.
	AgentPath string
	// RunningAsDelegate marks this process as a spawned helper; it must
	// never spawn another delegate.
	RunningAsDelegate bool
}

// ChannelEnabled reports whether kind is part of the session's channel set.
func (o SessionOptions) ChannelEnabled(kind ChannelKind) bool {
	if len(o.Channels) == 0 {
		return true
	}
	for _, k := range o.Channels {
		if k == kind {
			return true
		}
	}
	return false
}
