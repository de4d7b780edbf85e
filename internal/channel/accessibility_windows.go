//go:build windows

package channel

import (
	"context"
	"sync"
	"time"

	"github.com/textgrab/textgrab/internal/model"
)

// Accessibility polls the focused element of the target while it holds the
// foreground, trying progressively blunter read strategies. Polling is the
// slowest channel but works against targets that expose nothing better.
type Accessibility struct {
	pid      uint32
	interval time.Duration
	sink     Sink

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAccessibility creates the poller. interval <= 0 selects 200ms.
func NewAccessibility(pid uint32, interval time.Duration, sink Sink) *Accessibility {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Accessibility{pid: pid, interval: interval, sink: sink}
}

func (c *Accessibility) Kind() model.ChannelKind { return model.ChannelAccessibility }

func (c *Accessibility) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.loop(ctx, done)
	return nil
}

func (c *Accessibility) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Accessibility) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		text, label := c.readFocused()
		if text == "" || text == last {
			continue
		}
		last = text
		c.sink.Text(c.Kind(), text, label)
	}
}

// readFocused reads text from the target's focused element. Strategies in
// order: the focused control's WM_GETTEXT, the foreground window's
// WM_GETTEXT, the window caption. Returns "" when the target is not in the
// foreground; reading a background target's focus state is not possible
// through this API.
func (c *Accessibility) readFocused() (text, label string) {
	hwnd := foregroundWindow()
	if hwnd == 0 {
		return "", ""
	}
	tid, pid := windowThreadProcessID(hwnd)
	if pid != c.pid {
		return "", ""
	}

	if focus := focusedControl(tid); focus != 0 && focus != hwnd {
		if t := sendGetText(focus); t != "" {
			return t, "focus"
		}
	}
	if t := sendGetText(hwnd); t != "" {
		return t, "window"
	}
	if t := windowTitle(hwnd); t != "" {
		return t, "title"
	}
	return "", ""
}
