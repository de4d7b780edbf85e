package ingest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/textgrab/textgrab/internal/wire"
)

const (
	// maxTextPerSecond bounds how fast a client floods the capture side. A
	// hooked render loop can fire hundreds of times per second; past this
	// rate the extra lines carry no information.
	maxTextPerSecond = 20
	// connectLogThrottle spaces out connection-failure log lines. The
	// capture side being down is a steady state, not twenty errors a
	// second.
	connectLogThrottle = 5 * time.Second
	dialTimeout        = 500 * time.Millisecond
)

// Client is the emitting side of the line protocol: it connects to the
// capture process's ingest port and writes pid-stamped lines, reconnecting
// and rate limiting as needed. Safe for concurrent use.
type Client struct {
	addr string
	pid  uint32

	mu          sync.Mutex
	conn        net.Conn
	lastConnLog time.Time
	windowStart time.Time
	windowSent  int
	closed      bool
}

// NewClient creates a client targeting host:port on behalf of pid.
func NewClient(host string, port uint16, pid uint32) *Client {
	return &Client{addr: fmt.Sprintf("%s:%d", host, port), pid: pid}
}

// SendText sends a captured text line. Texts beyond the per-second budget
// are dropped.
func (c *Client) SendText(ctx context.Context, text, label string) {
	if text == "" {
		return
	}
	c.send(ctx, wire.Line{PID: int(c.pid), Text: text, Label: label}, true)
}

// SendStatus sends a status line. Statuses are rare and bypass the rate
// limit.
func (c *Client) SendStatus(ctx context.Context, status string) {
	if status == "" {
		return
	}
	c.send(ctx, wire.Line{PID: int(c.pid), Status: status}, false)
}

func (c *Client) send(ctx context.Context, l wire.Line, limited bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if limited && !c.allowLocked() {
		return
	}
	if c.conn == nil && !c.connectLocked(ctx) {
		return
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	if _, err := c.conn.Write(l.Encode()); err != nil {
		// Drop the line and the connection; the next send redials.
		_ = c.conn.Close()
		c.conn = nil
	}
}

// allowLocked implements the fixed-window text budget.
func (c *Client) allowLocked() bool {
	now := time.Now()
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowSent = 0
	}
	if c.windowSent >= maxTextPerSecond {
		return false
	}
	c.windowSent++
	return true
}

func (c *Client) connectLocked(ctx context.Context) bool {
	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		if time.Since(c.lastConnLog) >= connectLogThrottle {
			c.lastConnLog = time.Now()
			pslog.Ctx(ctx).Warn("capture endpoint unreachable",
				"addr", c.addr, "error", err.Error())
		}
		return false
	}
	c.conn = conn
	return true
}

// Close drops the connection; subsequent sends are discarded.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
