package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/proc"
	"github.com/textgrab/textgrab/internal/wire"
)

// readyStatus is the control message the agent prints once its hooks are
// installed.
const readyStatus = "ready"

// stopGrace is how long a stopping agent gets to exit on its own before it
// is killed.
const stopGrace = 1500 * time.Millisecond

// Instrumentation drives an engine-specific agent executable that injects
// into the target and reports captured text on its stdout as protocol lines.
// The agent is a black box: this channel only launches it, relays its
// stream, and tears it down.
type Instrumentation struct {
	agentPath string
	pid       uint32
	port      uint16
	sink      Sink

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewInstrumentation creates the channel. agentPath must point at the agent
// executable; port is the ingest port the agent may additionally report to.
func NewInstrumentation(agentPath string, pid uint32, port uint16, sink Sink) *Instrumentation {
	return &Instrumentation{agentPath: agentPath, pid: pid, port: port, sink: sink}
}

func (c *Instrumentation) Kind() model.ChannelKind { return model.ChannelInstrumentation }

// Start launches the agent and begins relaying its stdout. The launch error
// is returned; everything after launch (attach failure, crash) surfaces as
// status messages instead, because by then the session is already running.
func (c *Instrumentation) Start(ctx context.Context) error {
	cmd := exec.Command(c.agentPath,
		"--pid", strconv.FormatUint(uint64(c.pid), 10),
		"--port", strconv.FormatUint(uint64(c.port), 10),
	)
	proc.HideWindow(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("agent stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start agent %s: %w", c.agentPath, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.relay(ctx, cmd, stdout)
	return nil
}

func (c *Instrumentation) relay(ctx context.Context, cmd *exec.Cmd, stdout io.Reader) {
	defer close(c.done)
	log := pslog.Ctx(ctx).With("channel", string(c.Kind()))

	ready := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		l := wire.ParseLine(scanner.Text())
		if l.Empty() || !l.MatchesPID(c.pid) {
			continue
		}
		if l.Status != "" {
			if l.Status == readyStatus {
				ready = true
			}
			c.sink.Status(c.Kind(), l.Status)
		}
		if l.Text != "" {
			c.sink.Text(c.Kind(), l.Text, l.Label)
		}
	}

	err := cmd.Wait()
	switch {
	case err == nil:
		log.Debug("agent exited cleanly")
	case !ready:
		// Non-zero exit before the ready handshake means the hooks never
		// attached.
		log.Warn("agent failed to attach", "error", err.Error())
		c.sink.Status(c.Kind(), "instrumentation agent failed to attach")
	default:
		log.Warn("agent exited", "error", err.Error())
		c.sink.Status(c.Kind(), "instrumentation agent exited unexpectedly")
	}
}

// Stop asks the agent to exit and kills it if it does not comply within the
// grace period.
func (c *Instrumentation) Stop() {
	c.mu.Lock()
	cmd, done := c.cmd, c.done
	c.cmd = nil
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	proc.RequestExit(cmd)
	select {
	case <-done:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-done
	}
}
