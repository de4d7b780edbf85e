package ingest

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestClient_RoundTripThroughServer(t *testing.T) {
	_, sk, addr := startServer(t, 77)
	host, portStr, _ := net.SplitHostPort(addr)
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)

	c := NewClient(host, port, 77)
	defer c.Close()

	ctx := context.Background()
	c.SendStatus(ctx, "agent ready")
	c.SendText(ctx, "captured line", "hook")

	waitFor(t, func() bool {
		texts, statuses := sk.snapshot()
		return len(texts) == 1 && len(statuses) == 1
	})
	texts, statuses := sk.snapshot()
	if texts[0] != "captured line" {
		t.Errorf("text: %q", texts[0])
	}
	if statuses[0] != "agent ready" {
		t.Errorf("status: %q", statuses[0])
	}
}

func TestClient_PIDStampFiltersOnServer(t *testing.T) {
	_, sk, addr := startServer(t, 77)
	host, portStr, _ := net.SplitHostPort(addr)
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)

	// Client stamped for a different target: the server must drop its text.
	c := NewClient(host, port, 9999)
	defer c.Close()
	c.SendText(context.Background(), "mis-pointed", "")

	time.Sleep(300 * time.Millisecond)
	texts, _ := sk.snapshot()
	if len(texts) != 0 {
		t.Errorf("mis-pointed client text reached the sink: %q", texts)
	}
}

func TestClient_RateLimitDropsExcessText(t *testing.T) {
	_, sk, addr := startServer(t, 5)
	host, portStr, _ := net.SplitHostPort(addr)
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)

	c := NewClient(host, port, 5)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 3*maxTextPerSecond; i++ {
		c.SendText(ctx, fmt.Sprintf("burst %d", i), "")
	}

	// Everything past the per-second budget is dropped client-side. The
	// burst may straddle one window boundary, so allow two budgets.
	time.Sleep(500 * time.Millisecond)
	texts, _ := sk.snapshot()
	if len(texts) > 2*maxTextPerSecond {
		t.Errorf("got %d texts, budget is %d per second", len(texts), maxTextPerSecond)
	}
	if len(texts) == 0 {
		t.Error("rate limit must not drop everything")
	}
}

func TestClient_UnreachableEndpointIsQuiet(t *testing.T) {
	// Port 1 on loopback is never listening.
	c := NewClient("127.0.0.1", 1, 5)
	defer c.Close()

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			c.SendText(ctx, "into the void", "")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("sends against a dead endpoint must fail fast")
	}
}
