//go:build windows

package channel

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"syscall"

	"github.com/textgrab/textgrab/internal/model"
)

const (
	eventObjectFocus       = 0x8005
	eventObjectNameChange  = 0x800C
	eventObjectValueChange = 0x800E
	wineventOutOfContext   = 0x0000
)

// The WinEventProc callback cannot carry a closure, so the active channel is
// looked up through a package registry. One hook at a time; a capture
// session never runs two.
var (
	sysEventMu     sync.Mutex
	sysEventActive *SysEvent

	winEventCallbackOnce sync.Once
	winEventCallback     uintptr
)

// SysEvent subscribes to accessibility events scoped to the target pid and
// converts focus, name-change and value-change notifications into text
// fragments. Event-driven, so it catches changes the poller sleeps through.
// Foreground-window switches are deliberately not captured; they fire for
// every app the user clicks.
type SysEvent struct {
	pid  uint32
	sink Sink

	mu   sync.Mutex
	tid  uint32
	done chan struct{}
}

// NewSysEvent creates the channel.
func NewSysEvent(pid uint32, sink Sink) *SysEvent {
	return &SysEvent{pid: pid, sink: sink}
}

func (c *SysEvent) Kind() model.ChannelKind { return model.ChannelSystemEvent }

// Start spins up the hook thread. The hook and its message loop must live on
// the same OS thread for the lifetime of the subscription.
func (c *SysEvent) Start(ctx context.Context) error {
	sysEventMu.Lock()
	if sysEventActive != nil {
		sysEventMu.Unlock()
		return fmt.Errorf("system event hook already active")
	}
	sysEventActive = c
	sysEventMu.Unlock()

	winEventCallbackOnce.Do(func() {
		winEventCallback = syscall.NewCallback(onWinEvent)
	})

	started := make(chan error, 1)
	done := make(chan struct{})
	c.mu.Lock()
	c.done = done
	c.mu.Unlock()

	go c.hookLoop(started, done)
	return <-started
}

func (c *SysEvent) hookLoop(started chan<- error, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)
	defer func() {
		sysEventMu.Lock()
		sysEventActive = nil
		sysEventMu.Unlock()
	}()

	c.mu.Lock()
	c.tid = currentThreadID()
	c.mu.Unlock()

	hook, _, _ := procSetWinEventHook.Call(
		eventObjectFocus, eventObjectValueChange,
		0, winEventCallback,
		uintptr(c.pid), 0,
		wineventOutOfContext,
	)
	if hook == 0 {
		started <- fmt.Errorf("SetWinEventHook failed for pid %d", c.pid)
		return
	}
	started <- nil

	var m winMsg
	for {
		r, _, _ := procGetMessageW.Call(uintptrOf(&m), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptrOf(&m))
		procDispatchMessageW.Call(uintptrOf(&m))
	}
	procUnhookWinEvent.Call(hook)
}

// Stop posts WM_QUIT to the hook thread and waits for it to unwind.
func (c *SysEvent) Stop() {
	c.mu.Lock()
	tid, done := c.tid, c.done
	c.tid, c.done = 0, nil
	c.mu.Unlock()
	if done == nil {
		return
	}
	if tid != 0 {
		postThreadQuit(tid)
	}
	<-done
}

// onWinEvent runs on the hook thread for every event in the subscribed
// range. It filters to the three interesting events and reads the source
// window's text.
func onWinEvent(hook uintptr, event uint32, hwnd uintptr, idObject, idChild int32, idEventThread, eventTime uint32) uintptr {
	sysEventMu.Lock()
	c := sysEventActive
	sysEventMu.Unlock()
	if c == nil || hwnd == 0 {
		return 0
	}

	var label string
	switch event {
	case eventObjectFocus:
		label = "focus"
	case eventObjectNameChange:
		label = "name_change"
	case eventObjectValueChange:
		label = "value_change"
	default:
		return 0
	}

	text := sendGetText(hwnd)
	if text == "" {
		text = windowTitle(hwnd)
	}
	if text != "" {
		c.sink.Text(c.Kind(), text, label)
	}
	return 0
}
