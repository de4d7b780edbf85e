//go:build windows

package channel

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procGetForegroundWindow   = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcID = user32.NewProc("GetWindowThreadProcessId")
	procGetGUIThreadInfo      = user32.NewProc("GetGUIThreadInfo")
	procSendMessageTimeoutW   = user32.NewProc("SendMessageTimeoutW")
	procGetWindowTextW        = user32.NewProc("GetWindowTextW")
	procSetWinEventHook       = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent        = user32.NewProc("UnhookWinEvent")
	procGetMessageW           = user32.NewProc("GetMessageW")
	procTranslateMessage      = user32.NewProc("TranslateMessage")
	procDispatchMessageW      = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW    = user32.NewProc("PostThreadMessageW")
	procGetCurrentThreadId    = kernel32.NewProc("GetCurrentThreadId")
)

const (
	wmGetText       = 0x000D
	wmQuit          = 0x0012
	smtoAbortIfHung = 0x0002

	// Text reads go through SendMessageTimeout so a hung target cannot
	// stall the capture loop.
	textReadTimeoutMS = 200
	maxWindowText     = 2048
)

type guiThreadInfo struct {
	Size        uint32
	Flags       uint32
	Active      uintptr
	Focus       uintptr
	Capture     uintptr
	MenuOwner   uintptr
	MoveSize    uintptr
	Caret       uintptr
	RcCaret     [4]int32
}

type winMsg struct {
	HWnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      [2]int32
}

func foregroundWindow() uintptr {
	h, _, _ := procGetForegroundWindow.Call()
	return h
}

func windowThreadProcessID(hwnd uintptr) (tid uint32, pid uint32) {
	t, _, _ := procGetWindowThreadProcID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	return uint32(t), pid
}

func focusedControl(tid uint32) uintptr {
	var gti guiThreadInfo
	gti.Size = uint32(unsafe.Sizeof(gti))
	r, _, _ := procGetGUIThreadInfo.Call(uintptr(tid), uintptr(unsafe.Pointer(&gti)))
	if r == 0 {
		return 0
	}
	return gti.Focus
}

// sendGetText reads hwnd's text via WM_GETTEXT with a timeout.
func sendGetText(hwnd uintptr) string {
	if hwnd == 0 {
		return ""
	}
	buf := make([]uint16, maxWindowText)
	var result uintptr
	r, _, _ := procSendMessageTimeoutW.Call(
		hwnd, wmGetText,
		uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0])),
		smtoAbortIfHung, textReadTimeoutMS,
		uintptr(unsafe.Pointer(&result)),
	)
	if r == 0 || result == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:result])
}

// windowTitle reads hwnd's caption without messaging the target thread.
func windowTitle(hwnd uintptr) string {
	if hwnd == 0 {
		return ""
	}
	buf := make([]uint16, maxWindowText)
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func uintptrOf(m *winMsg) uintptr {
	return uintptr(unsafe.Pointer(m))
}

func currentThreadID() uint32 {
	r, _, _ := procGetCurrentThreadId.Call()
	return uint32(r)
}

func postThreadQuit(tid uint32) {
	procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
}
