//go:build windows

package proc

import (
	"debug/pe"
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/textgrab/textgrab/internal/model"
)

// targetBits determines pid's pointer width. Strategies in order:
//
//  1. IsWow64Process2 (Windows 10 1511+), which reports the process machine
//     directly.
//  2. IsWow64Process, which only distinguishes WOW64 from native and needs
//     the OS width inferred separately.
//  3. The machine field of the executable's PE header. This reads the file,
//     not the process, so it can be fooled by launchers that re-exec a
//     different image, but it is better than giving up.
func targetBits(pid uint32) (model.Bits, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return model.BitsUnknown, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	var procMachine, nativeMachine uint16
	if err := windows.IsWow64Process2(h, &procMachine, &nativeMachine); err == nil {
		if procMachine != machineUnknown {
			// WOW64: procMachine is the emulated machine.
			return bitsFromMachine(procMachine), nil
		}
		// Not WOW64: the process runs at the native width.
		if b := bitsFromMachine(nativeMachine); b != model.BitsUnknown {
			return b, nil
		}
	}

	var wow64 bool
	if err := windows.IsWow64Process(h, &wow64); err == nil {
		if wow64 {
			return model.Bits32, nil
		}
		if b, err := nativeOSBits(); err == nil {
			return b, nil
		}
	}

	return peHeaderBits(h)
}

// nativeOSBits infers the OS width from our own process.
func nativeOSBits() (model.Bits, error) {
	if HostBits() == model.Bits64 {
		return model.Bits64, nil
	}
	// We are 32-bit; if we run under WOW64 the OS is 64-bit.
	var selfWow64 bool
	if err := windows.IsWow64Process(windows.CurrentProcess(), &selfWow64); err != nil {
		return model.BitsUnknown, err
	}
	if selfWow64 {
		return model.Bits64, nil
	}
	return model.Bits32, nil
}

// peHeaderBits reads the machine field from the target's executable image.
func peHeaderBits(h windows.Handle) (model.Bits, error) {
	path, err := imagePath(h)
	if err != nil {
		return model.BitsUnknown, err
	}
	f, err := pe.Open(path)
	if err != nil {
		return model.BitsUnknown, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()
	if b := bitsFromMachine(f.FileHeader.Machine); b != model.BitsUnknown {
		return b, nil
	}
	return model.BitsUnknown, fmt.Errorf("unrecognized machine 0x%04x in %s", f.FileHeader.Machine, path)
}

func imagePath(h windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("query image name: %w", err)
	}
	return windows.UTF16ToString(buf[:size]), nil
}
