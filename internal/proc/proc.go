// Package proc inspects candidate target processes: enumerating them and
// probing their pointer width. The width matters because in-process
// instrumentation can only be injected by a process of the same width; a
// mismatch has to be detected up front so capture can be delegated to a
// helper binary instead of failing with an opaque injection error.
package proc

import (
	"errors"
	"strconv"

	"github.com/textgrab/textgrab/internal/model"
)

// ErrUnsupported is returned on platforms without process inspection support.
var ErrUnsupported = errors.New("proc: not supported on this platform")

// PE machine field values, from the COFF header spec.
const (
	machineUnknown uint16 = 0x0
	machineI386    uint16 = 0x014c
	machineARMNT   uint16 = 0x01c4
	machineAMD64   uint16 = 0x8664
	machineARM64   uint16 = 0xAA64
)

// bitsFromMachine maps a COFF machine value to a pointer width.
func bitsFromMachine(m uint16) model.Bits {
	switch m {
	case machineI386, machineARMNT:
		return model.Bits32
	case machineAMD64, machineARM64:
		return model.Bits64
	}
	return model.BitsUnknown
}

// HostBits returns the pointer width of the running process.
func HostBits() model.Bits {
	if strconv.IntSize == 64 {
		return model.Bits64
	}
	return model.Bits32
}

// Probe determines the architecture relationship between this process and
// pid. TargetBits is BitsUnknown when every detection strategy failed; the
// caller should proceed optimistically rather than refuse to capture.
func Probe(pid uint32) model.ArchitectureInfo {
	info := model.ArchitectureInfo{HostBits: HostBits()}
	bits, err := targetBits(pid)
	if err == nil {
		info.TargetBits = bits
	}
	return info
}
