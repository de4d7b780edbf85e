package proc

import (
	"testing"

	"github.com/textgrab/textgrab/internal/model"
)

func TestBitsFromMachine(t *testing.T) {
	tests := []struct {
		name    string
		machine uint16
		want    model.Bits
	}{
		{"i386", machineI386, model.Bits32},
		{"armnt", machineARMNT, model.Bits32},
		{"amd64", machineAMD64, model.Bits64},
		{"arm64", machineARM64, model.Bits64},
		{"unknown", machineUnknown, model.BitsUnknown},
		{"garbage", 0xBEEF, model.BitsUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bitsFromMachine(tt.machine); got != tt.want {
				t.Errorf("bitsFromMachine(0x%04x) = %v, want %v", tt.machine, got, tt.want)
			}
		})
	}
}

func TestHostBits(t *testing.T) {
	if HostBits() == model.BitsUnknown {
		t.Error("host width must always be known")
	}
}

func TestProbeNeverPanicsOnBadPID(t *testing.T) {
	info := Probe(0xFFFFFFFF)
	if info.HostBits == model.BitsUnknown {
		t.Error("HostBits should be set even when the target probe fails")
	}
	if info.Mismatched() && info.TargetBits == model.BitsUnknown {
		t.Error("unknown target bits must never report a mismatch")
	}
}
