package model

import "testing"

func TestParseChannelKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ChannelKind
		wantErr bool
	}{
		{"socket", ChannelSocket, false},
		{"  Accessibility ", ChannelAccessibility, false},
		{"SYSTEM_EVENT", ChannelSystemEvent, false},
		{"instrumentation", ChannelInstrumentation, false},
		{"stitcher", "", true}, // internal marker, not a runnable channel
		{"bogus", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseChannelKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseChannelKind(%q): error = %v, wantErr = %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseChannelKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBitsString(t *testing.T) {
	if Bits32.String() != "x86" || Bits64.String() != "x64" || BitsUnknown.String() != "unknown" {
		t.Errorf("got %q %q %q", Bits32, Bits64, BitsUnknown)
	}
}

func TestArchitectureMismatched(t *testing.T) {
	tests := []struct {
		name   string
		target Bits
		host   Bits
		want   bool
	}{
		{"32 on 64", Bits32, Bits64, true},
		{"64 on 32", Bits64, Bits32, true},
		{"matched 64", Bits64, Bits64, false},
		{"matched 32", Bits32, Bits32, false},
		{"unknown target never mismatches", BitsUnknown, Bits64, false},
		{"unknown host never mismatches", Bits32, BitsUnknown, false},
		{"both unknown", BitsUnknown, BitsUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ArchitectureInfo{TargetBits: tt.target, HostBits: tt.host}
			if got := a.Mismatched(); got != tt.want {
				t.Errorf("Mismatched() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionOptionsChannelEnabled(t *testing.T) {
	all := SessionOptions{}
	for _, k := range AllChannels {
		if !all.ChannelEnabled(k) {
			t.Errorf("empty set must enable %s", k)
		}
	}

	some := SessionOptions{Channels: []ChannelKind{ChannelSocket}}
	if !some.ChannelEnabled(ChannelSocket) {
		t.Error("socket should be enabled")
	}
	if some.ChannelEnabled(ChannelAccessibility) {
		t.Error("accessibility should be disabled")
	}
}

func TestEventTagging(t *testing.T) {
	text := Event{SessionID: 1, Text: &TextEvent{Text: "x"}}
	status := Event{SessionID: 1, Status: &StatusEvent{Message: "m"}}
	if !text.IsText() || text.IsStatus() {
		t.Error("text event tagged wrong")
	}
	if !status.IsStatus() || status.IsText() {
		t.Error("status event tagged wrong")
	}
}
