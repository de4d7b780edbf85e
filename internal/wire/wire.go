// Package wire implements the newline-delimited IPC protocol spoken between
// the capture orchestrator's TCP ingest port and external text emitters
// (injected agents, delegate helpers, test drivers).
//
// Each line is UTF-8 and takes one of three forms, tried in order:
//
//	{"text": "...", "status": "...", "label": "...", "pid": 1234}
//	pid=1234|some text        (also pid:1234|some text, case-insensitive)
//	some text                 (bare line, no pid, no status)
//
// Malformed JSON is not rejected; the line degrades to bare text. The
// protocol prioritizes availability over strictness.
package wire

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Line is one parsed protocol line.
type Line struct {
	// PID is the emitter's claimed target process, or -1 when absent.
	PID    int
	Text   string
	Status string
	Label  string
}

// jsonLine mirrors the JSON object form on the wire.
type jsonLine struct {
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
	Label  string `json:"label,omitempty"`
	PID    *int   `json:"pid,omitempty"`
}

// ParseLine parses one raw line. It never fails: anything unrecognized is
// returned as bare text.
func ParseLine(raw string) Line {
	payload := strings.TrimSpace(raw)
	if payload == "" {
		return Line{PID: -1}
	}

	if strings.HasPrefix(payload, "{") && strings.HasSuffix(payload, "}") {
		var j jsonLine
		if err := json.Unmarshal([]byte(payload), &j); err == nil {
			l := Line{
				PID:    -1,
				Text:   strings.TrimSpace(j.Text),
				Status: strings.TrimSpace(j.Status),
				Label:  strings.TrimSpace(j.Label),
			}
			if j.PID != nil {
				l.PID = *j.PID
			}
			return l
		}
		// Not valid JSON after all: fall through to the legacy forms.
	}

	lower := strings.ToLower(payload)
	for _, sep := range []string{"pid=", "pid:"} {
		if strings.HasPrefix(lower, sep) && strings.Contains(payload, "|") {
			head, body, _ := strings.Cut(payload, "|")
			pidStr := strings.TrimSpace(head[len(sep):])
			if pid, err := strconv.Atoi(pidStr); err == nil {
				return Line{PID: pid, Text: strings.TrimSpace(body)}
			}
			return Line{PID: -1, Text: strings.TrimSpace(body)}
		}
	}

	return Line{PID: -1, Text: payload}
}

// MatchesPID reports whether the line may be applied to a session targeting
// pid. Lines without a pid claim always match; a mismatched claim means the
// emitter is pointed at some other process and the line must be dropped.
func (l Line) MatchesPID(pid uint32) bool {
	return l.PID < 0 || uint32(l.PID) == pid
}

// Empty reports whether the line carries neither text nor status.
func (l Line) Empty() bool {
	return l.Text == "" && l.Status == ""
}

// Encode serializes the line as its JSON form, newline included. A negative
// PID is omitted.
func (l Line) Encode() []byte {
	j := jsonLine{Text: l.Text, Status: l.Status, Label: l.Label}
	if l.PID >= 0 {
		pid := l.PID
		j.PID = &pid
	}
	return encode(j)
}

// EncodeText encodes a text payload for sending, newline included.
func EncodeText(text string) []byte {
	return encode(jsonLine{Text: text})
}

// EncodeStatus encodes a status payload, stamping the emitting helper's
// target pid so the receiver can reject mis-pointed clients.
func EncodeStatus(status string, pid int) []byte {
	return encode(jsonLine{Status: status, PID: &pid})
}

func encode(j jsonLine) []byte {
	b, err := json.Marshal(j)
	if err != nil {
		return nil
	}
	return append(b, '\n')
}
