//go:build !windows

package channel

import (
	"context"

	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/proc"
)

// SysEvent is Windows-only; this stub reports unsupported at Start.
type SysEvent struct{}

func NewSysEvent(pid uint32, sink Sink) *SysEvent {
	return &SysEvent{}
}

func (c *SysEvent) Kind() model.ChannelKind { return model.ChannelSystemEvent }

func (c *SysEvent) Start(ctx context.Context) error { return proc.ErrUnsupported }

func (c *SysEvent) Stop() {}
