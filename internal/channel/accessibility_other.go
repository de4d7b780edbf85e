//go:build !windows

package channel

import (
	"context"
	"time"

	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/proc"
)

// Accessibility is Windows-only; this stub reports unsupported at Start.
type Accessibility struct{}

func NewAccessibility(pid uint32, interval time.Duration, sink Sink) *Accessibility {
	return &Accessibility{}
}

func (c *Accessibility) Kind() model.ChannelKind { return model.ChannelAccessibility }

func (c *Accessibility) Start(ctx context.Context) error { return proc.ErrUnsupported }

func (c *Accessibility) Stop() {}
