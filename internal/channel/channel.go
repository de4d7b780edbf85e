// Package channel implements the capture channels: independent goroutines
// that each watch the target process a different way and feed raw text
// fragments to the session pipeline.
package channel

import (
	"context"

	"github.com/textgrab/textgrab/internal/model"
)

// Sink receives raw fragments and status messages from a channel. Both
// callbacks must be safe for concurrent use; channels deliver from their own
// goroutines.
type Sink struct {
	Text   func(source model.ChannelKind, text, label string)
	Status func(source model.ChannelKind, message string)
}

// Channel is one capture source. Start returns once the channel is running
// or has failed to come up; a failed channel never takes the session down.
// Stop is idempotent and must unblock the channel's goroutines promptly.
type Channel interface {
	Kind() model.ChannelKind
	Start(ctx context.Context) error
	Stop()
}
