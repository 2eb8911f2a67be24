// Package capture ingests encoded access units from the compositor
// process. The production path is a Unix socket carrying length-framed
// frames; a synthetic test-pattern source covers loopback runs without
// a compositor attached.
package capture

import (
	"context"

	"github.com/daggintosh/ALVR/pkg/types"
)

// Source delivers encoded frames to the encode loop.
type Source interface {
	// Start begins producing frames until ctx is cancelled.
	Start(ctx context.Context) error
	// Frames is the stream of ingested access units.
	Frames() <-chan *types.VideoFrame
	// ForceIDR asks the upstream encoder to make the next frame an
	// IDR. Must be non-blocking.
	ForceIDR()
	Close() error
}

// Previewer is implemented by sources that can hand out a small JPEG
// snapshot of the current output for the monitor UI.
type Previewer interface {
	LatestPreview() []byte
}
