package stream

import "errors"

// ErrPositionLost means a shard's read position fell out of the stream's
// retention window and could not be recovered by reopening. The caller must
// reposition explicitly, e.g. MoveTo(TrimHorizon).
var ErrPositionLost = errors.New("vogels: stream position no longer retrievable")
