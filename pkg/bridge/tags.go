package bridge

import (
	"strconv"
	"sync/atomic"
)

// Tag is an opaque correlation key. Session tags identify a peer connection
// on the shared event stream; value tags are minted by the engine for the
// senders, receivers, transceivers, tracks and data channels it owns.
type Tag string

// TagGenerator mints session tags. Implementations must never return the
// same tag twice for the lifetime of the engine they feed.
type TagGenerator interface {
	NextTag() Tag
}

// Counter is a TagGenerator backed by an atomic counter starting at zero.
type Counter struct {
	n atomic.Uint64
}

// NextTag implements TagGenerator.
func (c *Counter) NextTag() Tag {
	return Tag(strconv.FormatUint(c.n.Add(1)-1, 10))
}
