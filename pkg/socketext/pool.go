package socketext

import "sync"

// The transport's own allocator news a fat message header per send; on
// hot multicast paths that is N headers per packet. Pooling the headers
// is purely a performance refinement and never visible in the wire
// contract.
var messagePool = sync.Pool{
	New: func() any {
		return &Message{}
	},
}

// allocateMessage returns a cleared, pool-backed message header.
func allocateMessage() *Message {
	m := messagePool.Get().(*Message)
	m.pooled = true
	return m
}
