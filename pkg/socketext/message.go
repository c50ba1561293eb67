// Package socketext provides the outbound-message plumbing between
// shared payloads and an opaque transport sink: attaching a refcounted
// payload to message records, pooling the records themselves, and
// unicast/multicast fan-out that shares one payload across many peers.
package socketext

// Connection identifies a peer on the transport. The value is opaque to
// this package.
type Connection uint32

// InvalidConnection is the zero, never-valid peer identifier.
const InvalidConnection Connection = 0

// SendFlags selects transport delivery semantics. The values mirror the
// transport's send flags and are passed through untouched.
type SendFlags int

const (
	// SendUnreliable delivers at most once, possibly out of order.
	SendUnreliable SendFlags = 0

	// SendNoNagle skips send coalescing for this message.
	SendNoNagle SendFlags = 1

	// SendNoDelay drops the message instead of queueing when the link
	// is congested.
	SendNoDelay SendFlags = 4

	// SendReliable delivers exactly once, in order.
	SendReliable SendFlags = 8
)

// Message is the record handed to the transport sink. The transport
// calls FreeData exactly once when it is done with Data.
type Message struct {
	// Data is the payload bytes to transmit.
	Data []byte

	// Size is the byte count to transmit. For bit-stream payloads it is
	// rounded up to a word multiple so the receiver can fetch the
	// trailing word.
	Size int

	// FreeData releases the underlying payload reference. The transport
	// invokes it exactly once per message.
	FreeData func(*Message)

	// Conn is the destination peer.
	Conn Connection

	// Flags selects delivery semantics.
	Flags SendFlags

	// Lane is the transport priority lane.
	Lane uint16

	// UserData is opaque and echoed back to the sender's callbacks.
	UserData int64

	pooled bool
}

// Release runs the free callback exactly once, clears the record, and
// returns pooled records for reuse. Transports (and tests standing in
// for them) call this when done with a message.
func (m *Message) Release() {
	if free := m.FreeData; free != nil {
		m.FreeData = nil
		free(m)
	}
	m.Data = nil
	m.Size = 0
	m.Conn = InvalidConnection
	m.Flags = 0
	m.Lane = 0
	m.UserData = 0
	if m.pooled {
		m.pooled = false
		messagePool.Put(m)
	}
}
