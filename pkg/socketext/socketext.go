package socketext

import (
	"go.uber.org/zap"

	"github.com/nalchi-net/nalchi/internal/wire"
	"github.com/nalchi-net/nalchi/pkg/payload"
)

// Sink is the opaque transport consuming outbound messages.
//
// SendMessages takes ownership of every record: the sink must invoke
// each message's Release (and thereby FreeData) exactly once, whether
// or not the send succeeds. The result has one entry per message: the
// assigned message number when non-negative, or a negated transport
// failure reason.
type Sink interface {
	SendMessages(msgs []*Message) []int64
}

// AddToMessage attaches p to msg, taking one payload reference and
// installing the release hook the transport will run. For bit-stream
// payloads the on-wire size is rounded up to a word multiple so the
// receiver's reader never fetches past the packet.
//
// logicalBytes is the byte count actually filled; for a bit-stream
// payload, the writer's UsedBytes.
func AddToMessage(p *payload.Payload, msg *Message, logicalBytes int) {
	if p.UsedBitStream() {
		logicalBytes = int(wire.CeilWords(int64(logicalBytes)))
	}
	p.AddRef()
	msg.Data = p.Data()[:logicalBytes]
	msg.Size = logicalBytes
	msg.FreeData = func(*Message) {
		p.Release()
	}
}

// Extensions sends shared payloads through a transport sink.
type Extensions struct {
	sink Sink
	log  *zap.Logger
}

// Option configures Extensions.
type Option func(*Extensions)

// WithLogger attaches a logger for send tracing. The default discards
// everything.
func WithLogger(log *zap.Logger) Option {
	return func(x *Extensions) {
		if log != nil {
			x.log = log
		}
	}
}

// New returns an Extensions sending through sink.
func New(sink Sink, opts ...Option) *Extensions {
	x := &Extensions{
		sink: sink,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Unicast sends p to a single peer. The payload gains one reference,
// released by the transport. Returns the message number, or a negated
// transport failure reason.
func (x *Extensions) Unicast(conn Connection, p *payload.Payload, logicalBytes int,
	flags SendFlags, lane uint16, userData int64) int64 {

	msg := allocateMessage()
	AddToMessage(p, msg, logicalBytes)
	msg.Conn = conn
	msg.Flags = flags
	msg.Lane = lane
	msg.UserData = userData

	// The sink may release msg before returning; don't touch it after.
	size := msg.Size
	results := x.sink.SendMessages([]*Message{msg})

	res := results[0]
	if res < 0 {
		x.log.Warn("unicast send failed",
			zap.Uint32("conn", uint32(conn)),
			zap.Int64("reason", -res))
	} else {
		x.log.Debug("unicast",
			zap.Uint32("conn", uint32(conn)),
			zap.Int("bytes", size),
			zap.Int64("message_number", res))
	}
	return res
}

// Multicast sends one payload to every peer in conns with a single sink
// call: N pooled message headers all referencing the same payload, which
// is freed exactly once when the transport releases the last of them.
// Returns one message-number-or-negated-failure entry per peer, or nil
// when conns is empty (the caller still owns the payload in that case).
func (x *Extensions) Multicast(conns []Connection, p *payload.Payload, logicalBytes int,
	flags SendFlags, lane uint16, userData int64) []int64 {

	if len(conns) == 0 {
		return nil
	}

	msgs := make([]*Message, len(conns))
	for i, conn := range conns {
		msg := allocateMessage()
		AddToMessage(p, msg, logicalBytes)
		msg.Conn = conn
		msg.Flags = flags
		msg.Lane = lane
		msg.UserData = userData
		msgs[i] = msg
	}

	size := msgs[0].Size
	results := x.sink.SendMessages(msgs)

	for i, res := range results {
		if res < 0 {
			x.log.Warn("multicast send failed",
				zap.Uint32("conn", uint32(conns[i])),
				zap.Int64("reason", -res))
		}
	}
	x.log.Debug("multicast",
		zap.Int("conns", len(conns)),
		zap.Int("bytes", size))
	return results
}
