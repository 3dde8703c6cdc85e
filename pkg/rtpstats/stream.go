package rtpstats

import (
	"sync/atomic"
	"time"
)

// streamState tracks one remote stream. The reader goroutine writes it on
// every packet while the cleanup and PLI loops read it concurrently.
type streamState struct {
	ssrc           uint32
	lastPacketTime atomic.Value // time.Time
	packets        atomic.Uint64
	bytes          atomic.Uint64
}

func newStreamState(ssrc uint32) *streamState {
	s := &streamState{ssrc: ssrc}
	s.lastPacketTime.Store(time.Now())
	return s
}

// observe records a packet of size bytes arriving at t.
func (s *streamState) observe(t time.Time, size int) {
	s.lastPacketTime.Store(t)
	s.packets.Add(1)
	s.bytes.Add(uint64(size))
}

// LastPacket returns the arrival time of the most recent packet, or the bind
// time if none has arrived.
func (s *streamState) LastPacket() time.Time {
	return s.lastPacketTime.Load().(time.Time)
}

func (s *streamState) SSRC() uint32 {
	return s.ssrc
}
