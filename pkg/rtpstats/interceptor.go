package rtpstats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// streamTimeout is how long an inactive stream stays tracked.
const streamTimeout = 2 * time.Second

// Stats is a snapshot of inbound RTP counters.
type Stats struct {
	Streams         int    `json:"streams"` // currently tracked streams
	PacketsReceived uint64 `json:"packetsReceived"`
	BytesReceived   uint64 `json:"bytesReceived"`
	PLIsSent        uint64 `json:"plisSent"`
}

// Add returns the element-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Streams:         s.Streams + o.Streams,
		PacketsReceived: s.PacketsReceived + o.PacketsReceived,
		BytesReceived:   s.BytesReceived + o.BytesReceived,
		PLIsSent:        s.PLIsSent + o.PLIsSent,
	}
}

// Interceptor counts RTP packets read from remote streams and sends a
// Picture Loss Indication for every active stream on each PLI tick.
type Interceptor struct {
	interceptor.NoOp

	streams sync.Map // SSRC (uint32) -> *streamState

	packets atomic.Uint64
	bytes   atomic.Uint64
	plis    atomic.Uint64

	mu          sync.Mutex
	rtcpWriter  interceptor.RTCPWriter
	pliInterval time.Duration
	senderSSRC  uint32
	onPLI       func(mediaSSRCs []uint32)

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	startOnce sync.Once
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithInterval sets the PLI interval. Zero disables PLI.
func WithInterval(d time.Duration) InterceptorOption {
	return func(i *Interceptor) {
		i.pliInterval = d
	}
}

// WithSSRC sets the sender SSRC written into PLI packets.
func WithSSRC(ssrc uint32) InterceptorOption {
	return func(i *Interceptor) {
		i.senderSSRC = ssrc
	}
}

// WithPLICallback sets a callback invoked after each PLI batch is written.
func WithPLICallback(fn func(mediaSSRCs []uint32)) InterceptorOption {
	return func(i *Interceptor) {
		i.onPLI = fn
	}
}

// NewInterceptor creates an Interceptor. PLI is off unless WithInterval is
// given a positive interval.
func NewInterceptor(opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{closed: make(chan struct{})}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Close stops the background loops. It is safe to call more than once.
func (i *Interceptor) Close() error {
	i.closeOnce.Do(func() { close(i.closed) })
	i.wg.Wait()
	return nil
}

// BindRTCPWriter captures the writer and starts the PLI loop.
func (i *Interceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	i.mu.Lock()
	i.rtcpWriter = writer
	i.mu.Unlock()

	if i.pliInterval > 0 {
		i.wg.Add(1)
		go i.pliLoop()
	}
	return writer
}

// BindRemoteStream tracks the stream and wraps its reader to count packets.
func (i *Interceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	i.startOnce.Do(func() {
		i.wg.Add(1)
		go i.cleanupLoop()
	})

	i.streams.Store(info.SSRC, newStreamState(info.SSRC))

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTP(b[:n])
		}
		return n, a, err
	})
}

// UnbindRemoteStream stops tracking the stream. Its packets stay counted.
func (i *Interceptor) UnbindRemoteStream(info *interceptor.StreamInfo) {
	i.streams.Delete(info.SSRC)
}

// processRTP counts a packet against the stream named in its header.
// Packets that do not parse as RTP are ignored.
func (i *Interceptor) processRTP(raw []byte) {
	var header rtp.Header
	if _, err := header.Unmarshal(raw); err != nil {
		return
	}

	i.packets.Add(1)
	i.bytes.Add(uint64(len(raw)))

	// Simulcast and RTX can carry an SSRC other than the bound one; those
	// only count toward the totals.
	if state, ok := i.streams.Load(header.SSRC); ok {
		state.(*streamState).observe(time.Now(), len(raw))
	}
}

// Stats returns the current counters.
func (i *Interceptor) Stats() Stats {
	s := Stats{
		PacketsReceived: i.packets.Load(),
		BytesReceived:   i.bytes.Load(),
		PLIsSent:        i.plis.Load(),
	}
	i.streams.Range(func(_, _ any) bool {
		s.Streams++
		return true
	})
	return s
}

// activeSSRCs returns the SSRCs of streams that received a packet within
// streamTimeout of now, sorted.
func (i *Interceptor) activeSSRCs(now time.Time) []uint32 {
	var ssrcs []uint32
	i.streams.Range(func(_, value any) bool {
		state := value.(*streamState)
		if state.packets.Load() > 0 && now.Sub(state.LastPacket()) <= streamTimeout {
			ssrcs = append(ssrcs, state.SSRC())
		}
		return true
	})
	sort.Slice(ssrcs, func(a, b int) bool { return ssrcs[a] < ssrcs[b] })
	return ssrcs
}

func (i *Interceptor) pliLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(i.pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			i.sendPLI(now)
		}
	}
}

// sendPLI writes one PLI per active stream.
func (i *Interceptor) sendPLI(now time.Time) {
	i.mu.Lock()
	writer := i.rtcpWriter
	i.mu.Unlock()
	if writer == nil {
		return
	}

	ssrcs := i.activeSSRCs(now)
	if len(ssrcs) == 0 {
		return
	}

	pkts := make([]rtcp.Packet, 0, len(ssrcs))
	for _, ssrc := range ssrcs {
		pkts = append(pkts, &rtcp.PictureLossIndication{
			SenderSSRC: i.senderSSRC,
			MediaSSRC:  ssrc,
		})
	}
	if _, err := writer.Write(pkts, nil); err != nil {
		return
	}
	i.plis.Add(uint64(len(pkts)))

	if i.onPLI != nil {
		i.onPLI(ssrcs)
	}
}

func (i *Interceptor) cleanupLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			i.cleanupInactiveStreams(now)
		}
	}
}

func (i *Interceptor) cleanupInactiveStreams(now time.Time) {
	i.streams.Range(func(key, value any) bool {
		if now.Sub(value.(*streamState).LastPacket()) > streamTimeout {
			i.streams.Delete(key)
		}
		return true
	})
}
