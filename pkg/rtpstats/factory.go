package rtpstats

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/interceptor"
)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory) error

// WithPLIInterval sets how often PLI packets are sent. Default: 1 second.
func WithPLIInterval(interval time.Duration) FactoryOption {
	return func(f *Factory) error {
		if interval <= 0 {
			return errors.New("PLI interval must be positive")
		}
		f.pliInterval = interval
		return nil
	}
}

// WithoutPLI disables keyframe requests; the interceptors only count.
func WithoutPLI() FactoryOption {
	return func(f *Factory) error {
		f.pliInterval = 0
		return nil
	}
}

// WithSenderSSRC sets the sender SSRC written into PLI packets.
func WithSenderSSRC(ssrc uint32) FactoryOption {
	return func(f *Factory) error {
		f.senderSSRC = ssrc
		return nil
	}
}

// WithOnPLI sets a callback invoked after each PLI batch.
func WithOnPLI(fn func(mediaSSRCs []uint32)) FactoryOption {
	return func(f *Factory) error {
		f.onPLI = fn
		return nil
	}
}

// Factory builds Interceptor instances and keeps track of them so their
// counters can be read after the peer connection is up.
type Factory struct {
	pliInterval time.Duration
	senderSSRC  uint32
	onPLI       func(mediaSSRCs []uint32)

	mu           sync.Mutex
	interceptors []*Interceptor
}

// NewFactory creates a Factory.
//
// Example:
//
//	factory, err := NewFactory(WithPLIInterval(500 * time.Millisecond))
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
func NewFactory(opts ...FactoryOption) (*Factory, error) {
	f := &Factory{pliInterval: time.Second}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor is called by the interceptor registry for each peer
// connection built from it.
func (f *Factory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	opts := []InterceptorOption{
		WithInterval(f.pliInterval),
		WithSSRC(f.senderSSRC),
	}
	if f.onPLI != nil {
		opts = append(opts, WithPLICallback(f.onPLI))
	}
	i := NewInterceptor(opts...)

	f.mu.Lock()
	f.interceptors = append(f.interceptors, i)
	f.mu.Unlock()
	return i, nil
}

// Stats sums the counters of every interceptor the factory built.
func (f *Factory) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s Stats
	for _, i := range f.interceptors {
		s = s.Add(i.Stats())
	}
	return s
}
