// Package rtpstats provides a Pion WebRTC interceptor that counts inbound
// RTP traffic per remote stream and periodically asks the sender for a
// keyframe.
//
// The peer server registers one Factory per peer connection and serves the
// aggregated counters to test pages, which compare them with what the
// browser reports through getStats.
//
// # Usage
//
//	factory, err := rtpstats.NewFactory(rtpstats.WithPLIInterval(time.Second))
//	if err != nil {
//	    return err
//	}
//	registry := &interceptor.Registry{}
//	registry.Add(factory)
//	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))
//	...
//	s := factory.Stats()
//	fmt.Println(s.PacketsReceived, s.BytesReceived)
//
// # Stream lifecycle
//
// A stream is tracked from BindRemoteStream until UnbindRemoteStream or until
// no packet has arrived for two seconds. Counters of dropped streams remain
// in the interceptor totals.
package rtpstats
