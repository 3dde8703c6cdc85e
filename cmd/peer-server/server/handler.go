package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/sjhorn/webrtc-dart-sub002/pkg/rtpstats"
)

// dataChannelLabel is the label of the channel the server opens in the
// server-offer flow.
const dataChannelLabel = "interop"

type handler struct {
	peers           *peerRegistry
	log             zerolog.Logger
	pliInterval     time.Duration
	includeLoopback bool
}

// sessionResponse carries a local description and the peer id the browser
// uses for /answer and /stats.
type sessionResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// statsResponse is the server-side view of a peer's inbound media.
type statsResponse struct {
	rtpstats.Stats
	State string `json:"state"`
}

func (h *handler) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(HTMLPage))
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "peers": h.peers.count()})
}

func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	closed := h.peers.closeAll()
	h.log.Info().Int("closed", closed).Msg("reset")
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "closed": closed})
}

// handleOffer answers a browser offer. The answer side echoes data channel
// messages and receives video.
func (h *handler) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	offer, err := decodeDescription(r, webrtc.SDPTypeOffer)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to decode offer")
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	p, err := h.newPeer()
	if err != nil {
		h.fail(w, "failed to create peer connection", err)
		return
	}

	// Matched against the video m-line of the offer, if any.
	_, err = p.pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	)
	if err != nil {
		_ = p.pc.Close()
		h.fail(w, "failed to add transceiver", err)
		return
	}

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		h.log.Debug().Str("peer", p.id).Str("label", dc.Label()).Msg("data channel")
		h.echo(p.id, dc)
	})
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		h.log.Info().Str("peer", p.id).Str("codec", track.Codec().MimeType).
			Uint32("ssrc", uint32(track.SSRC())).Msg("received track")
		go drain(track)
	})

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		_ = p.pc.Close()
		h.log.Warn().Err(err).Msg("failed to set remote description")
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		_ = p.pc.Close()
		h.fail(w, "failed to create answer", err)
		return
	}
	h.completeLocal(w, r, p, answer)
}

// handleStart creates a server-side offer with a data channel. The browser
// answers through /answer.
func (h *handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, err := h.newPeer()
	if err != nil {
		h.fail(w, "failed to create peer connection", err)
		return
	}

	dc, err := p.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		_ = p.pc.Close()
		h.fail(w, "failed to create data channel", err)
		return
	}
	h.echo(p.id, dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		_ = p.pc.Close()
		h.fail(w, "failed to create offer", err)
		return
	}
	h.completeLocal(w, r, p, offer)
}

func (h *handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, ok := h.peers.get(r.URL.Query().Get("id"))
	if !ok {
		http.Error(w, "Unknown peer", http.StatusNotFound)
		return
	}

	answer, err := decodeDescription(r, webrtc.SDPTypeAnswer)
	if err != nil {
		h.log.Warn().Err(err).Str("peer", p.id).Msg("failed to decode answer")
		http.Error(w, "Invalid answer", http.StatusBadRequest)
		return
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		h.log.Warn().Err(err).Str("peer", p.id).Msg("failed to set remote description")
		http.Error(w, "Invalid answer", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	p, ok := h.peers.get(r.URL.Query().Get("id"))
	if !ok {
		http.Error(w, "Unknown peer", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats: p.stats.Stats(),
		State: p.pc.ConnectionState().String(),
	})
}

// newPeer builds a peer connection with its own media engine and
// interceptor chain, so each peer's RTP counters stay separate.
func (h *handler) newPeer() (*peer, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}

	statsOpts := []rtpstats.FactoryOption{rtpstats.WithoutPLI()}
	if h.pliInterval > 0 {
		statsOpts = []rtpstats.FactoryOption{rtpstats.WithPLIInterval(h.pliInterval)}
	}
	stats, err := rtpstats.NewFactory(statsOpts...)
	if err != nil {
		return nil, fmt.Errorf("create rtp stats: %w", err)
	}
	i.Add(stats)

	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure RTCP reports: %w", err)
	}

	// NACK in both directions: generator for received video, responder for
	// anything we send.
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)

	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create NACK generator: %w", err)
	}
	i.Add(generator)

	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create NACK responder: %w", err)
	}
	i.Add(responder)

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(h.includeLoopback)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}

	p := &peer{id: uuid.NewString(), pc: pc, stats: stats}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		h.log.Info().Str("peer", p.id).Str("state", state.String()).Msg("connection state")
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			h.peers.remove(p.id, p)
			_ = pc.Close()
		}
	})
	return p, nil
}

// completeLocal sets desc as the local description, waits for ICE gathering,
// registers the peer and writes the description with complete candidates.
func (h *handler) completeLocal(w http.ResponseWriter, r *http.Request, p *peer, desc webrtc.SessionDescription) {
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		_ = p.pc.Close()
		h.fail(w, "failed to set local description", err)
		return
	}

	select {
	case <-gatherComplete:
	case <-r.Context().Done():
		_ = p.pc.Close()
		return
	}

	h.peers.add(p)
	local := p.pc.LocalDescription()
	writeJSON(w, http.StatusOK, sessionResponse{ID: p.id, Type: local.Type.String(), SDP: local.SDP})
	h.log.Info().Str("peer", p.id).Str("type", local.Type.String()).Msg("session described")
}

// echo sends every message on dc back to its sender.
func (h *handler) echo(peerID string, dc *webrtc.DataChannel) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var err error
		if msg.IsString {
			err = dc.SendText(string(msg.Data))
		} else {
			err = dc.Send(msg.Data)
		}
		if err != nil {
			h.log.Warn().Err(err).Str("peer", peerID).Msg("echo failed")
		}
	})
}

func (h *handler) fail(w http.ResponseWriter, msg string, err error) {
	h.log.Error().Err(err).Msg(msg)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

// drain reads the track until it ends. The interceptor chain sees every
// packet on the way.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func decodeDescription(r *http.Request, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		return desc, err
	}
	if desc.Type != want {
		return desc, fmt.Errorf("got %s, want %s", desc.Type, want)
	}
	if desc.SDP == "" {
		return desc, fmt.Errorf("empty sdp")
	}
	return desc, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
