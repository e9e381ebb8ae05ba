package preview

import (
	"github.com/pion/webrtc/v3"
)

// ConnectionType labels the network path a preview actually uses once
// established.
type ConnectionType string

const (
	ConnectionP2P     ConnectionType = "p2p"
	ConnectionRelay   ConnectionType = "relay"
	ConnectionUnknown ConnectionType = "unknown"
)

// Classify inspects a stats report and labels the path of the succeeded
// candidate pair: relay when either side is a relay candidate, p2p
// otherwise. No succeeded pair yields unknown. Best-effort: statistics
// may legitimately be absent and that is never an error.
func Classify(report webrtc.StatsReport) ConnectionType {
	candidates := make(map[string]webrtc.ICECandidateStats)
	var pairs []webrtc.ICECandidatePairStats
	for _, s := range report {
		switch v := s.(type) {
		case webrtc.ICECandidateStats:
			candidates[v.ID] = v
		case webrtc.ICECandidatePairStats:
			if v.State == webrtc.StatsICECandidatePairStateSucceeded {
				pairs = append(pairs, v)
			}
		}
	}
	if len(pairs) == 0 {
		return ConnectionUnknown
	}
	// Prefer the nominated pair when there is one.
	best := pairs[0]
	for _, p := range pairs {
		if p.Nominated {
			best = p
			break
		}
	}
	local, lok := candidates[best.LocalCandidateID]
	remote, rok := candidates[best.RemoteCandidateID]
	if !lok && !rok {
		return ConnectionUnknown
	}
	if local.CandidateType == webrtc.ICECandidateTypeRelay || remote.CandidateType == webrtc.ICECandidateTypeRelay {
		return ConnectionRelay
	}
	return ConnectionP2P
}

// ClassifyPeerConnection queries live transport statistics. Stats access
// can itself fail; that is treated as inconclusive, never an error.
func ClassifyPeerConnection(pc *webrtc.PeerConnection) (result ConnectionType) {
	defer func() {
		if recover() != nil {
			result = ConnectionUnknown
		}
	}()
	if pc == nil {
		return ConnectionUnknown
	}
	return Classify(pc.GetStats())
}
