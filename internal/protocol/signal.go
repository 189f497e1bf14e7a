package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Huddle/internal/domain"
)

// Signal types relayed between peers.
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
	SignalHangUp       = "hang-up"
)

// Signal is an inbound negotiation message. Payload is relayed untouched.
type Signal struct {
	RoomID  string          `json:"roomId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	To      string          `json:"to,omitempty"`
}

// RelayedSignal is what peers receive: the inbound signal plus sender identity.
type RelayedSignal struct {
	RoomID   string          `json:"roomId"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	From     string          `json:"from"`
	FromName string          `json:"fromName"`
	To       string          `json:"to,omitempty"`
}

// Validate checks the envelope fields and, for SDP and ICE messages, that the
// payload has the shape a browser RTCPeerConnection would accept.
func (s Signal) Validate() error {
	if s.RoomID == "" {
		return fmt.Errorf("%w: missing roomId", domain.ErrInvalidSignal)
	}
	switch s.Type {
	case SignalOffer, SignalAnswer:
		var desc webrtc.SessionDescription
		if err := decodePayload(s.Payload, &desc); err != nil {
			return fmt.Errorf("%w: %s payload: %v", domain.ErrInvalidSignal, s.Type, err)
		}
		if desc.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", domain.ErrInvalidSignal, s.Type)
		}
	case SignalICECandidate:
		var cand webrtc.ICECandidateInit
		if err := decodePayload(s.Payload, &cand); err != nil {
			return fmt.Errorf("%w: candidate payload: %v", domain.ErrInvalidSignal, err)
		}
	case SignalHangUp:
	case "":
		return fmt.Errorf("%w: missing type", domain.ErrInvalidSignal)
	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidSignal, s.Type)
	}
	return nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, v)
}
