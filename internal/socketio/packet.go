package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine.IO v4 packet types
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// Socket.IO v5 packet types, carried inside Engine.IO messages
const (
	packetConnect      = '0'
	packetDisconnect   = '1'
	packetEvent        = '2'
	packetAck          = '3'
	packetConnectError = '4'
	packetBinaryEvent  = '5'
	packetBinaryAck    = '6'
)

var errMalformedPacket = errors.New("malformed packet")

// handshake is the Engine.IO open packet payload
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // Milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // Milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

func (h handshake) liveness() time.Duration {
	d := time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
	if d <= 0 {
		return 45 * time.Second // Engine.IO server defaults: 25s interval + 20s timeout
	}
	return d
}

func parseHandshake(msg []byte) (handshake, error) {
	var h handshake
	if len(msg) == 0 || msg[0] != engineOpen {
		return h, fmt.Errorf("%w: expected open packet, got %q", errMalformedPacket, msg)
	}
	if err := json.Unmarshal(msg[1:], &h); err != nil {
		return h, fmt.Errorf("%w: decoding open packet: %w", errMalformedPacket, err)
	}
	return h, nil
}

// encodeEvent builds a Socket.IO EVENT packet wrapped in an Engine.IO message
func encodeEvent(event string, args ...any) ([]byte, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding event %q: %w", event, err)
	}

	return append([]byte{engineMessage, packetEvent}, data...), nil
}

// stripHeader removes an optional namespace and ack id preceding the JSON body
func stripHeader(body string) string {
	if strings.HasPrefix(body, "/") {
		if i := strings.IndexByte(body, ','); i >= 0 {
			body = body[i+1:]
		} else {
			return ""
		}
	}
	return strings.TrimLeft(body, "0123456789")
}

// decodeEvent parses the body of a Socket.IO EVENT packet (type byte removed)
func decodeEvent(body string) (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(stripHeader(body)), &parts); err != nil {
		return "", nil, fmt.Errorf("%w: decoding event: %w", errMalformedPacket, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: empty event", errMalformedPacket)
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %w", errMalformedPacket, err)
	}
	return name, parts[1:], nil
}

// decodeConnectError extracts the message of a CONNECT_ERROR packet
func decodeConnectError(body string) string {
	body = stripHeader(body)

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Message != "" {
		return payload.Message
	}

	var text string
	if err := json.Unmarshal([]byte(body), &text); err == nil {
		return text
	}
	return body
}
