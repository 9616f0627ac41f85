package handlers

import "github.com/sessamekesh/splatnet/pkg/message"

type TransportEventType uint8

const (
	TransportEventType_Connect TransportEventType = iota
	TransportEventType_Disconnect
	TransportEventType_Receive
)

func (t TransportEventType) String() string {
	switch t {
	case TransportEventType_Connect:
		return "connect"
	case TransportEventType_Disconnect:
		return "disconnect"
	case TransportEventType_Receive:
		return "receive"
	}
	return "unknown"
}

//
// Events raised on transport goroutines, consumed once per tick

type TransportEvent struct {
	Type         TransportEventType
	ConnectionId uint32
	Channel      message.Channel
	Data         []byte

	// Set on Disconnect when the link failed rather than closed cleanly
	Reason error

	// Telemetry
	RecvTimestamp int64
}

type EventSink interface {
	Push(ev TransportEvent)
}
