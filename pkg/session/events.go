package session

import (
	"fmt"

	"github.com/sessamekesh/splatnet/pkg/message"
)

type LifecycleEventType uint8

const (
	// Host side
	LifecycleEventType_PeerConnected LifecycleEventType = iota
	LifecycleEventType_PeerDisconnected

	// Client side
	LifecycleEventType_Connected
	LifecycleEventType_ConnectFailed
	LifecycleEventType_Accepted
	LifecycleEventType_Disconnected
)

func (t LifecycleEventType) String() string {
	switch t {
	case LifecycleEventType_PeerConnected:
		return "PeerConnected"
	case LifecycleEventType_PeerDisconnected:
		return "PeerDisconnected"
	case LifecycleEventType_Connected:
		return "Connected"
	case LifecycleEventType_ConnectFailed:
		return "ConnectFailed"
	case LifecycleEventType_Accepted:
		return "Accepted"
	case LifecycleEventType_Disconnected:
		return "Disconnected"
	}
	return "Unknown"
}

// LifecycleEvent is a connection state change observed during Poll.
type LifecycleEvent struct {
	Type   LifecycleEventType
	PeerId int32
	Team   int32

	// Set when a link failed or a dial did not succeed
	Reason error
}

// InboundMessage is a decoded message and the peer it arrived from. On the client every message
// arrives from the server, and FromPeerId is unset.
type InboundMessage struct {
	FromPeerId    int32
	Channel       message.Channel
	Message       *message.Message
	RecvTimestamp int64
}

type HostState uint8

const (
	HostState_Idle HostState = iota
	HostState_Listening
	HostState_Closed
)

func (s HostState) String() string {
	switch s {
	case HostState_Idle:
		return "Idle"
	case HostState_Listening:
		return "Listening"
	case HostState_Closed:
		return "Closed"
	}
	return "Unknown"
}

type ClientState uint8

const (
	ClientState_Idle ClientState = iota
	ClientState_Connecting
	ClientState_Connected
	ClientState_Closed
)

func (s ClientState) String() string {
	switch s {
	case ClientState_Idle:
		return "Idle"
	case ClientState_Connecting:
		return "Connecting"
	case ClientState_Connected:
		return "Connected"
	case ClientState_Closed:
		return "Closed"
	}
	return "Unknown"
}

type InvalidStateError struct {
	Operation string
	State     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("Cannot %s while %s", e.Operation, e.State)
}
