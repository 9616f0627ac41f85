package transport

import (
	"context"
	"fmt"

	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/message"
)

const (
	DefaultPort           = 7777
	DefaultListenEndpoint = "/ws"

	// ChannelTokenHeader carries the datagram token in the WebSocket upgrade response.
	ChannelTokenHeader = "X-Splatnet-Channel-Token"
	ChannelTokenLength = 8

	// ClientConnectionId is the connection id a client transport reports for its server link.
	ClientConnectionId uint32 = 1

	maxDatagramSize = 1400
)

// ServerTransport accepts many peer connections. Every lifecycle change and inbound message is
// pushed into the handler's event sink from transport goroutines.
type ServerTransport interface {
	Listen(ctx context.Context, port int, handler *handlers.TransportHandler) error
	Send(connectionId uint32, channel message.Channel, data []byte) error
	Disconnect(connectionId uint32)
	Close() error
}

// ClientTransport owns one link to a server. Dial returns immediately; the outcome arrives as a
// Connect or Disconnect event.
type ClientTransport interface {
	Dial(ctx context.Context, address string, port int, handler *handlers.TransportHandler) error
	Send(channel message.Channel, data []byte) error
	Close() error
}

type NotConnectedError struct {
	ConnectionId uint32
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("Connection id=%d is not connected", e.ConnectionId)
}

type OutgoingQueueFullError struct {
	ConnectionId uint32
}

func (e *OutgoingQueueFullError) Error() string {
	return fmt.Sprintf("Outgoing reliable queue full for connection id=%d", e.ConnectionId)
}

type AlreadyStartedError struct {
	Name string
}

func (e *AlreadyStartedError) Error() string {
	return fmt.Sprintf("Transport %s already started", e.Name)
}

type InvalidAddressError struct {
	Address string
	Port    int
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("Invalid address %q port %d", e.Address, e.Port)
}

type LinkSeveredError struct{}

func (e *LinkSeveredError) Error() string {
	return "Transport link severed"
}

func validateDialTarget(address string, port int) error {
	if address == "" || port <= 0 || port > 65535 {
		return &InvalidAddressError{Address: address, Port: port}
	}
	return nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
