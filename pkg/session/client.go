package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/message"
	"github.com/sessamekesh/splatnet/pkg/queue"
	"github.com/sessamekesh/splatnet/pkg/transport"
	"go.uber.org/zap"
)

type ClientParams struct {
	Transport transport.ClientTransport

	// Microseconds; defaults to wall clock
	GetNowTimestamp func() int64

	Logger *zap.Logger
}

// Client is one player's link to a Host.
type Client struct {
	params     ClientParams
	log        *zap.Logger
	serializer message.MessageSerializer

	events *queue.Queue[handlers.TransportEvent]
	stats  *Stats

	mut_state sync.RWMutex
	state     ClientState
	accepted  bool
	localId   int32
	team      int32
	cancel    context.CancelFunc

	inbound []InboundMessage
}

func CreateClient(params ClientParams) *Client {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.GetNowTimestamp == nil {
		params.GetNowTimestamp = func() int64 { return time.Now().UnixMicro() }
	}

	return &Client{
		params: params,
		log:    logger.With(zap.String("handler", "Client")),
		events: queue.New[handlers.TransportEvent](),
		stats:  &Stats{},
		state:  ClientState_Idle,
	}
}

func (c *Client) State() ClientState {
	c.mut_state.RLock()
	defer c.mut_state.RUnlock()
	return c.state
}

func (c *Client) Stats() *Stats {
	return c.stats
}

// LocalId is the id the host assigned in JoinAccept; false until it arrives.
func (c *Client) LocalId() (int32, bool) {
	c.mut_state.RLock()
	defer c.mut_state.RUnlock()
	return c.localId, c.accepted
}

func (c *Client) Team() int32 {
	c.mut_state.RLock()
	defer c.mut_state.RUnlock()
	return c.team
}

// Connect starts dialing. Argument errors are returned directly; the dial outcome is reported
// by Poll as Connected or ConnectFailed.
func (c *Client) Connect(address string, port int) error {
	c.mut_state.Lock()
	defer c.mut_state.Unlock()

	if c.state != ClientState_Idle {
		return &InvalidStateError{Operation: "connect", State: c.state.String()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	handler := &handlers.TransportHandler{
		Name:            "client",
		GetNowTimestamp: c.params.GetNowTimestamp,
		Events:          c.events,
	}
	if err := c.params.Transport.Dial(ctx, address, port, handler); err != nil {
		cancel()
		return fmt.Errorf("dial %s:%d: %w", address, port, err)
	}

	c.cancel = cancel
	c.state = ClientState_Connecting
	c.log.Info("Connecting", zap.String("address", address), zap.Int("port", port))
	return nil
}

func (c *Client) setState(state ClientState) {
	c.mut_state.Lock()
	defer c.mut_state.Unlock()
	c.state = state
}

func (c *Client) Poll() []LifecycleEvent {
	var out []LifecycleEvent

	for _, ev := range c.events.Drain() {
		state := c.State()

		switch ev.Type {
		case handlers.TransportEventType_Connect:
			if state != ClientState_Connecting {
				continue
			}
			c.setState(ClientState_Connected)
			c.log.Info("Connected")
			out = append(out, LifecycleEvent{Type: LifecycleEventType_Connected})
			if err := c.Send(message.NewJoinRequest()); err != nil {
				c.log.Warn("Failed to send JoinRequest", zap.Error(err))
			}

		case handlers.TransportEventType_Disconnect:
			switch state {
			case ClientState_Connecting:
				c.setState(ClientState_Closed)
				c.log.Warn("Connection attempt failed", zap.Error(ev.Reason))
				out = append(out, LifecycleEvent{Type: LifecycleEventType_ConnectFailed, Reason: ev.Reason})
			case ClientState_Connected:
				c.setState(ClientState_Closed)
				c.log.Info("Disconnected from host", zap.Error(ev.Reason))
				localId, _ := c.LocalId()
				out = append(out, LifecycleEvent{Type: LifecycleEventType_Disconnected, PeerId: localId, Reason: ev.Reason})
			}

		case handlers.TransportEventType_Receive:
			if state != ClientState_Connected {
				continue
			}
			if lifecycle, ok := c.onReceive(ev); ok {
				out = append(out, lifecycle)
			}
		}
	}

	return out
}

func (c *Client) onReceive(ev handlers.TransportEvent) (LifecycleEvent, bool) {
	msg, err := c.serializer.Parse(ev.Data)
	if err != nil {
		c.stats.DecodeErrors.Add(1)
		c.log.Debug("Dropping undecodable message", zap.Int("size", len(ev.Data)), zap.Error(err))
		return LifecycleEvent{}, false
	}
	c.stats.MessagesReceived.Add(1)

	c.inbound = append(c.inbound, InboundMessage{
		Channel:       ev.Channel,
		Message:       msg,
		RecvTimestamp: ev.RecvTimestamp,
	})

	if msg.Kind != message.MessageKind_JoinAccept {
		return LifecycleEvent{}, false
	}

	accept := msg.JoinAccept
	func() {
		c.mut_state.Lock()
		defer c.mut_state.Unlock()
		c.accepted = true
		c.localId = accept.AssignedId
		c.team = accept.AssignedTeam
	}()
	c.log.Info("Joined session", zap.Int32("peerId", accept.AssignedId), zap.Int32("team", accept.AssignedTeam))

	return LifecycleEvent{
		Type:   LifecycleEventType_Accepted,
		PeerId: accept.AssignedId,
		Team:   accept.AssignedTeam,
	}, true
}

func (c *Client) DrainMessages() []InboundMessage {
	out := c.inbound
	c.inbound = nil
	return out
}

// Send is a no-op unless connected.
func (c *Client) Send(msg *message.Message) error {
	if c.State() != ClientState_Connected {
		return nil
	}

	data, err := c.serializer.SerializeMessage(msg)
	if err != nil {
		c.log.Error("Failed to serialize outgoing message", zap.Error(err))
		return err
	}
	if err := c.params.Transport.Send(msg.Kind.Channel(), data); err != nil {
		c.stats.SendErrors.Add(1)
		c.log.Debug("Send failed", zap.Error(err))
		return err
	}
	c.stats.MessagesSent.Add(1)
	return nil
}

// Close is synchronous and raises no events.
func (c *Client) Close() error {
	c.mut_state.Lock()
	prev := c.state
	c.state = ClientState_Closed
	cancel := c.cancel
	c.mut_state.Unlock()

	if prev != ClientState_Connecting && prev != ClientState_Connected {
		return nil
	}

	err := c.params.Transport.Close()
	if cancel != nil {
		cancel()
	}
	c.events.Drain()
	c.log.Info("Client closed")
	return err
}
