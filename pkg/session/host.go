package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sessamekesh/splatnet/internal"
	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/message"
	"github.com/sessamekesh/splatnet/pkg/queue"
	"github.com/sessamekesh/splatnet/pkg/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type HostParams struct {
	Transport transport.ServerTransport

	// Adds the host's own player to the roster as peer 0
	HostPlays bool

	// Peers silent for longer than this are disconnected. Zero disables eviction.
	IdleTimeout time.Duration

	// Microseconds; defaults to wall clock
	GetNowTimestamp func() int64

	Logger *zap.Logger
}

// Host is the authoritative end of a session. Poll, DrainMessages and the send family are
// meant to be called from a single game goroutine.
type Host struct {
	params     HostParams
	log        *zap.Logger
	serializer message.MessageSerializer

	events    *queue.Queue[handlers.TransportEvent]
	directory *internal.PeerDirectory
	stats     *Stats

	mut_state sync.RWMutex
	state     HostState
	cancel    context.CancelFunc

	pendingLifecycle []LifecycleEvent
	inbound          []InboundMessage
}

func CreateHost(params HostParams) *Host {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.GetNowTimestamp == nil {
		params.GetNowTimestamp = func() int64 { return time.Now().UnixMicro() }
	}

	return &Host{
		params:    params,
		log:       logger.With(zap.String("handler", "Host")),
		events:    queue.New[handlers.TransportEvent](),
		directory: internal.CreatePeerDirectory(),
		stats:     &Stats{},
		state:     HostState_Idle,
	}
}

func (h *Host) State() HostState {
	h.mut_state.RLock()
	defer h.mut_state.RUnlock()
	return h.state
}

func (h *Host) Stats() *Stats {
	return h.stats
}

// Snapshot is a copy of every roster row, sorted by peer id.
func (h *Host) Snapshot() []internal.PeerInfo {
	return h.directory.Snapshot()
}

// Peer is a copy of one roster row.
func (h *Host) Peer(peerId int32) (internal.PeerInfo, bool) {
	info, err := h.directory.Get(peerId)
	if err != nil {
		return internal.PeerInfo{}, false
	}
	return info, true
}

func (h *Host) HasPeer(peerId int32) bool {
	return h.directory.HasPeer(peerId)
}

func (h *Host) PeerCount() int {
	return h.directory.Len()
}

func (h *Host) SessionTable() *message.SessionTable {
	return h.directory.SessionTable()
}

func (h *Host) SetWeapon(peerId int32, weapon int32) error {
	return h.directory.SetWeapon(peerId, weapon)
}

func (h *Host) SetReady(peerId int32, ready bool) error {
	return h.directory.SetReady(peerId, ready)
}

// Start begins listening. On failure the host stays Idle and Start may be retried.
func (h *Host) Start(port int) error {
	h.mut_state.Lock()
	defer h.mut_state.Unlock()

	if h.state != HostState_Idle {
		return &InvalidStateError{Operation: "start host", State: h.state.String()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	handler := &handlers.TransportHandler{
		Name:            "host",
		GetNowTimestamp: h.params.GetNowTimestamp,
		Events:          h.events,
	}
	if err := h.params.Transport.Listen(ctx, port, handler); err != nil {
		cancel()
		h.log.Error("Failed to start listening", zap.Int("port", port), zap.Error(err))
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	h.cancel = cancel

	if h.params.HostPlays && !h.directory.HasPeer(internal.LocalPeerId) {
		if _, err := h.directory.AddLocal(h.params.GetNowTimestamp()); err != nil {
			h.log.Warn("Failed to add local player", zap.Error(err))
		}
	}

	h.state = HostState_Listening
	h.log.Info("Host listening", zap.Int("port", port), zap.Bool("hostPlays", h.params.HostPlays))
	return nil
}

// Poll drains every pending transport event and returns the lifecycle changes they caused.
// Decoded messages are buffered for DrainMessages.
func (h *Host) Poll() []LifecycleEvent {
	out := h.pendingLifecycle
	h.pendingLifecycle = nil

	if h.State() != HostState_Listening {
		// Whatever the transport raised after Stop is no longer interesting
		h.events.Drain()
		return out
	}

	for _, ev := range h.events.Drain() {
		switch ev.Type {
		case handlers.TransportEventType_Connect:
			if lifecycle, ok := h.onConnect(ev); ok {
				out = append(out, lifecycle)
			}
		case handlers.TransportEventType_Disconnect:
			if lifecycle, ok := h.onDisconnect(ev); ok {
				out = append(out, lifecycle)
			}
		case handlers.TransportEventType_Receive:
			h.onReceive(ev)
		}
	}

	if h.params.IdleTimeout > 0 {
		deadline := h.params.GetNowTimestamp() - h.params.IdleTimeout.Microseconds()
		for _, peerId := range h.directory.GetIdleTimeoutPeerList(deadline) {
			h.log.Info("Evicting idle peer", zap.Int32("peerId", peerId))
			if lifecycle, ok := h.closePeer(peerId); ok {
				out = append(out, lifecycle)
			}
		}
	}

	return out
}

// DrainMessages returns the messages decoded by previous Poll calls, in arrival order.
func (h *Host) DrainMessages() []InboundMessage {
	out := h.inbound
	h.inbound = nil
	return out
}

func (h *Host) onConnect(ev handlers.TransportEvent) (LifecycleEvent, bool) {
	info, err := h.directory.Accept(ev.ConnectionId, ev.RecvTimestamp)
	if err != nil {
		h.log.Warn("Failed to accept connection", zap.Uint32("connId", ev.ConnectionId), zap.Error(err))
		h.params.Transport.Disconnect(ev.ConnectionId)
		return LifecycleEvent{}, false
	}
	h.stats.PeersAccepted.Add(1)

	log := h.log.With(zap.Uint32("connId", ev.ConnectionId), zap.Int32("peerId", info.PeerId))
	log.Info("Peer connected", zap.Int32("team", info.Team))

	// JoinAccept precedes anything else sent to this peer
	if err := h.Send(info.PeerId, message.NewJoinAccept(info.PeerId, info.Team)); err != nil {
		log.Warn("Failed to send JoinAccept", zap.Error(err))
	}

	return LifecycleEvent{
		Type:   LifecycleEventType_PeerConnected,
		PeerId: info.PeerId,
		Team:   info.Team,
	}, true
}

func (h *Host) onDisconnect(ev handlers.TransportEvent) (LifecycleEvent, bool) {
	peerId, has := h.directory.PeerForConnection(ev.ConnectionId)
	if !has {
		// Already closed locally
		return LifecycleEvent{}, false
	}

	info, _ := h.directory.Remove(peerId)
	h.forgetInbound(peerId)
	h.stats.PeersDisconnected.Add(1)
	h.log.Info("Peer disconnected", zap.Uint32("connId", ev.ConnectionId), zap.Int32("peerId", peerId), zap.Error(ev.Reason))

	return LifecycleEvent{
		Type:   LifecycleEventType_PeerDisconnected,
		PeerId: peerId,
		Team:   info.Team,
		Reason: ev.Reason,
	}, true
}

func (h *Host) onReceive(ev handlers.TransportEvent) {
	peerId, has := h.directory.PeerForConnection(ev.ConnectionId)
	if !has {
		h.stats.UnknownOriginDrops.Add(1)
		h.log.Debug("Dropping data from unknown connection", zap.Uint32("connId", ev.ConnectionId))
		return
	}

	msg, err := h.serializer.Parse(ev.Data)
	if err != nil {
		h.stats.DecodeErrors.Add(1)
		h.log.Debug("Dropping undecodable message", zap.Int32("peerId", peerId), zap.Int("size", len(ev.Data)), zap.Error(err))
		return
	}

	h.stats.MessagesReceived.Add(1)
	h.directory.TouchPeer(peerId, ev.RecvTimestamp)
	h.inbound = append(h.inbound, InboundMessage{
		FromPeerId:    peerId,
		Channel:       ev.Channel,
		Message:       msg,
		RecvTimestamp: ev.RecvTimestamp,
	})
}

// forgetInbound discards undelivered messages from a peer that has left, so nothing about it
// is relayed after its departure.
func (h *Host) forgetInbound(peerId int32) {
	kept := h.inbound[:0]
	for _, msg := range h.inbound {
		if msg.FromPeerId != peerId {
			kept = append(kept, msg)
		}
	}
	h.inbound = kept
}

func (h *Host) closePeer(peerId int32) (LifecycleEvent, bool) {
	if peerId == internal.LocalPeerId {
		return LifecycleEvent{}, false
	}
	info, has := h.directory.Remove(peerId)
	if !has {
		return LifecycleEvent{}, false
	}
	h.forgetInbound(peerId)
	h.params.Transport.Disconnect(info.ConnectionId)
	h.stats.PeersDisconnected.Add(1)

	return LifecycleEvent{
		Type:   LifecycleEventType_PeerDisconnected,
		PeerId: peerId,
		Team:   info.Team,
	}, true
}

// Disconnect closes a peer's connection immediately. The PeerDisconnected event is reported by
// the next Poll.
func (h *Host) Disconnect(peerId int32) {
	if lifecycle, ok := h.closePeer(peerId); ok {
		h.log.Info("Disconnected peer", zap.Int32("peerId", peerId))
		h.pendingLifecycle = append(h.pendingLifecycle, lifecycle)
	}
}

func (h *Host) serialize(msg *message.Message) ([]byte, error) {
	data, err := h.serializer.SerializeMessage(msg)
	if err != nil {
		h.log.Error("Failed to serialize outgoing message", zap.Error(err))
		return nil, err
	}
	return data, nil
}

func (h *Host) sendBytes(connectionId uint32, channel message.Channel, data []byte) error {
	if err := h.params.Transport.Send(connectionId, channel, data); err != nil {
		h.stats.SendErrors.Add(1)
		h.log.Debug("Send failed", zap.Uint32("connId", connectionId), zap.Error(err))
		return err
	}
	h.stats.MessagesSent.Add(1)
	return nil
}

// Send delivers msg to one peer on the kind's channel. Sending to a peer that is not connected,
// the local player included, is a no-op.
func (h *Host) Send(peerId int32, msg *message.Message) error {
	if h.State() != HostState_Listening {
		return nil
	}
	connectionId, has := h.directory.ConnectionForPeer(peerId)
	if !has {
		return nil
	}

	data, err := h.serialize(msg)
	if err != nil {
		return err
	}
	return h.sendBytes(connectionId, msg.Kind.Channel(), data)
}

// BroadcastExcept sends msg to every connected peer other than excludePeerId. The message is
// serialized once.
func (h *Host) BroadcastExcept(msg *message.Message, excludePeerId int32) error {
	if h.State() != HostState_Listening {
		return nil
	}

	data, err := h.serialize(msg)
	if err != nil {
		return err
	}

	var sendErr error
	channel := msg.Kind.Channel()
	for _, info := range h.directory.Snapshot() {
		if info.IsLocal || info.PeerId == excludePeerId {
			continue
		}
		sendErr = multierr.Append(sendErr, h.sendBytes(info.ConnectionId, channel, data))
	}
	return sendErr
}

func (h *Host) Broadcast(msg *message.Message) error {
	return h.BroadcastExcept(msg, message.EmptySlotPeerId)
}

// Stop closes every connection and the listener. No further events are reported.
func (h *Host) Stop() error {
	h.mut_state.Lock()
	if h.state != HostState_Listening {
		h.state = HostState_Closed
		h.mut_state.Unlock()
		return nil
	}
	h.state = HostState_Closed
	h.mut_state.Unlock()

	for _, info := range h.directory.Snapshot() {
		if info.IsLocal {
			continue
		}
		h.directory.Remove(info.PeerId)
		h.params.Transport.Disconnect(info.ConnectionId)
	}

	h.cancel()
	err := h.params.Transport.Close()
	h.events.Drain()
	h.log.Info("Host stopped")
	return err
}
