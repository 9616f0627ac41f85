package relay

import (
	"time"

	"github.com/sessamekesh/splatnet/pkg/message"
	"github.com/sessamekesh/splatnet/pkg/replication"
	"github.com/sessamekesh/splatnet/pkg/session"
	"go.uber.org/zap"
)

type ClientRelayParams struct {
	Client *session.Client
	World  WorldSink

	// Defaults to replication.DefaultRate
	InterpolationRate float64

	Logger *zap.Logger
}

// ClientRelay turns host events into world updates on a client, dropping the echoes of the
// local player's own actions.
type ClientRelay struct {
	client  *session.Client
	caps    capabilities
	remotes *replication.Set
	log     *zap.Logger

	roster  []message.SessionSlot
	started bool

	// Peers announced as left. Ids are never reused, so late state for them is stale.
	departed map[int32]struct{}
}

func CreateClientRelay(params ClientRelayParams) *ClientRelay {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	return &ClientRelay{
		client:  params.Client,
		caps:    resolveCapabilities(params.World),
		remotes: replication.CreateSet(replication.SetParams{Rate: params.InterpolationRate}),
		log:     logger.With(zap.String("handler", "ClientRelay")),

		departed: make(map[int32]struct{}),
	}
}

func (r *ClientRelay) Remotes() *replication.Set {
	return r.remotes
}

// Roster is a copy of the latest session table's occupied slots.
func (r *ClientRelay) Roster() []message.SessionSlot {
	out := make([]message.SessionSlot, len(r.roster))
	copy(out, r.roster)
	return out
}

func (r *ClientRelay) GameStarted() bool {
	return r.started
}

func (r *ClientRelay) Tick(dt time.Duration) []session.LifecycleEvent {
	events := r.client.Poll()
	for _, ev := range events {
		switch ev.Type {
		case session.LifecycleEventType_Disconnected, session.LifecycleEventType_ConnectFailed:
			r.clearRemotes()
		}
	}

	for _, msg := range r.client.DrainMessages() {
		r.onMessage(msg)
	}

	for _, entity := range r.remotes.Step(dt.Seconds()) {
		r.caps.world.UpdateRemote(entity)
	}

	return events
}

func (r *ClientRelay) clearRemotes() {
	for _, peerId := range r.remotes.Ids() {
		r.caps.world.RemoveRemote(peerId)
	}
	r.remotes.Clear()
	r.departed = make(map[int32]struct{})
}

func (r *ClientRelay) hasDeparted(peerId int32) bool {
	_, has := r.departed[peerId]
	return has
}

// isSelfEcho reports whether an event describes the local player. Before JoinAccept nothing is
// an echo.
func (r *ClientRelay) isSelfEcho(originId int32) bool {
	localId, accepted := r.client.LocalId()
	if accepted && originId == localId {
		r.client.Stats().SelfEchoDrops.Add(1)
		return true
	}
	return false
}

func (r *ClientRelay) onMessage(in session.InboundMessage) {
	msg := in.Message

	switch msg.Kind {
	case message.MessageKind_JoinAccept:
		// Consumed by the session

	case message.MessageKind_WorldStateEvent:
		if r.isSelfEcho(msg.PlayerState.PeerId) || r.hasDeparted(msg.PlayerState.PeerId) {
			return
		}
		entity, created := r.remotes.Apply(*msg.PlayerState)
		if created {
			r.log.Debug("First state for peer, spawning", zap.Int32("peerId", entity.PeerId))
			r.caps.world.SpawnRemote(entity)
		}

	case message.MessageKind_FireEvent:
		if r.isSelfEcho(msg.Fire.PeerId) || r.hasDeparted(msg.Fire.PeerId) {
			return
		}
		r.caps.world.SpawnProjectile(*msg.Fire)

	case message.MessageKind_SessionTableEvent:
		r.roster = msg.SessionTable.Occupied()
		r.caps.rosterChanged(r.Roster())

	case message.MessageKind_GameStartEvent:
		r.started = true
		r.caps.gameStarted()

	case message.MessageKind_PeerLeftEvent:
		peerId := msg.PeerLeft.PeerId
		r.departed[peerId] = struct{}{}
		if r.remotes.Remove(peerId) {
			r.caps.world.RemoveRemote(peerId)
		}

	default:
		r.log.Debug("Dropping client-origin message received from the host", zap.String("kind", msg.Kind.String()))
	}
}

// SubmitPlayerState reports the local player's state. Nothing is sent before JoinAccept.
func (r *ClientRelay) SubmitPlayerState(state message.PlayerState) error {
	localId, accepted := r.client.LocalId()
	if !accepted {
		return nil
	}
	state.PeerId = localId
	return r.client.Send(message.NewPlayerStateReport(state))
}

// SubmitFire applies the shot locally right away and asks the host to relay it.
func (r *ClientRelay) SubmitFire(fire message.Fire) error {
	localId, accepted := r.client.LocalId()
	if !accepted {
		return nil
	}
	fire.PeerId = localId
	r.caps.world.SpawnProjectile(fire)
	return r.client.Send(message.NewFireRequest(fire))
}

func (r *ClientRelay) SubmitLoadout(weapon int32) error {
	localId, accepted := r.client.LocalId()
	if !accepted {
		return nil
	}
	return r.client.Send(message.NewLoadoutChangeRequest(localId, weapon))
}
