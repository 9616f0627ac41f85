package relay

import (
	"time"

	"github.com/sessamekesh/splatnet/internal"
	"github.com/sessamekesh/splatnet/pkg/message"
	"github.com/sessamekesh/splatnet/pkg/replication"
	"github.com/sessamekesh/splatnet/pkg/session"
	"go.uber.org/zap"
)

const DefaultSessionTableInterval = 500 * time.Millisecond

type HostRelayParams struct {
	Host  *session.Host
	World WorldSink

	// Defaults to DefaultSessionTableInterval
	SessionTableInterval time.Duration
	// Defaults to replication.DefaultRate
	InterpolationRate float64

	Logger *zap.Logger
}

// HostRelay applies server authority: client requests become events for every other peer and
// for the host's own world.
type HostRelay struct {
	params  HostRelayParams
	host    *session.Host
	caps    capabilities
	remotes *replication.Set
	log     *zap.Logger

	sinceSessionTable time.Duration
}

func CreateHostRelay(params HostRelayParams) *HostRelay {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.SessionTableInterval <= 0 {
		params.SessionTableInterval = DefaultSessionTableInterval
	}

	return &HostRelay{
		params:  params,
		host:    params.Host,
		caps:    resolveCapabilities(params.World),
		remotes: replication.CreateSet(replication.SetParams{Rate: params.InterpolationRate}),
		log:     logger.With(zap.String("handler", "HostRelay")),
	}
}

func (r *HostRelay) Remotes() *replication.Set {
	return r.remotes
}

// Tick processes everything that arrived since the last tick, advances interpolation by dt and
// broadcasts the session table when its interval has elapsed.
func (r *HostRelay) Tick(dt time.Duration) {
	for _, ev := range r.host.Poll() {
		r.onLifecycle(ev)
	}

	for _, msg := range r.host.DrainMessages() {
		r.onMessage(msg)
	}

	for _, entity := range r.remotes.Step(dt.Seconds()) {
		r.caps.world.UpdateRemote(entity)
	}

	r.sinceSessionTable += dt
	if r.sinceSessionTable >= r.params.SessionTableInterval {
		r.sinceSessionTable %= r.params.SessionTableInterval
		r.BroadcastSessionTable()
	}
}

func (r *HostRelay) onLifecycle(ev session.LifecycleEvent) {
	switch ev.Type {
	case session.LifecycleEventType_PeerConnected:
		r.caps.rosterChanged(r.Roster())
	case session.LifecycleEventType_PeerDisconnected:
		if r.remotes.Remove(ev.PeerId) {
			r.caps.world.RemoveRemote(ev.PeerId)
		}
		if err := r.host.Broadcast(message.NewPeerLeftEvent(ev.PeerId)); err != nil {
			r.log.Debug("Failed to announce departed peer", zap.Int32("peerId", ev.PeerId), zap.Error(err))
		}
		r.caps.rosterChanged(r.Roster())
	}
}

func (r *HostRelay) onMessage(in session.InboundMessage) {
	msg := in.Message
	log := r.log.With(zap.Int32("peerId", in.FromPeerId), zap.String("kind", msg.Kind.String()))

	switch msg.Kind {
	case message.MessageKind_JoinRequest:
		log.Debug("JoinRequest received, peer was accepted at connect")

	case message.MessageKind_PlayerStateReport:
		state := *msg.PlayerState
		state.PeerId = in.FromPeerId
		r.relay(message.NewWorldStateEvent(state), in.FromPeerId, log)
		r.applyState(state)

	case message.MessageKind_FireRequest:
		fire := *msg.Fire
		fire.PeerId = in.FromPeerId
		r.relay(message.NewFireEvent(fire), in.FromPeerId, log)
		r.caps.world.SpawnProjectile(fire)

	case message.MessageKind_LoadoutChangeRequest:
		if err := r.host.SetWeapon(in.FromPeerId, msg.LoadoutChange.NewWeapon); err != nil {
			log.Warn("Failed to record loadout change", zap.Error(err))
			return
		}
		r.caps.rosterChanged(r.Roster())

	default:
		log.Debug("Dropping server-origin message received from a peer")
	}
}

// relay sends an event to every peer except the one it came from. The origin is stamped on the
// event by the caller.
func (r *HostRelay) relay(event *message.Message, fromPeerId int32, log *zap.Logger) {
	if err := r.host.BroadcastExcept(event, fromPeerId); err != nil {
		log.Debug("Relay to some peers failed", zap.Error(err))
	}
	r.host.Stats().MessagesRelayed.Add(1)
}

func (r *HostRelay) applyState(state message.PlayerState) {
	entity, created := r.remotes.Apply(state)
	if created {
		r.caps.world.SpawnRemote(entity)
	}
}

// SubmitPlayerState publishes the host player's own state. The host's world already shows it.
func (r *HostRelay) SubmitPlayerState(state message.PlayerState) {
	state.PeerId = internal.LocalPeerId
	if err := r.host.Broadcast(message.NewWorldStateEvent(state)); err != nil {
		r.log.Debug("Failed to broadcast local state", zap.Error(err))
	}
}

// SubmitFire applies the host player's shot locally and sends it to every peer.
func (r *HostRelay) SubmitFire(fire message.Fire) {
	fire.PeerId = internal.LocalPeerId
	r.caps.world.SpawnProjectile(fire)
	if err := r.host.Broadcast(message.NewFireEvent(fire)); err != nil {
		r.log.Debug("Failed to broadcast local fire", zap.Error(err))
	}
}

func (r *HostRelay) SubmitLoadout(weapon int32) error {
	return r.host.SetWeapon(internal.LocalPeerId, weapon)
}

func (r *HostRelay) SetReady(peerId int32, ready bool) error {
	return r.host.SetReady(peerId, ready)
}

// StartGame tells every peer, the host's own world included, that the match has begun.
func (r *HostRelay) StartGame() error {
	r.log.Info("Starting game", zap.Int("peers", r.host.PeerCount()))
	err := r.host.Broadcast(message.NewGameStartEvent())
	r.caps.gameStarted()
	return err
}

func (r *HostRelay) BroadcastSessionTable() {
	table := r.host.SessionTable()
	if err := r.host.Broadcast(message.NewSessionTableEvent(*table)); err != nil {
		r.log.Debug("Session table broadcast failed for some peers", zap.Error(err))
	}
}

// Roster is a copy of the occupied session table slots.
func (r *HostRelay) Roster() []message.SessionSlot {
	return r.host.SessionTable().Occupied()
}
