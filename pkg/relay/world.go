package relay

import (
	"github.com/sessamekesh/splatnet/pkg/message"
	"github.com/sessamekesh/splatnet/pkg/replication"
)

// WorldSink is the game world as seen by the relay: confirmed remote state flows into it.
type WorldSink interface {
	SpawnRemote(entity *replication.RemoteEntityState)
	UpdateRemote(entity *replication.RemoteEntityState)
	RemoveRemote(peerId int32)
	SpawnProjectile(fire message.Fire)
}

// RosterObserver is optionally implemented by a WorldSink that displays the session table.
type RosterObserver interface {
	RosterChanged(slots []message.SessionSlot)
}

// GameStartObserver is optionally implemented by a WorldSink that reacts to the match starting.
type GameStartObserver interface {
	GameStarted()
}

type capabilities struct {
	world     WorldSink
	roster    RosterObserver
	gameStart GameStartObserver
}

func resolveCapabilities(world WorldSink) capabilities {
	if world == nil {
		world = NopWorld{}
	}
	caps := capabilities{world: world}
	caps.roster, _ = world.(RosterObserver)
	caps.gameStart, _ = world.(GameStartObserver)
	return caps
}

func (c capabilities) rosterChanged(slots []message.SessionSlot) {
	if c.roster != nil {
		c.roster.RosterChanged(slots)
	}
}

func (c capabilities) gameStarted() {
	if c.gameStart != nil {
		c.gameStart.GameStarted()
	}
}

// NopWorld discards everything; a headless host uses it.
type NopWorld struct{}

func (NopWorld) SpawnRemote(*replication.RemoteEntityState)  {}
func (NopWorld) UpdateRemote(*replication.RemoteEntityState) {}
func (NopWorld) RemoveRemote(int32)                          {}
func (NopWorld) SpawnProjectile(message.Fire)                {}
