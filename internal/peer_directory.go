package internal

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sessamekesh/splatnet/pkg/message"
)

// LocalPeerId is the host's own player, which has no connection.
const LocalPeerId int32 = 0

type DuplicatePeerIdError struct {
	Id int32
}

func (e *DuplicatePeerIdError) Error() string {
	return fmt.Sprintf("Attempted to create peer with duplicate ID %d", e.Id)
}

type MissingPeerIdError struct {
	Id int32
}

func (e *MissingPeerIdError) Error() string {
	return fmt.Sprintf("Missing peer with id=%d", e.Id)
}

type DuplicateConnectionError struct {
	ConnectionId uint32
}

func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("Connection id=%d already has a peer", e.ConnectionId)
}

// TeamForPeer assigns teams by id parity: even ids play for team 1, odd ids for team 2.
func TeamForPeer(peerId int32) int32 {
	if peerId%2 == 0 {
		return 1
	}
	return 2
}

type PeerInfo struct {
	PeerId int32
	Team   int32
	Weapon int32
	Ready  bool

	IsLocal      bool
	ConnectionId uint32

	CreatedTime int64
	LastMsgTime int64
}

// PeerDirectory is the host's authoritative roster. Peer ids start at 1, increase strictly and
// are never reused within a directory's lifetime.
type PeerDirectory struct {
	nextPeerId atomic.Int32

	mut_peers    sync.RWMutex
	peers        map[int32]*PeerInfo
	byConnection map[uint32]int32
}

func CreatePeerDirectory() *PeerDirectory {
	return &PeerDirectory{
		peers:        make(map[int32]*PeerInfo),
		byConnection: make(map[uint32]int32),
	}
}

// Accept assigns the next peer id to a newly connected transport connection.
func (d *PeerDirectory) Accept(connectionId uint32, timestamp int64) (PeerInfo, error) {
	d.mut_peers.Lock()
	defer d.mut_peers.Unlock()

	if _, has := d.byConnection[connectionId]; has {
		return PeerInfo{}, &DuplicateConnectionError{ConnectionId: connectionId}
	}

	peerId := d.nextPeerId.Add(1)
	info := &PeerInfo{
		PeerId:       peerId,
		Team:         TeamForPeer(peerId),
		ConnectionId: connectionId,
		CreatedTime:  timestamp,
		LastMsgTime:  timestamp,
	}
	d.peers[peerId] = info
	d.byConnection[connectionId] = peerId
	return *info, nil
}

func (d *PeerDirectory) AddLocal(timestamp int64) (PeerInfo, error) {
	d.mut_peers.Lock()
	defer d.mut_peers.Unlock()

	if _, has := d.peers[LocalPeerId]; has {
		return PeerInfo{}, &DuplicatePeerIdError{Id: LocalPeerId}
	}

	info := &PeerInfo{
		PeerId:      LocalPeerId,
		Team:        TeamForPeer(LocalPeerId),
		IsLocal:     true,
		CreatedTime: timestamp,
		LastMsgTime: timestamp,
	}
	d.peers[LocalPeerId] = info
	return *info, nil
}

func (d *PeerDirectory) Remove(peerId int32) (PeerInfo, bool) {
	d.mut_peers.Lock()
	defer d.mut_peers.Unlock()

	info, has := d.peers[peerId]
	if !has {
		return PeerInfo{}, false
	}
	delete(d.peers, peerId)
	if !info.IsLocal {
		delete(d.byConnection, info.ConnectionId)
	}
	return *info, true
}

func (d *PeerDirectory) HasPeer(peerId int32) bool {
	d.mut_peers.RLock()
	defer d.mut_peers.RUnlock()

	_, has := d.peers[peerId]
	return has
}

func (d *PeerDirectory) PeerForConnection(connectionId uint32) (int32, bool) {
	d.mut_peers.RLock()
	defer d.mut_peers.RUnlock()

	peerId, has := d.byConnection[connectionId]
	return peerId, has
}

func (d *PeerDirectory) ConnectionForPeer(peerId int32) (uint32, bool) {
	d.mut_peers.RLock()
	defer d.mut_peers.RUnlock()

	info, has := d.peers[peerId]
	if !has || info.IsLocal {
		return 0, false
	}
	return info.ConnectionId, true
}

func (d *PeerDirectory) Get(peerId int32) (PeerInfo, error) {
	d.mut_peers.RLock()
	defer d.mut_peers.RUnlock()

	info, has := d.peers[peerId]
	if !has {
		return PeerInfo{}, &MissingPeerIdError{Id: peerId}
	}
	return *info, nil
}

func (d *PeerDirectory) update(peerId int32, fn func(info *PeerInfo)) error {
	d.mut_peers.Lock()
	defer d.mut_peers.Unlock()

	info, has := d.peers[peerId]
	if !has {
		return &MissingPeerIdError{Id: peerId}
	}
	fn(info)
	return nil
}

func (d *PeerDirectory) SetWeapon(peerId int32, weapon int32) error {
	return d.update(peerId, func(info *PeerInfo) { info.Weapon = weapon })
}

func (d *PeerDirectory) SetReady(peerId int32, ready bool) error {
	return d.update(peerId, func(info *PeerInfo) { info.Ready = ready })
}

func (d *PeerDirectory) TouchPeer(peerId int32, timestamp int64) error {
	return d.update(peerId, func(info *PeerInfo) { info.LastMsgTime = timestamp })
}

func (d *PeerDirectory) Len() int {
	d.mut_peers.RLock()
	defer d.mut_peers.RUnlock()
	return len(d.peers)
}

// Snapshot returns a copy of every peer, ordered by id.
func (d *PeerDirectory) Snapshot() []PeerInfo {
	d.mut_peers.RLock()
	defer d.mut_peers.RUnlock()

	out := make([]PeerInfo, 0, len(d.peers))
	for _, info := range d.peers {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerId < out[j].PeerId })
	return out
}

// SessionTable lists the lowest-id peers that fit; remaining slots are empty.
func (d *PeerDirectory) SessionTable() *message.SessionTable {
	table := &message.SessionTable{}
	for i := range table.Slots {
		table.Slots[i] = message.EmptySessionSlot()
	}

	for i, info := range d.Snapshot() {
		if i >= message.SessionTableCapacity {
			break
		}
		table.Slots[i] = message.SessionSlot{
			PeerId: info.PeerId,
			Team:   info.Team,
			Ready:  info.Ready,
			Weapon: info.Weapon,
		}
	}
	return table
}

// GetIdleTimeoutPeerList lists remote peers whose last message is older than the deadline.
// The local player never times out.
func (d *PeerDirectory) GetIdleTimeoutPeerList(lastMsgDeadline int64) []int32 {
	d.mut_peers.RLock()
	defer d.mut_peers.RUnlock()

	peersToKick := []int32{}
	for peerId, info := range d.peers {
		if !info.IsLocal && info.LastMsgTime < lastMsgDeadline {
			peersToKick = append(peersToKick, peerId)
		}
	}
	sort.Slice(peersToKick, func(i, j int) bool { return peersToKick[i] < peersToKick[j] })
	return peersToKick
}
