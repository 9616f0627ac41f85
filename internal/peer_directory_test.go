package internal

import (
	goerrs "errors"
	"testing"

	"github.com/sessamekesh/splatnet/pkg/message"
)

func TestAcceptAssignsIncreasingIdsAndTeams(t *testing.T) {
	d := CreatePeerDirectory()

	expected := []struct {
		id   int32
		team int32
	}{{1, 2}, {2, 1}, {3, 2}}
	for i, want := range expected {
		info, err := d.Accept(uint32(100+i), 0)
		if err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
		if info.PeerId != want.id || info.Team != want.team {
			t.Errorf("accept %d: got id=%d team=%d, want id=%d team=%d", i, info.PeerId, info.Team, want.id, want.team)
		}
	}
}

func TestIdsAreNeverReused(t *testing.T) {
	d := CreatePeerDirectory()

	first, _ := d.Accept(1, 0)
	d.Remove(first.PeerId)
	second, _ := d.Accept(1, 0)

	if second.PeerId <= first.PeerId {
		t.Fatalf("id %d reused or decreased after %d", second.PeerId, first.PeerId)
	}
}

func TestDuplicateConnectionRejected(t *testing.T) {
	d := CreatePeerDirectory()
	d.Accept(7, 0)

	_, err := d.Accept(7, 0)
	var dup *DuplicateConnectionError
	if !goerrs.As(err, &dup) {
		t.Fatalf("expected DuplicateConnectionError, got %v", err)
	}
}

func TestLocalPeer(t *testing.T) {
	d := CreatePeerDirectory()

	info, err := d.AddLocal(0)
	if err != nil {
		t.Fatalf("add local: %v", err)
	}
	if info.PeerId != LocalPeerId || info.Team != 1 || !info.IsLocal {
		t.Fatalf("unexpected local peer %+v", info)
	}
	if _, has := d.ConnectionForPeer(LocalPeerId); has {
		t.Fatal("local peer should have no connection")
	}

	var dup *DuplicatePeerIdError
	if _, err := d.AddLocal(0); !goerrs.As(err, &dup) {
		t.Fatalf("expected DuplicatePeerIdError, got %v", err)
	}

	remote, _ := d.Accept(5, 0)
	if remote.PeerId != 1 {
		t.Fatalf("remote ids start at 1 even with a local player, got %d", remote.PeerId)
	}
}

func TestConnectionLookups(t *testing.T) {
	d := CreatePeerDirectory()
	info, _ := d.Accept(42, 0)

	if peerId, has := d.PeerForConnection(42); !has || peerId != info.PeerId {
		t.Fatalf("PeerForConnection(42) = %d, %v", peerId, has)
	}
	if conn, has := d.ConnectionForPeer(info.PeerId); !has || conn != 42 {
		t.Fatalf("ConnectionForPeer(%d) = %d, %v", info.PeerId, conn, has)
	}

	d.Remove(info.PeerId)
	if _, has := d.PeerForConnection(42); has {
		t.Fatal("connection mapping survived removal")
	}
	if _, removed := d.Remove(info.PeerId); removed {
		t.Fatal("second remove should report false")
	}
}

func TestUpdatesOnMissingPeer(t *testing.T) {
	d := CreatePeerDirectory()
	var missing *MissingPeerIdError

	if err := d.SetWeapon(9, 1); !goerrs.As(err, &missing) {
		t.Errorf("SetWeapon: expected MissingPeerIdError, got %v", err)
	}
	if err := d.SetReady(9, true); !goerrs.As(err, &missing) {
		t.Errorf("SetReady: expected MissingPeerIdError, got %v", err)
	}
	if err := d.TouchPeer(9, 1); !goerrs.As(err, &missing) {
		t.Errorf("TouchPeer: expected MissingPeerIdError, got %v", err)
	}
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	d := CreatePeerDirectory()
	for i := 0; i < 5; i++ {
		d.Accept(uint32(i), 0)
	}
	d.AddLocal(0)

	snap := d.Snapshot()
	for i := range snap {
		if snap[i].PeerId != int32(i) {
			t.Fatalf("snapshot not sorted: %+v", snap)
		}
	}

	snap[1].Weapon = 99
	if info, _ := d.Get(1); info.Weapon == 99 {
		t.Fatal("snapshot aliases directory state")
	}
}

func TestSessionTable(t *testing.T) {
	d := CreatePeerDirectory()
	d.Accept(1, 0)
	d.Accept(2, 0)
	d.SetWeapon(2, 3)
	d.SetReady(1, true)

	table := d.SessionTable()
	if got := table.Slots[0]; got.PeerId != 1 || got.Team != 2 || !got.Ready || got.Weapon != 0 {
		t.Errorf("slot 0 = %+v", got)
	}
	if got := table.Slots[1]; got.PeerId != 2 || got.Team != 1 || got.Ready || got.Weapon != 3 {
		t.Errorf("slot 1 = %+v", got)
	}
	for i := 2; i < message.SessionTableCapacity; i++ {
		if table.Slots[i] != message.EmptySessionSlot() {
			t.Errorf("slot %d should be empty, got %+v", i, table.Slots[i])
		}
	}

	d.Remove(1)
	table = d.SessionTable()
	if table.Slots[0].PeerId != 2 || !table.Slots[1].IsEmpty() {
		t.Errorf("removed peer still listed: %+v", table.Slots)
	}
}

func TestSessionTableTruncatesToLowestIds(t *testing.T) {
	d := CreatePeerDirectory()
	for i := 0; i < message.SessionTableCapacity+3; i++ {
		d.Accept(uint32(i), 0)
	}

	table := d.SessionTable()
	for i, slot := range table.Slots {
		if slot.PeerId != int32(i+1) {
			t.Fatalf("slot %d = %d, want %d", i, slot.PeerId, i+1)
		}
	}
}

func TestIdleTimeoutList(t *testing.T) {
	d := CreatePeerDirectory()
	d.AddLocal(0)
	stale, _ := d.Accept(1, 10)
	fresh, _ := d.Accept(2, 10)
	d.TouchPeer(fresh.PeerId, 500)

	kick := d.GetIdleTimeoutPeerList(100)
	if len(kick) != 1 || kick[0] != stale.PeerId {
		t.Fatalf("expected only peer %d to time out, got %v", stale.PeerId, kick)
	}
}
