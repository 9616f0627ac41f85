package message

type Vec3 struct {
	X float32
	Y float32
	Z float32
}

type JoinAccept struct {
	AssignedId   int32
	AssignedTeam int32
}

// PlayerState is the payload of both PlayerStateReport and WorldStateEvent.
type PlayerState struct {
	PeerId    int32
	Position  Vec3
	Velocity  Vec3
	RotationY float32
	Swimming  bool
}

// Fire is the payload of both FireRequest and FireEvent.
type Fire struct {
	PeerId     int32
	Origin     Vec3
	Direction  Vec3
	WeaponKind int32
	Speed      float32
	Scale      float32
	Color      Vec3
}

type LoadoutChange struct {
	PeerId    int32
	NewWeapon int32
}

type SessionSlot struct {
	PeerId int32
	Team   int32
	Ready  bool
	Weapon int32
}

func (s SessionSlot) IsEmpty() bool {
	return s.PeerId == EmptySlotPeerId
}

func EmptySessionSlot() SessionSlot {
	return SessionSlot{PeerId: EmptySlotPeerId}
}

type SessionTable struct {
	Slots [SessionTableCapacity]SessionSlot
}

// Occupied returns the non-empty slots in table order.
func (t *SessionTable) Occupied() []SessionSlot {
	out := make([]SessionSlot, 0, SessionTableCapacity)
	for _, slot := range t.Slots {
		if !slot.IsEmpty() {
			out = append(out, slot)
		}
	}
	return out
}

type PeerLeft struct {
	PeerId int32
}

// Message is a tagged variant: exactly the payload field matching Kind is set.
type Message struct {
	Kind Kind

	JoinAccept    *JoinAccept
	PlayerState   *PlayerState
	Fire          *Fire
	LoadoutChange *LoadoutChange
	SessionTable  *SessionTable
	PeerLeft      *PeerLeft
}

// OriginPeerId returns the peer id a message is about, for kinds that carry one.
func (m *Message) OriginPeerId() (int32, bool) {
	switch {
	case m.PlayerState != nil:
		return m.PlayerState.PeerId, true
	case m.Fire != nil:
		return m.Fire.PeerId, true
	case m.LoadoutChange != nil:
		return m.LoadoutChange.PeerId, true
	case m.PeerLeft != nil:
		return m.PeerLeft.PeerId, true
	}
	return 0, false
}

func NewJoinRequest() *Message {
	return &Message{Kind: MessageKind_JoinRequest}
}

func NewJoinAccept(assignedId, assignedTeam int32) *Message {
	return &Message{
		Kind:       MessageKind_JoinAccept,
		JoinAccept: &JoinAccept{AssignedId: assignedId, AssignedTeam: assignedTeam},
	}
}

func NewPlayerStateReport(state PlayerState) *Message {
	return &Message{Kind: MessageKind_PlayerStateReport, PlayerState: &state}
}

func NewWorldStateEvent(state PlayerState) *Message {
	return &Message{Kind: MessageKind_WorldStateEvent, PlayerState: &state}
}

func NewFireRequest(fire Fire) *Message {
	return &Message{Kind: MessageKind_FireRequest, Fire: &fire}
}

func NewFireEvent(fire Fire) *Message {
	return &Message{Kind: MessageKind_FireEvent, Fire: &fire}
}

func NewLoadoutChangeRequest(peerId, newWeapon int32) *Message {
	return &Message{
		Kind:          MessageKind_LoadoutChangeRequest,
		LoadoutChange: &LoadoutChange{PeerId: peerId, NewWeapon: newWeapon},
	}
}

func NewSessionTableEvent(table SessionTable) *Message {
	return &Message{Kind: MessageKind_SessionTableEvent, SessionTable: &table}
}

func NewGameStartEvent() *Message {
	return &Message{Kind: MessageKind_GameStartEvent}
}

func NewPeerLeftEvent(peerId int32) *Message {
	return &Message{Kind: MessageKind_PeerLeftEvent, PeerLeft: &PeerLeft{PeerId: peerId}}
}
