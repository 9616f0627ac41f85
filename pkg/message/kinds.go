package message

// Kind selects the fixed payload layout that follows the one-byte header.
type Kind uint8

const (
	MessageKind_JoinRequest Kind = iota
	MessageKind_JoinAccept
	MessageKind_PlayerStateReport
	MessageKind_WorldStateEvent
	MessageKind_FireRequest
	MessageKind_FireEvent
	MessageKind_LoadoutChangeRequest
	MessageKind_SessionTableEvent
	MessageKind_GameStartEvent
	MessageKind_PeerLeftEvent

	MessageKind_NONE
)

// Channel is the reliability class a message travels on.
type Channel uint8

const (
	Channel_Reliable Channel = iota
	Channel_Unreliable
)

func (c Channel) String() string {
	if c == Channel_Unreliable {
		return "unreliable"
	}
	return "reliable"
}

const (
	HeaderSize = 1

	SessionTableCapacity = 8

	// EmptySlotPeerId marks an unused session table slot.
	EmptySlotPeerId int32 = -1

	int32Size   = 4
	float32Size = 4
	boolSize    = 1
	vec3Size    = 3 * float32Size

	joinAcceptSize    = 2 * int32Size
	playerStateSize   = int32Size + 2*vec3Size + float32Size + boolSize
	fireSize          = int32Size + 2*vec3Size + int32Size + 2*float32Size + vec3Size
	loadoutChangeSize = 2 * int32Size
	sessionSlotSize   = 3*int32Size + boolSize
	sessionTableSize  = SessionTableCapacity * sessionSlotSize
	peerLeftSize      = int32Size
)

func headerIdToKind(headerId uint8) Kind {
	if headerId >= uint8(MessageKind_NONE) {
		return MessageKind_NONE
	}
	return Kind(headerId)
}

func (k Kind) String() string {
	switch k {
	case MessageKind_JoinRequest:
		return "JoinRequest"
	case MessageKind_JoinAccept:
		return "JoinAccept"
	case MessageKind_PlayerStateReport:
		return "PlayerStateReport"
	case MessageKind_WorldStateEvent:
		return "WorldStateEvent"
	case MessageKind_FireRequest:
		return "FireRequest"
	case MessageKind_FireEvent:
		return "FireEvent"
	case MessageKind_LoadoutChangeRequest:
		return "LoadoutChangeRequest"
	case MessageKind_SessionTableEvent:
		return "SessionTableEvent"
	case MessageKind_GameStartEvent:
		return "GameStartEvent"
	case MessageKind_PeerLeftEvent:
		return "PeerLeftEvent"
	}
	return "NONE"
}

// PayloadSize is the number of bytes after the header, or -1 for an unknown kind.
func (k Kind) PayloadSize() int {
	switch k {
	case MessageKind_JoinRequest, MessageKind_GameStartEvent:
		return 0
	case MessageKind_JoinAccept:
		return joinAcceptSize
	case MessageKind_PlayerStateReport, MessageKind_WorldStateEvent:
		return playerStateSize
	case MessageKind_FireRequest, MessageKind_FireEvent:
		return fireSize
	case MessageKind_LoadoutChangeRequest:
		return loadoutChangeSize
	case MessageKind_SessionTableEvent:
		return sessionTableSize
	case MessageKind_PeerLeftEvent:
		return peerLeftSize
	}
	return -1
}

// WireSize is HeaderSize + PayloadSize, or -1 for an unknown kind.
func (k Kind) WireSize() int {
	p := k.PayloadSize()
	if p < 0 {
		return -1
	}
	return HeaderSize + p
}

func (k Kind) Channel() Channel {
	switch k {
	case MessageKind_PlayerStateReport, MessageKind_WorldStateEvent:
		return Channel_Unreliable
	}
	return Channel_Reliable
}

// IsClientOrigin reports whether the kind travels client to server.
func (k Kind) IsClientOrigin() bool {
	switch k {
	case MessageKind_JoinRequest, MessageKind_PlayerStateReport, MessageKind_FireRequest, MessageKind_LoadoutChangeRequest:
		return true
	}
	return false
}

// EventKind returns the broadcast kind a request is re-tagged to by the host.
// Requests without a broadcast counterpart return false.
func (k Kind) EventKind() (Kind, bool) {
	switch k {
	case MessageKind_PlayerStateReport:
		return MessageKind_WorldStateEvent, true
	case MessageKind_FireRequest:
		return MessageKind_FireEvent, true
	}
	return MessageKind_NONE, false
}
