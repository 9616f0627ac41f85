package message

import (
	"encoding/binary"
	"math"

	"github.com/sessamekesh/splatnet/pkg/errors"
)

// MessageSerializer reads and writes the fixed-layout wire format. All numeric fields are
// LittleEndian; every kind has exactly one valid buffer length.
type MessageSerializer struct{}

type fieldReader struct {
	msg     []byte
	readPtr int
}

func (r *fieldReader) int32() int32 {
	v := int32(binary.LittleEndian.Uint32(r.msg[r.readPtr : r.readPtr+int32Size]))
	r.readPtr += int32Size
	return v
}

func (r *fieldReader) float32() float32 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.msg[r.readPtr : r.readPtr+float32Size]))
	r.readPtr += float32Size
	return v
}

func (r *fieldReader) bool() bool {
	v := r.msg[r.readPtr] != 0
	r.readPtr += boolSize
	return v
}

func (r *fieldReader) vec3() Vec3 {
	return Vec3{X: r.float32(), Y: r.float32(), Z: r.float32()}
}

func appendInt32(out []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(out, uint32(v))
}

func appendFloat32(out []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
}

func appendBool(out []byte, v bool) []byte {
	if v {
		return append(out, 1)
	}
	return append(out, 0)
}

func appendVec3(out []byte, v Vec3) []byte {
	out = appendFloat32(out, v.X)
	out = appendFloat32(out, v.Y)
	return appendFloat32(out, v.Z)
}

func (s MessageSerializer) parsePlayerState(r *fieldReader) *PlayerState {
	return &PlayerState{
		PeerId:    r.int32(),
		Position:  r.vec3(),
		Velocity:  r.vec3(),
		RotationY: r.float32(),
		Swimming:  r.bool(),
	}
}

func (s MessageSerializer) parseFire(r *fieldReader) *Fire {
	return &Fire{
		PeerId:     r.int32(),
		Origin:     r.vec3(),
		Direction:  r.vec3(),
		WeaponKind: r.int32(),
		Speed:      r.float32(),
		Scale:      r.float32(),
		Color:      r.vec3(),
	}
}

func (s MessageSerializer) parseSessionTable(r *fieldReader) *SessionTable {
	table := &SessionTable{}
	for i := range table.Slots {
		table.Slots[i] = SessionSlot{
			PeerId: r.int32(),
			Team:   r.int32(),
			Ready:  r.bool(),
			Weapon: r.int32(),
		}
	}
	return table
}

// Parse validates the buffer length against the header kind before reading any field.
func (s MessageSerializer) Parse(msg []byte) (*Message, error) {
	if len(msg) < HeaderSize {
		return nil, &errors.Underflow{
			MessageName: "Message",
			MsgSize:     len(msg),
			MinimumSize: HeaderSize,
		}
	}

	kindId := msg[0]
	kind := headerIdToKind(kindId)
	if kind == MessageKind_NONE {
		return nil, &errors.InvalidEnumValue{
			EnumName: "Message::Kind",
			IntValue: kindId,
		}
	}

	if expected := kind.WireSize(); len(msg) != expected {
		return nil, &errors.SizeMismatch{
			MessageName:  kind.String(),
			MsgSize:      len(msg),
			ExpectedSize: expected,
		}
	}

	r := &fieldReader{msg: msg, readPtr: HeaderSize}
	parsed := &Message{Kind: kind}

	switch kind {
	case MessageKind_JoinRequest, MessageKind_GameStartEvent: // no payload
		break
	case MessageKind_JoinAccept:
		parsed.JoinAccept = &JoinAccept{
			AssignedId:   r.int32(),
			AssignedTeam: r.int32(),
		}
	case MessageKind_PlayerStateReport, MessageKind_WorldStateEvent:
		parsed.PlayerState = s.parsePlayerState(r)
	case MessageKind_FireRequest, MessageKind_FireEvent:
		parsed.Fire = s.parseFire(r)
	case MessageKind_LoadoutChangeRequest:
		parsed.LoadoutChange = &LoadoutChange{
			PeerId:    r.int32(),
			NewWeapon: r.int32(),
		}
	case MessageKind_SessionTableEvent:
		parsed.SessionTable = s.parseSessionTable(r)
	case MessageKind_PeerLeftEvent:
		parsed.PeerLeft = &PeerLeft{PeerId: r.int32()}
	}

	return parsed, nil
}

func (s MessageSerializer) missing(kind Kind, field string) error {
	return &errors.MissingFieldError{
		MessageName: kind.String(),
		FieldName:   field,
	}
}

func (s MessageSerializer) SerializeMessage(msg *Message) ([]byte, error) {
	if msg == nil || msg.Kind >= MessageKind_NONE {
		var kindId uint8 = 0xFF
		if msg != nil {
			kindId = uint8(msg.Kind)
		}
		return nil, &errors.InvalidEnumValue{
			EnumName: "Message::Kind",
			IntValue: kindId,
		}
	}

	out := make([]byte, 0, msg.Kind.WireSize())
	out = append(out, uint8(msg.Kind))

	switch msg.Kind {
	case MessageKind_JoinRequest, MessageKind_GameStartEvent: // no payload
		break
	case MessageKind_JoinAccept:
		if msg.JoinAccept == nil {
			return nil, s.missing(msg.Kind, "JoinAccept")
		}
		out = appendInt32(out, msg.JoinAccept.AssignedId)
		out = appendInt32(out, msg.JoinAccept.AssignedTeam)
	case MessageKind_PlayerStateReport, MessageKind_WorldStateEvent:
		if msg.PlayerState == nil {
			return nil, s.missing(msg.Kind, "PlayerState")
		}
		st := msg.PlayerState
		out = appendInt32(out, st.PeerId)
		out = appendVec3(out, st.Position)
		out = appendVec3(out, st.Velocity)
		out = appendFloat32(out, st.RotationY)
		out = appendBool(out, st.Swimming)
	case MessageKind_FireRequest, MessageKind_FireEvent:
		if msg.Fire == nil {
			return nil, s.missing(msg.Kind, "Fire")
		}
		f := msg.Fire
		out = appendInt32(out, f.PeerId)
		out = appendVec3(out, f.Origin)
		out = appendVec3(out, f.Direction)
		out = appendInt32(out, f.WeaponKind)
		out = appendFloat32(out, f.Speed)
		out = appendFloat32(out, f.Scale)
		out = appendVec3(out, f.Color)
	case MessageKind_LoadoutChangeRequest:
		if msg.LoadoutChange == nil {
			return nil, s.missing(msg.Kind, "LoadoutChange")
		}
		out = appendInt32(out, msg.LoadoutChange.PeerId)
		out = appendInt32(out, msg.LoadoutChange.NewWeapon)
	case MessageKind_SessionTableEvent:
		if msg.SessionTable == nil {
			return nil, s.missing(msg.Kind, "SessionTable")
		}
		for _, slot := range msg.SessionTable.Slots {
			out = appendInt32(out, slot.PeerId)
			out = appendInt32(out, slot.Team)
			out = appendBool(out, slot.Ready)
			out = appendInt32(out, slot.Weapon)
		}
	case MessageKind_PeerLeftEvent:
		if msg.PeerLeft == nil {
			return nil, s.missing(msg.Kind, "PeerLeft")
		}
		out = appendInt32(out, msg.PeerLeft.PeerId)
	}

	return out, nil
}
