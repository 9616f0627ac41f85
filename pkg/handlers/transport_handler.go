package handlers

import "github.com/sessamekesh/splatnet/pkg/message"

// TransportHandler is the bundle a transport adapter receives from the session that owns it.
type TransportHandler struct {
	Name            string
	GetNowTimestamp func() int64

	Events EventSink
}

func (h *TransportHandler) Connect(connectionId uint32) {
	h.Events.Push(TransportEvent{
		Type:          TransportEventType_Connect,
		ConnectionId:  connectionId,
		RecvTimestamp: h.now(),
	})
}

func (h *TransportHandler) Disconnect(connectionId uint32, reason error) {
	h.Events.Push(TransportEvent{
		Type:          TransportEventType_Disconnect,
		ConnectionId:  connectionId,
		Reason:        reason,
		RecvTimestamp: h.now(),
	})
}

func (h *TransportHandler) Receive(connectionId uint32, channel message.Channel, data []byte) {
	h.Events.Push(TransportEvent{
		Type:          TransportEventType_Receive,
		ConnectionId:  connectionId,
		Channel:       channel,
		Data:          data,
		RecvTimestamp: h.now(),
	})
}

func (h *TransportHandler) now() int64 {
	if h.GetNowTimestamp == nil {
		return 0
	}
	return h.GetNowTimestamp()
}
