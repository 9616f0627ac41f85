package session

import "sync/atomic"

// Stats are read from any goroutine; the counters only ever increase.
type Stats struct {
	PeersAccepted      atomic.Int64
	PeersDisconnected  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	MessagesRelayed    atomic.Int64
	DecodeErrors       atomic.Int64
	UnknownOriginDrops atomic.Int64
	SelfEchoDrops      atomic.Int64
	SendErrors         atomic.Int64
}

func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"peers_accepted":       s.PeersAccepted.Load(),
		"peers_disconnected":   s.PeersDisconnected.Load(),
		"messages_received":    s.MessagesReceived.Load(),
		"messages_sent":        s.MessagesSent.Load(),
		"messages_relayed":     s.MessagesRelayed.Load(),
		"decode_errors":        s.DecodeErrors.Load(),
		"unknown_origin_drops": s.UnknownOriginDrops.Load(),
		"self_echo_drops":      s.SelfEchoDrops.Load(),
		"send_errors":          s.SendErrors.Load(),
	}
}
