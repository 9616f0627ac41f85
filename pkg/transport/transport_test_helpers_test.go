package transport

import (
	"testing"
	"time"

	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/queue"
)

func newTestHandler(name string) (*handlers.TransportHandler, *queue.Queue[handlers.TransportEvent]) {
	q := queue.New[handlers.TransportEvent]()
	start := time.Now()
	return &handlers.TransportHandler{
		Name:            name,
		GetNowTimestamp: func() int64 { return time.Since(start).Microseconds() },
		Events:          q,
	}, q
}

// collectEvents drains q until pred has matched `want` events or the timeout fires.
func collectEvents(t *testing.T, q *queue.Queue[handlers.TransportEvent], want int, pred func(handlers.TransportEvent) bool) []handlers.TransportEvent {
	t.Helper()

	var got []handlers.TransportEvent
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range q.Drain() {
			if pred(ev) {
				got = append(got, ev)
			}
		}
		if len(got) >= want {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", want, len(got))
	return nil
}

func ofType(ty handlers.TransportEventType) func(handlers.TransportEvent) bool {
	return func(ev handlers.TransportEvent) bool { return ev.Type == ty }
}

type testQueues struct {
	server *queue.Queue[handlers.TransportEvent]
	client *queue.Queue[handlers.TransportEvent]
}
