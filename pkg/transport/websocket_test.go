package transport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/message"
	"go.uber.org/zap/zaptest"
)

func TestCheckOrigin(t *testing.T) {
	req := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "http://localhost/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	params := WebsocketServerParams{
		AllowlistedHosts: []string{"http://arena.example"},
		DenylistedHosts:  []string{"http://evil.example"},
	}
	if !checkOrigin(req(""), params) {
		t.Error("native clients without an Origin header should be allowed")
	}
	if !checkOrigin(req("http://arena.example"), params) {
		t.Error("allowlisted origin rejected")
	}
	if checkOrigin(req("http://other.example"), params) {
		t.Error("unlisted origin accepted")
	}

	params.AllowAllHosts = true
	if !checkOrigin(req("http://other.example"), params) {
		t.Error("AllowAllHosts should accept any origin")
	}
	if checkOrigin(req("http://evil.example"), params) {
		t.Error("denylist must win over AllowAllHosts")
	}
}

func startWebsocketPair(t *testing.T) (*WebsocketServer, *WebsocketClient, uint32, *testQueues) {
	t.Helper()

	server := CreateWebsocketServer(WebsocketServerParams{
		AllowAllHosts: true,
		Logger:        zaptest.NewLogger(t),
	})
	serverHandler, serverEvents := newTestHandler("server")
	if err := server.Listen(context.Background(), 0, serverHandler); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	client := CreateWebsocketClient(WebsocketClientParams{
		KeepAliveInterval: 50 * time.Millisecond,
		Logger:            zaptest.NewLogger(t),
	})
	clientHandler, clientEvents := newTestHandler("client")
	if err := client.Dial(context.Background(), "127.0.0.1", server.Port(), clientHandler); err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	connId := collectEvents(t, serverEvents, 1, ofType(handlers.TransportEventType_Connect))[0].ConnectionId
	collectEvents(t, clientEvents, 1, ofType(handlers.TransportEventType_Connect))

	return server, client, connId, &testQueues{server: serverEvents, client: clientEvents}
}

func TestWebsocketReliableRoundTrip(t *testing.T) {
	server, client, connId, q := startWebsocketPair(t)

	for i := 0; i < 20; i++ {
		if err := client.Send(message.Channel_Reliable, []byte{byte(i), 0xEE}); err != nil {
			t.Fatalf("client send: %v", err)
		}
	}
	got := collectEvents(t, q.server, 20, ofType(handlers.TransportEventType_Receive))
	for i, ev := range got {
		if ev.ConnectionId != connId || ev.Data[0] != byte(i) || len(ev.Data) != 2 {
			t.Fatalf("unexpected server receive %d: %+v", i, ev)
		}
	}

	if err := server.Send(connId, message.Channel_Reliable, []byte{0x42}); err != nil {
		t.Fatalf("server send: %v", err)
	}
	reply := collectEvents(t, q.client, 1, ofType(handlers.TransportEventType_Receive))
	if reply[0].Data[0] != 0x42 || reply[0].Channel != message.Channel_Reliable {
		t.Fatalf("unexpected client receive %+v", reply[0])
	}
}

func TestWebsocketUnreliableUsesDatagrams(t *testing.T) {
	_, client, connId, q := startWebsocketPair(t)

	// The datagram path binds asynchronously, so keep sending until one lands.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		client.Send(message.Channel_Unreliable, []byte{0x07})
		for _, ev := range q.server.Drain() {
			if ev.Type == handlers.TransportEventType_Receive {
				if ev.Channel != message.Channel_Unreliable || ev.ConnectionId != connId || ev.Data[0] != 0x07 {
					t.Fatalf("unexpected datagram event %+v", ev)
				}
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("no datagram arrived")
}

func TestWebsocketServerSeesClientClose(t *testing.T) {
	_, client, connId, q := startWebsocketPair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := collectEvents(t, q.server, 1, ofType(handlers.TransportEventType_Disconnect))
	if got[0].ConnectionId != connId {
		t.Fatalf("disconnect for wrong connection %+v", got[0])
	}
	if len(q.client.Drain()) != 0 {
		t.Fatal("a local close should not raise client events")
	}
}

func TestWebsocketClientSeesServerDisconnect(t *testing.T) {
	server, client, connId, q := startWebsocketPair(t)

	server.Disconnect(connId)

	collectEvents(t, q.client, 1, ofType(handlers.TransportEventType_Disconnect))
	if err := client.Send(message.Channel_Reliable, []byte{1}); err == nil {
		t.Fatal("send after disconnect should fail")
	}
	for _, ev := range q.server.Drain() {
		if ev.Type == handlers.TransportEventType_Disconnect {
			t.Fatal("a session-initiated disconnect should not raise a server event")
		}
	}
}

func TestWebsocketDialFailureIsAsynchronous(t *testing.T) {
	client := CreateWebsocketClient(WebsocketClientParams{
		HandshakeTimeout: 500 * time.Millisecond,
		Logger:           zaptest.NewLogger(t),
	})
	defer client.Close()
	handler, events := newTestHandler("client")

	// Nothing listens on port 1 in the test environment.
	if err := client.Dial(context.Background(), "127.0.0.1", 1, handler); err != nil {
		t.Fatalf("dial should not fail synchronously: %v", err)
	}
	got := collectEvents(t, events, 1, ofType(handlers.TransportEventType_Disconnect))
	if got[0].Reason == nil {
		t.Fatal("expected a failure reason")
	}
}

func TestWebsocketDialRejectsBadTarget(t *testing.T) {
	client := CreateWebsocketClient(WebsocketClientParams{Logger: zaptest.NewLogger(t)})
	handler, _ := newTestHandler("client")
	if err := client.Dial(context.Background(), "", 7777, handler); err == nil {
		t.Fatal("empty address accepted")
	}
	if err := client.Dial(context.Background(), "127.0.0.1", 70000, handler); err == nil {
		t.Fatal("out of range port accepted")
	}
}

func TestPeerCloseLeavesSocketToWriter(t *testing.T) {
	// No socket: close must only signal the writer goroutine
	peer := &wsPeerConnection{id: 1, closed: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		peer.close()
		peer.close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close blocked")
	}
	select {
	case <-peer.closed:
	default:
		t.Fatal("closed channel not signalled")
	}
}
