package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/message"
	utils "github.com/sessamekesh/splatnet/pkg/util"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type wsPeerConnection struct {
	id    uint32
	token string
	conn  *websocket.Conn

	outgoing  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mut_udpAddr sync.RWMutex
	udpAddr     *net.UDPAddr
}

// close never blocks. The writer goroutine sends the close frame and releases the socket.
func (c *wsPeerConnection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *wsPeerConnection) getUdpAddr() *net.UDPAddr {
	c.mut_udpAddr.RLock()
	defer c.mut_udpAddr.RUnlock()
	return c.udpAddr
}

// bindUdpAddr records the datagram return path. The first address wins; datagrams from any
// other address are rejected.
func (c *wsPeerConnection) bindUdpAddr(addr *net.UDPAddr) bool {
	c.mut_udpAddr.Lock()
	defer c.mut_udpAddr.Unlock()

	if c.udpAddr == nil {
		c.udpAddr = addr
		return true
	}
	return c.udpAddr.IP.Equal(addr.IP) && c.udpAddr.Port == addr.Port
}

type WebsocketServerParams struct {
	ListenEndpoint   string
	AllowAllHosts    bool
	AllowlistedHosts []string
	DenylistedHosts  []string

	MaxReadMessageSize         int64
	OutgoingMessageQueueLength int
	WriteTimeout               time.Duration

	Logger *zap.Logger
}

// WebsocketServer carries reliable traffic over one WebSocket per peer and unreliable traffic
// over a shared UDP socket bound to the same port number.
type WebsocketServer struct {
	params    WebsocketServerParams
	upgrader  *websocket.Upgrader
	log       *zap.Logger
	stringGen *utils.RandomStringGenerator

	handler *handlers.TransportHandler

	nextConnectionId atomic.Uint32
	started          atomic.Bool

	mut_connections sync.RWMutex
	connections     map[uint32]*wsPeerConnection
	tokens          map[string]uint32

	httpServer *http.Server
	udpConn    *net.UDPConn
	port       int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func checkOrigin(r *http.Request, params WebsocketServerParams) bool {
	origin := r.Header.Get("Origin")
	if utils.Contains(origin, params.DenylistedHosts) {
		return false
	}

	if params.AllowAllHosts || origin == "" {
		return true
	}

	return utils.Contains(origin, params.AllowlistedHosts)
}

func CreateWebsocketServer(params WebsocketServerParams) *WebsocketServer {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.ListenEndpoint == "" {
		params.ListenEndpoint = DefaultListenEndpoint
	}
	if params.MaxReadMessageSize == 0 {
		params.MaxReadMessageSize = 4096
	}
	if params.OutgoingMessageQueueLength == 0 {
		params.OutgoingMessageQueueLength = 256
	}
	if params.WriteTimeout == 0 {
		params.WriteTimeout = 5 * time.Second
	}

	return &WebsocketServer{
		params: params,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, params)
			},
		},
		log:         logger.With(zap.String("handler", "WebSocketServer")),
		stringGen:   utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
		connections: make(map[uint32]*wsPeerConnection),
		tokens:      make(map[string]uint32),
	}
}

// Port is the bound TCP/UDP port once Listen succeeded.
func (s *WebsocketServer) Port() int {
	return s.port
}

func (s *WebsocketServer) Listen(ctx context.Context, port int, handler *handlers.TransportHandler) error {
	if !s.started.CompareAndSwap(false, true) {
		return &AlreadyStartedError{Name: "WebSocketServer"}
	}

	listener, listenErr := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if listenErr != nil {
		s.started.Store(false)
		return listenErr
	}
	boundPort := listener.Addr().(*net.TCPAddr).Port

	udpConn, udpErr := net.ListenUDP("udp", &net.UDPAddr{Port: boundPort})
	if udpErr != nil {
		listener.Close()
		s.started.Store(false)
		return udpErr
	}

	s.handler = handler
	s.port = boundPort
	s.udpConn = udpConn

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	mux := http.NewServeMux()
	mux.HandleFunc(s.params.ListenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		s.onWsRequest(runCtx, w, r)
	})
	s.httpServer = &http.Server{
		Handler: mux,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("Starting WebSocket server", zap.Int("port", boundPort), zap.String("endpoint", s.params.ListenEndpoint))
		if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Unexpected WebSocket server close!", zap.Error(err))
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readDatagrams()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-runCtx.Done()
		s.shutdown()
	}()

	return nil
}

func (s *WebsocketServer) onWsRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	connectionId := s.nextConnectionId.Add(1)
	token := s.stringGen.GetRandomString(ChannelTokenLength)
	log := s.log.With(zap.Uint32("connId", connectionId))

	responseHeader := http.Header{}
	responseHeader.Set(ChannelTokenHeader, token)

	c, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		log.Warn("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}
	c.SetReadLimit(s.params.MaxReadMessageSize)

	peer := &wsPeerConnection{
		id:       connectionId,
		token:    token,
		conn:     c,
		outgoing: make(chan []byte, s.params.OutgoingMessageQueueLength),
		closed:   make(chan struct{}),
	}

	func() {
		s.mut_connections.Lock()
		defer s.mut_connections.Unlock()
		s.connections[connectionId] = peer
		s.tokens[token] = connectionId
	}()

	log.Info("New WebSocket connection", zap.String("remoteAddr", r.RemoteAddr))
	s.handler.Connect(connectionId)

	go s.writePump(peer, log)

	expectedCloseErrors := []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived}
	for {
		msgType, payload, msgErr := c.ReadMessage()
		if msgErr != nil {
			select {
			case <-peer.closed:
				log.Debug("Read loop exiting after local close")
				s.dropConnection(connectionId, nil)
				return
			case <-ctx.Done():
				s.dropConnection(connectionId, nil)
				return
			default:
			}

			if websocket.IsCloseError(msgErr, expectedCloseErrors...) {
				log.Info("Received close request from peer")
				s.dropConnection(connectionId, nil)
				return
			}

			if strings.Contains(msgErr.Error(), "use of closed network connection") {
				s.dropConnection(connectionId, nil)
				return
			}

			log.Warn("WebSocket read failed, dropping connection", zap.Error(msgErr))
			s.dropConnection(connectionId, msgErr)
			return
		}

		if msgType != websocket.BinaryMessage {
			log.Info("Received non-binary message, ignoring", zap.Int("size", len(payload)))
			continue
		}

		s.handler.Receive(connectionId, message.Channel_Reliable, payload)
	}
}

func (s *WebsocketServer) writePump(peer *wsPeerConnection, log *zap.Logger) {
	defer peer.conn.Close()

	for {
		select {
		case <-peer.closed:
			peer.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case data := <-peer.outgoing:
			peer.conn.SetWriteDeadline(time.Now().Add(s.params.WriteTimeout))
			if err := peer.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Warn("WebSocket write failed, dropping connection", zap.Error(err))
				s.dropConnection(peer.id, err)
				return
			}
		}
	}
}

func (s *WebsocketServer) readDatagrams() {
	for {
		var buf [maxDatagramSize]byte
		bytesRead, addr, err := s.udpConn.ReadFromUDP(buf[0:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("UDP socket closed - exiting datagram listening goroutine")
				return
			}
			s.log.Warn("Error reading UDP datagram", zap.Error(err))
			continue
		}

		if bytesRead < ChannelTokenLength {
			s.log.Debug("Datagram shorter than channel token, skipping", zap.String("addr", addr.String()))
			continue
		}

		token := string(buf[:ChannelTokenLength])
		peer, has := func() (*wsPeerConnection, bool) {
			s.mut_connections.RLock()
			defer s.mut_connections.RUnlock()
			connectionId, has := s.tokens[token]
			if !has {
				return nil, false
			}
			peer, has := s.connections[connectionId]
			return peer, has
		}()
		if !has {
			s.log.Debug("Datagram with unknown channel token, skipping", zap.String("addr", addr.String()))
			continue
		}

		if !peer.bindUdpAddr(addr) {
			s.log.Info("Datagram did not come from the bound address, skipping",
				zap.Uint32("connId", peer.id),
				zap.String("addr", addr.String()),
				zap.String("expectedAddr", peer.getUdpAddr().String()))
			continue
		}

		if bytesRead == ChannelTokenLength {
			// Bind / keepalive only
			continue
		}

		s.handler.Receive(peer.id, message.Channel_Unreliable, copyBytes(buf[ChannelTokenLength:bytesRead]))
	}
}

// Send never blocks. Unreliable data falls back to the WebSocket until the peer's datagram
// path has been bound.
func (s *WebsocketServer) Send(connectionId uint32, channel message.Channel, data []byte) error {
	peer, has := func() (*wsPeerConnection, bool) {
		s.mut_connections.RLock()
		defer s.mut_connections.RUnlock()
		peer, has := s.connections[connectionId]
		return peer, has
	}()
	if !has {
		return &NotConnectedError{ConnectionId: connectionId}
	}

	if channel == message.Channel_Unreliable {
		if addr := peer.getUdpAddr(); addr != nil {
			_, err := s.udpConn.WriteToUDP(data, addr)
			return err
		}
	}

	select {
	case <-peer.closed:
		return &NotConnectedError{ConnectionId: connectionId}
	case peer.outgoing <- copyBytes(data):
		return nil
	default:
		err := &OutgoingQueueFullError{ConnectionId: connectionId}
		s.log.Warn("Dropping connection with full outgoing queue", zap.Uint32("connId", connectionId))
		s.dropConnection(connectionId, err)
		return err
	}
}

// Disconnect closes a connection without raising a Disconnect event.
func (s *WebsocketServer) Disconnect(connectionId uint32) {
	peer, has := s.removeConnection(connectionId)
	if !has {
		return
	}
	s.log.Info("Closing connection at request of session", zap.Uint32("connId", connectionId))
	peer.close()
}

func (s *WebsocketServer) removeConnection(connectionId uint32) (*wsPeerConnection, bool) {
	s.mut_connections.Lock()
	defer s.mut_connections.Unlock()

	peer, has := s.connections[connectionId]
	if !has {
		return nil, false
	}
	delete(s.connections, connectionId)
	delete(s.tokens, peer.token)
	return peer, true
}

// dropConnection raises exactly one Disconnect event per connection the session has not
// already closed itself.
func (s *WebsocketServer) dropConnection(connectionId uint32, reason error) {
	peer, has := s.removeConnection(connectionId)
	if !has {
		return
	}
	peer.close()
	s.handler.Disconnect(connectionId, reason)
}

func (s *WebsocketServer) shutdown() {
	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownRelease()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Failed to gracefully shut down WebSocket server", zap.Error(err))
	}
	s.udpConn.Close()

	peers := func() []*wsPeerConnection {
		s.mut_connections.Lock()
		defer s.mut_connections.Unlock()
		out := make([]*wsPeerConnection, 0, len(s.connections))
		for id, peer := range s.connections {
			out = append(out, peer)
			delete(s.connections, id)
			delete(s.tokens, peer.token)
		}
		return out
	}()
	for _, peer := range peers {
		peer.close()
	}
}

func (s *WebsocketServer) Close() error {
	if !s.started.Load() || s.cancel == nil {
		return nil
	}
	s.cancel()
	s.wg.Wait()

	var err error
	err = multierr.Append(err, ignoreClosed(s.udpConn.Close()))
	err = multierr.Append(err, ignoreServerClosed(s.httpServer.Close()))
	s.log.Info("All WebSocket server goroutines finished. Exiting gracefully!")
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
