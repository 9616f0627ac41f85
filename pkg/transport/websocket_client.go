package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/message"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type WebsocketClientParams struct {
	ListenEndpoint string

	HandshakeTimeout           time.Duration
	KeepAliveInterval          time.Duration
	WriteTimeout               time.Duration
	MaxReadMessageSize         int64
	OutgoingMessageQueueLength int

	Logger *zap.Logger
}

// WebsocketClient is the client half of WebsocketServer.
type WebsocketClient struct {
	params WebsocketClientParams
	log    *zap.Logger

	handler *handlers.TransportHandler

	mut_link  sync.RWMutex
	dialing   bool
	connected bool
	conn      *websocket.Conn
	udpConn   *net.UDPConn
	token     []byte

	outgoing  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func CreateWebsocketClient(params WebsocketClientParams) *WebsocketClient {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.ListenEndpoint == "" {
		params.ListenEndpoint = DefaultListenEndpoint
	}
	if params.HandshakeTimeout == 0 {
		params.HandshakeTimeout = 5 * time.Second
	}
	if params.KeepAliveInterval == 0 {
		params.KeepAliveInterval = time.Second
	}
	if params.WriteTimeout == 0 {
		params.WriteTimeout = 5 * time.Second
	}
	if params.MaxReadMessageSize == 0 {
		params.MaxReadMessageSize = 4096
	}
	if params.OutgoingMessageQueueLength == 0 {
		params.OutgoingMessageQueueLength = 256
	}

	return &WebsocketClient{
		params:   params,
		log:      logger.With(zap.String("handler", "WebSocketClient")),
		outgoing: make(chan []byte, params.OutgoingMessageQueueLength),
		closed:   make(chan struct{}),
	}
}

func (c *WebsocketClient) Dial(ctx context.Context, address string, port int, handler *handlers.TransportHandler) error {
	if err := validateDialTarget(address, port); err != nil {
		return err
	}

	err := func() error {
		c.mut_link.Lock()
		defer c.mut_link.Unlock()
		if c.dialing || c.connected {
			return &AlreadyStartedError{Name: "WebSocketClient"}
		}
		c.dialing = true
		c.handler = handler
		return nil
	}()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	hostPort := net.JoinHostPort(address, strconv.Itoa(port))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dial(runCtx, hostPort)
	}()

	return nil
}

func (c *WebsocketClient) dial(ctx context.Context, hostPort string) {
	log := c.log.With(zap.String("server", hostPort))
	url := fmt.Sprintf("ws://%s%s", hostPort, c.params.ListenEndpoint)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.params.HandshakeTimeout,
	}
	conn, resp, dialErr := dialer.DialContext(ctx, url, nil)
	if dialErr != nil {
		log.Warn("Failed to dial WebSocket server", zap.Error(dialErr))
		func() {
			c.mut_link.Lock()
			defer c.mut_link.Unlock()
			c.dialing = false
		}()
		c.handler.Disconnect(ClientConnectionId, dialErr)
		return
	}
	conn.SetReadLimit(c.params.MaxReadMessageSize)

	token := []byte(resp.Header.Get(ChannelTokenHeader))
	var udpConn *net.UDPConn
	if len(token) == ChannelTokenLength {
		udpAddr, resolveErr := net.ResolveUDPAddr("udp", hostPort)
		if resolveErr == nil {
			udpConn, resolveErr = net.DialUDP("udp", nil, udpAddr)
		}
		if resolveErr != nil {
			log.Warn("Datagram path unavailable, unreliable traffic will use the WebSocket", zap.Error(resolveErr))
			udpConn = nil
		}
	} else {
		log.Warn("Server did not provide a channel token, unreliable traffic will use the WebSocket")
	}

	abandoned := func() bool {
		c.mut_link.Lock()
		defer c.mut_link.Unlock()
		c.dialing = false
		select {
		case <-c.closed:
			return true
		default:
		}
		c.connected = true
		c.conn = conn
		c.udpConn = udpConn
		c.token = token
		return false
	}()
	if abandoned {
		conn.Close()
		if udpConn != nil {
			udpConn.Close()
		}
		return
	}

	log.Info("Connected to WebSocket server", zap.Bool("datagrams", udpConn != nil))
	c.handler.Connect(ClientConnectionId)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.writePump(conn, log)
	}()

	if udpConn != nil {
		c.wg.Add(2)
		go func() {
			defer c.wg.Done()
			c.readDatagrams(udpConn, log)
		}()
		go func() {
			defer c.wg.Done()
			c.keepAlive(ctx, udpConn, token)
		}()
	}

	c.readPump(conn, log)
}

func (c *WebsocketClient) readPump(conn *websocket.Conn, log *zap.Logger) {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			var reason error
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = err
			}
			log.Info("Server connection closed", zap.Error(err))
			c.teardown()
			c.handler.Disconnect(ClientConnectionId, reason)
			return
		}

		if msgType != websocket.BinaryMessage {
			log.Info("Received non-binary message, ignoring", zap.Int("size", len(payload)))
			continue
		}

		c.handler.Receive(ClientConnectionId, message.Channel_Reliable, payload)
	}
}

func (c *WebsocketClient) writePump(conn *websocket.Conn, log *zap.Logger) {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(c.params.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Warn("WebSocket write failed", zap.Error(err))
				// The read pump observes the broken link and reports it.
				conn.Close()
				return
			}
		}
	}
}

func (c *WebsocketClient) readDatagrams(udpConn *net.UDPConn, log *zap.Logger) {
	for {
		var buf [maxDatagramSize]byte
		bytesRead, err := udpConn.Read(buf[0:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP unreachable and friends surface here; the WebSocket decides liveness.
			log.Debug("Error reading UDP datagram", zap.Error(err))
			continue
		}
		if bytesRead == 0 {
			continue
		}
		c.handler.Receive(ClientConnectionId, message.Channel_Unreliable, copyBytes(buf[:bytesRead]))
	}
}

func (c *WebsocketClient) keepAlive(ctx context.Context, udpConn *net.UDPConn, token []byte) {
	ticker := time.NewTicker(c.params.KeepAliveInterval)
	defer ticker.Stop()

	udpConn.Write(token)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			udpConn.Write(token)
		}
	}
}

func (c *WebsocketClient) Send(channel message.Channel, data []byte) error {
	c.mut_link.RLock()
	defer c.mut_link.RUnlock()

	if !c.connected {
		return &NotConnectedError{ConnectionId: ClientConnectionId}
	}

	if channel == message.Channel_Unreliable && c.udpConn != nil {
		datagram := make([]byte, 0, len(c.token)+len(data))
		datagram = append(datagram, c.token...)
		datagram = append(datagram, data...)
		_, err := c.udpConn.Write(datagram)
		return err
	}

	select {
	case c.outgoing <- copyBytes(data):
		return nil
	default:
		return &OutgoingQueueFullError{ConnectionId: ClientConnectionId}
	}
}

func (c *WebsocketClient) teardown() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		// Socket writes happen outside the lock so Send is never held up by a slow peer
		conn, udpConn := func() (*websocket.Conn, *net.UDPConn) {
			c.mut_link.Lock()
			defer c.mut_link.Unlock()
			c.connected = false
			return c.conn, c.udpConn
		}()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			err = multierr.Append(err, ignoreClosed(conn.Close()))
		}
		if udpConn != nil {
			err = multierr.Append(err, ignoreClosed(udpConn.Close()))
		}
	})
	return err
}

// Close is synchronous; no events are raised for a locally closed link.
func (c *WebsocketClient) Close() error {
	err := c.teardown()
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return err
}
