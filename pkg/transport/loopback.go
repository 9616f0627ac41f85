package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessamekesh/splatnet/pkg/errors"
	"github.com/sessamekesh/splatnet/pkg/handlers"
	"github.com/sessamekesh/splatnet/pkg/message"
	utils "github.com/sessamekesh/splatnet/pkg/util"
	"go.uber.org/zap"
)

type LoopbackNetworkParams struct {
	// Probability in [0, 1] that an unreliable send is silently lost.
	UnreliableDropProbability float64
	Seed                      int64

	Logger *zap.Logger
}

// LoopbackNetwork connects servers and clients living in the same process. Reliable sends are
// delivered in order; unreliable sends may be dropped according to the configured probability.
type LoopbackNetwork struct {
	params LoopbackNetworkParams
	log    *zap.Logger
	rng    *utils.RandomStringGenerator

	mut_servers sync.RWMutex
	servers     map[int]*LoopbackServer
}

type NoListenerError struct {
	Port int
}

func (e *NoListenerError) Error() string {
	return fmt.Sprintf("No loopback listener on port %d", e.Port)
}

func CreateLoopbackNetwork(params LoopbackNetworkParams) *LoopbackNetwork {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixMicro()
	}

	return &LoopbackNetwork{
		params:  params,
		log:     logger.With(zap.String("handler", "Loopback")),
		rng:     utils.CreateRandomstringGenerator(seed),
		servers: make(map[int]*LoopbackServer),
	}
}

func (n *LoopbackNetwork) shouldDrop(channel message.Channel) bool {
	if channel != message.Channel_Unreliable || n.params.UnreliableDropProbability <= 0 {
		return false
	}
	return n.rng.Float64() < n.params.UnreliableDropProbability
}

func (n *LoopbackNetwork) NewServer() *LoopbackServer {
	return &LoopbackServer{
		network:     n,
		connections: make(map[uint32]*LoopbackClient),
	}
}

func (n *LoopbackNetwork) NewClient() *LoopbackClient {
	return &LoopbackClient{network: n}
}

func (n *LoopbackNetwork) getServer(port int) (*LoopbackServer, bool) {
	n.mut_servers.RLock()
	defer n.mut_servers.RUnlock()
	s, has := n.servers[port]
	return s, has
}

//
// Server side

type LoopbackServer struct {
	network *LoopbackNetwork
	handler *handlers.TransportHandler
	port    int

	nextConnectionId atomic.Uint32

	mut_connections sync.RWMutex
	listening       bool
	connections     map[uint32]*LoopbackClient
}

func (s *LoopbackServer) Listen(_ context.Context, port int, handler *handlers.TransportHandler) error {
	s.network.mut_servers.Lock()
	defer s.network.mut_servers.Unlock()

	if _, has := s.network.servers[port]; has {
		return &errors.NameCollision{
			CollisionContext: "LoopbackNetwork::Listen",
			Name:             strconv.Itoa(port),
		}
	}

	s.mut_connections.Lock()
	defer s.mut_connections.Unlock()
	if s.listening {
		return &AlreadyStartedError{Name: "LoopbackServer"}
	}

	s.handler = handler
	s.port = port
	s.listening = true
	s.network.servers[port] = s
	s.network.log.Debug("Loopback server listening", zap.Int("port", port))
	return nil
}

func (s *LoopbackServer) accept(client *LoopbackClient) (uint32, error) {
	s.mut_connections.Lock()
	defer s.mut_connections.Unlock()

	if !s.listening {
		return 0, &NoListenerError{Port: s.port}
	}
	connectionId := s.nextConnectionId.Add(1)
	s.connections[connectionId] = client
	return connectionId, nil
}

func (s *LoopbackServer) removeConnection(connectionId uint32) (*LoopbackClient, bool) {
	s.mut_connections.Lock()
	defer s.mut_connections.Unlock()

	client, has := s.connections[connectionId]
	if has {
		delete(s.connections, connectionId)
	}
	return client, has
}

func (s *LoopbackServer) deliver(connectionId uint32, channel message.Channel, data []byte) {
	s.mut_connections.RLock()
	_, has := s.connections[connectionId]
	s.mut_connections.RUnlock()
	if !has {
		return
	}
	s.handler.Receive(connectionId, channel, data)
}

func (s *LoopbackServer) Send(connectionId uint32, channel message.Channel, data []byte) error {
	s.mut_connections.RLock()
	client, has := s.connections[connectionId]
	s.mut_connections.RUnlock()

	if !has {
		return &NotConnectedError{ConnectionId: connectionId}
	}
	if s.network.shouldDrop(channel) {
		return nil
	}
	client.deliver(channel, copyBytes(data))
	return nil
}

// Disconnect closes the link; the client observes a clean close.
func (s *LoopbackServer) Disconnect(connectionId uint32) {
	client, has := s.removeConnection(connectionId)
	if !has {
		return
	}
	client.remoteClosed(nil)
}

func (s *LoopbackServer) Close() error {
	s.network.mut_servers.Lock()
	if current, has := s.network.servers[s.port]; has && current == s {
		delete(s.network.servers, s.port)
	}
	s.network.mut_servers.Unlock()

	clients := func() []*LoopbackClient {
		s.mut_connections.Lock()
		defer s.mut_connections.Unlock()
		s.listening = false
		out := make([]*LoopbackClient, 0, len(s.connections))
		for id, client := range s.connections {
			out = append(out, client)
			delete(s.connections, id)
		}
		return out
	}()
	for _, client := range clients {
		client.remoteClosed(nil)
	}
	return nil
}

//
// Client side

type LoopbackClient struct {
	network *LoopbackNetwork
	handler *handlers.TransportHandler

	mut_link     sync.RWMutex
	server       *LoopbackServer
	connectionId uint32
	connected    bool
}

func (c *LoopbackClient) Dial(_ context.Context, address string, port int, handler *handlers.TransportHandler) error {
	if err := validateDialTarget(address, port); err != nil {
		return err
	}

	c.mut_link.Lock()
	defer c.mut_link.Unlock()
	if c.connected {
		return &AlreadyStartedError{Name: "LoopbackClient"}
	}
	c.handler = handler

	server, has := c.network.getServer(port)
	if !has {
		handler.Disconnect(ClientConnectionId, &NoListenerError{Port: port})
		return nil
	}

	connectionId, err := server.accept(c)
	if err != nil {
		handler.Disconnect(ClientConnectionId, err)
		return nil
	}

	c.server = server
	c.connectionId = connectionId
	c.connected = true

	handler.Connect(ClientConnectionId)
	server.handler.Connect(connectionId)
	return nil
}

func (c *LoopbackClient) deliver(channel message.Channel, data []byte) {
	c.mut_link.RLock()
	connected := c.connected
	c.mut_link.RUnlock()
	if !connected {
		return
	}
	c.handler.Receive(ClientConnectionId, channel, data)
}

func (c *LoopbackClient) remoteClosed(reason error) {
	c.mut_link.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mut_link.Unlock()

	if wasConnected {
		c.handler.Disconnect(ClientConnectionId, reason)
	}
}

func (c *LoopbackClient) Send(channel message.Channel, data []byte) error {
	c.mut_link.RLock()
	server, connectionId, connected := c.server, c.connectionId, c.connected
	c.mut_link.RUnlock()

	if !connected {
		return &NotConnectedError{ConnectionId: ClientConnectionId}
	}
	if c.network.shouldDrop(channel) {
		return nil
	}
	server.deliver(connectionId, channel, copyBytes(data))
	return nil
}

// Close is a clean local close: the server observes a Disconnect, this side raises nothing.
func (c *LoopbackClient) Close() error {
	c.mut_link.Lock()
	server, connectionId, connected := c.server, c.connectionId, c.connected
	c.connected = false
	c.mut_link.Unlock()

	if !connected {
		return nil
	}
	if _, has := server.removeConnection(connectionId); has {
		server.handler.Disconnect(connectionId, nil)
	}
	return nil
}

// Sever simulates a transport-detected link failure: both ends observe a Disconnect.
func (c *LoopbackClient) Sever() {
	c.mut_link.RLock()
	server, connectionId := c.server, c.connectionId
	c.mut_link.RUnlock()

	if server == nil {
		return
	}
	if _, has := server.removeConnection(connectionId); has {
		server.handler.Disconnect(connectionId, &LinkSeveredError{})
	}
	c.remoteClosed(&LinkSeveredError{})
}
