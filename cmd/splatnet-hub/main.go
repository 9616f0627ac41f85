// Headless splatnet session host, or a bot client that joins one
package main

import (
	"context"
	"flag"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sessamekesh/splatnet/internal/config"
	"github.com/sessamekesh/splatnet/internal/logging"
	"github.com/sessamekesh/splatnet/pkg/message"
	"github.com/sessamekesh/splatnet/pkg/relay"
	"github.com/sessamekesh/splatnet/pkg/replication"
	"github.com/sessamekesh/splatnet/pkg/session"
	"github.com/sessamekesh/splatnet/pkg/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, cfgErr := config.LoadHubConfig()
	if cfgErr != nil {
		config.Exitf("Failed to load configuration: %v", cfgErr)
	}

	//
	// Flags
	port := flag.Int("port", cfg.Port, "Port for the WebSocket (TCP) and datagram (UDP) listeners")
	wsEndpoint := flag.String("ws-endpoint", cfg.ListenEndpoint, "HTTP endpoint that accepts WebSocket connections")
	hostPlays := flag.Bool("host-plays", cfg.HostPlays, "Give the host its own player with peer id 0")
	tickRate := flag.Int("tick-rate", cfg.TickRate, "Game ticks per second")
	connect := flag.String("connect", "", "Join the session at host:port as a bot instead of hosting")
	logFile := flag.String("log-file", cfg.LogFile, "Also write logs to this rolling file")
	flag.Parse()

	logger, logErr := logging.New(logging.Params{
		Production: cfg.IsProduction(),
		Level:      cfg.LogLevel,
		FilePath:   *logFile,
	})
	if logErr != nil {
		config.Exitf("Failed to create logger: %v", logErr)
	}
	defer logger.Sync()

	if *tickRate <= 0 {
		logger.Fatal("Tick rate must be positive", zap.Int("tickRate", *tickRate))
	}
	tickInterval := time.Second / time.Duration(*tickRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *connect != "" {
		runBot(ctx, logger, *connect, *wsEndpoint, tickInterval, cfg)
		return
	}

	runHost(ctx, logger, hostOptions{
		port:         *port,
		wsEndpoint:   *wsEndpoint,
		hostPlays:    *hostPlays,
		tickInterval: tickInterval,
		cfg:          cfg,
	})
}

type hostOptions struct {
	port         int
	wsEndpoint   string
	hostPlays    bool
	tickInterval time.Duration
	cfg          config.HubConfig
}

func runHost(ctx context.Context, logger *zap.Logger, opts hostOptions) {
	wsServer := transport.CreateWebsocketServer(transport.WebsocketServerParams{
		ListenEndpoint:   opts.wsEndpoint,
		AllowAllHosts:    len(opts.cfg.AllowedOrigins) == 0,
		AllowlistedHosts: opts.cfg.AllowedOrigins,
		DenylistedHosts:  opts.cfg.DeniedOrigins,
		Logger:           logger,
	})

	host := session.CreateHost(session.HostParams{
		Transport:   wsServer,
		HostPlays:   opts.hostPlays,
		IdleTimeout: opts.cfg.IdleTimeout,
		Logger:      logger,
	})
	if err := host.Start(opts.port); err != nil {
		logger.Error("Failed to start host", zap.Error(err))
		return
	}

	hostRelay := relay.CreateHostRelay(relay.HostRelayParams{
		Host:                 host,
		World:                &loggingWorld{log: logger.With(zap.String("handler", "World"))},
		SessionTableInterval: opts.cfg.SessionTableInterval,
		InterpolationRate:    opts.cfg.InterpolationRate,
		Logger:               logger,
	})

	runTicks(ctx, opts.tickInterval, func(dt time.Duration) {
		hostRelay.Tick(dt)
	}, func() {
		logger.Info("Host stats", zap.Any("stats", host.Stats().Snapshot()), zap.Int("peers", host.PeerCount()))
	})

	if err := host.Stop(); err != nil {
		logger.Warn("Errors while stopping host", zap.Error(err))
	}
}

func runBot(ctx context.Context, logger *zap.Logger, target string, wsEndpoint string, tickInterval time.Duration, cfg config.HubConfig) {
	address, portStr, splitErr := net.SplitHostPort(target)
	if splitErr != nil {
		logger.Error("Invalid -connect target, expected host:port", zap.String("target", target), zap.Error(splitErr))
		return
	}
	port, portErr := strconv.Atoi(portStr)
	if portErr != nil {
		logger.Error("Invalid port in -connect target", zap.String("target", target), zap.Error(portErr))
		return
	}

	client := session.CreateClient(session.ClientParams{
		Transport: transport.CreateWebsocketClient(transport.WebsocketClientParams{
			ListenEndpoint: wsEndpoint,
			Logger:         logger,
		}),
		Logger: logger,
	})
	if err := client.Connect(address, port); err != nil {
		logger.Error("Failed to connect", zap.Error(err))
		return
	}
	defer client.Close()

	clientRelay := relay.CreateClientRelay(relay.ClientRelayParams{
		Client:            client,
		World:             &loggingWorld{log: logger.With(zap.String("handler", "World"))},
		InterpolationRate: cfg.InterpolationRate,
		Logger:            logger,
	})

	botCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var elapsed time.Duration
	runTicks(botCtx, tickInterval, func(dt time.Duration) {
		for _, ev := range clientRelay.Tick(dt) {
			switch ev.Type {
			case session.LifecycleEventType_ConnectFailed, session.LifecycleEventType_Disconnected:
				logger.Warn("Bot lost its session", zap.String("event", ev.Type.String()), zap.Error(ev.Reason))
				cancel()
				return
			}
		}

		elapsed += dt
		state, fire := botIntent(elapsed, dt)
		clientRelay.SubmitPlayerState(state)
		if fire != nil {
			clientRelay.SubmitFire(*fire)
		}
	}, func() {
		logger.Info("Bot stats", zap.Any("stats", client.Stats().Snapshot()), zap.Int("remotes", clientRelay.Remotes().Len()))
	})
}

// botIntent walks the bot in a circle and fires once per second along its heading.
func botIntent(elapsed, dt time.Duration) (message.PlayerState, *message.Fire) {
	t := elapsed.Seconds()
	heading := math.Mod(t*36, 360)
	rad := heading * math.Pi / 180

	state := message.PlayerState{
		Position:  message.Vec3{X: float32(10 * math.Cos(rad)), Z: float32(10 * math.Sin(rad))},
		Velocity:  message.Vec3{X: float32(-2 * math.Pi * math.Sin(rad)), Z: float32(2 * math.Pi * math.Cos(rad))},
		RotationY: float32(heading),
	}

	prev := (elapsed - dt).Seconds()
	if math.Floor(t) == math.Floor(prev) {
		return state, nil
	}
	return state, &message.Fire{
		Origin:     state.Position,
		Direction:  message.Vec3{X: float32(math.Cos(rad)), Z: float32(math.Sin(rad))},
		WeaponKind: 0,
		Speed:      20,
		Scale:      1,
		Color:      message.Vec3{X: 1, Y: 0.4, Z: 0.8},
	}
}

func runTicks(ctx context.Context, interval time.Duration, tick func(dt time.Duration), report func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			tick(dt)
		case <-statsTicker.C:
			report()
		}
	}
}

type loggingWorld struct {
	log *zap.Logger
}

func (w *loggingWorld) SpawnRemote(e *replication.RemoteEntityState) {
	w.log.Info("Remote player appeared", zap.Int32("peerId", e.PeerId))
}

func (w *loggingWorld) UpdateRemote(*replication.RemoteEntityState) {}

func (w *loggingWorld) RemoveRemote(peerId int32) {
	w.log.Info("Remote player left", zap.Int32("peerId", peerId))
}

func (w *loggingWorld) SpawnProjectile(fire message.Fire) {
	w.log.Debug("Projectile", zap.Int32("peerId", fire.PeerId), zap.Int32("weapon", fire.WeaponKind))
}

func (w *loggingWorld) RosterChanged(slots []message.SessionSlot) {
	w.log.Debug("Roster", zap.Int("players", len(slots)))
}

func (w *loggingWorld) GameStarted() {
	w.log.Info("Game started")
}
