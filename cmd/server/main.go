package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	authproviders "github.com/emberforge/vanguard/pkg/auth/providers"
	"github.com/emberforge/vanguard/pkg/api"
	"github.com/emberforge/vanguard/pkg/game"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/metrics"
	"github.com/emberforge/vanguard/pkg/network"
	"github.com/emberforge/vanguard/pkg/queue"
	"github.com/emberforge/vanguard/pkg/repositories"
	"github.com/emberforge/vanguard/pkg/state"
	"github.com/emberforge/vanguard/pkg/version"
	"github.com/emberforge/vanguard/pkg/workers"
	"github.com/emberforge/vanguard/pkg/zones"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Int("tcp-port", 8888, "TCP port to listen on")
	flag.Int("udp-port", 8889, "UDP port to listen on")
	flag.Int("ws-port", 8890, "WebSocket port to listen on")
	flag.Int("api-port", 9090, "Admin API port to listen on")
	flag.Int("max-peers", 100, "Maximum number of connected peers")
	flag.String("log-level", "info", "Log level")
	flag.String("database-url", "", "Postgres connection string")
	flag.String("database-path", "vanguard.db", "SQLite database path, used when no Postgres URL is set")
	flag.String("firebase-project-id", "", "Firebase project ID, enables Firebase auth")
	flag.String("firebase-api-key", "", "Firebase API key")
	flag.String("ws-tls-cert", "", "TLS certificate for the WebSocket server")
	flag.String("ws-tls-key", "", "TLS key for the WebSocket server")
	flag.Duration("save-interval", 10*time.Second, "Interval between character state saves")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.GetString("log-level"))
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting server version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repository, err := newRepository(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to create repository: %v", err))
	}
	defer repository.Close(ctx)

	authProvider, err := newAuthProvider(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to create auth provider: %v", err))
	}

	peerManager := network.NewPeerManager(cfg.GetInt("max-peers"))
	inputRegistry := network.NewInputRegistry()
	actionQueue := queue.NewInMemoryQueue(1000)
	serverEventQueue := queue.NewInMemoryQueue(1000)
	serverMetrics := metrics.New()

	var wsTLS *network.TLSConfig
	if cert, key := cfg.GetString("ws-tls-cert"), cfg.GetString("ws-tls-key"); cert != "" && key != "" {
		wsTLS = &network.TLSConfig{CertFile: cert, KeyFile: key}
	}

	networkManager := network.NewNetworkManager(network.NewNetworkManagerOptions{
		AuthProvider:  authProvider,
		PeerManager:   peerManager,
		InputRegistry: inputRegistry,
		ActionQueue:   actionQueue,
		Metrics:       serverMetrics,
		TCPPort:       cfg.GetInt("tcp-port"),
		UDPPort:       cfg.GetInt("udp-port"),
		WSPort:        cfg.GetInt("ws-port"),
		WSServerTLS:   wsTLS,
	})
	networkManager.Start(ctx)

	connectionEventWorker := workers.NewConnectionEventWorker(workers.NewConnectionEventWorkerOptions{
		PeerEventChan:    peerManager.GetPeerEventChan(),
		Repository:       repository,
		ServerEventQueue: serverEventQueue,
	})
	go connectionEventWorker.Start(ctx)

	stateManager := state.NewInMemoryStateManager()
	saveCharacterChan := make(chan workers.SaveCharacterStateRequest, 100)

	saveStateWorker := workers.NewSaveStateWorker(workers.NewSaveStateWorkerOptions{
		Repository:        repository,
		SaveCharacterChan: saveCharacterChan,
		StateManager:      stateManager,
		Interval:          cfg.GetDuration("save-interval"),
	})
	go saveStateWorker.Start(ctx)

	outboundMessageChan := make(chan workers.OutboundMessage, 256)
	outboundMessageWorker := workers.NewOutboundMessageWorker(workers.NewOutboundMessageWorkerOptions{
		NetworkManager:      networkManager,
		OutboundMessageChan: outboundMessageChan,
	})
	go outboundMessageWorker.Start(ctx)

	heartbeatWorker := workers.NewHeartbeatWorker(workers.NewHeartbeatWorkerOptions{
		PeerManager:  peerManager,
		Disconnector: networkManager,
		Metrics:      serverMetrics,
	})
	go heartbeatWorker.Start(ctx)

	gameManager := game.NewGameManager(game.NewGameManagerOptions{
		Sender:              networkManager,
		ServerEventQueue:    serverEventQueue,
		ActionQueue:         actionQueue,
		InputRegistry:       inputRegistry,
		Zones:               zones.NewManager(),
		StateManager:        stateManager,
		SaveCharacterChan:   saveCharacterChan,
		OutboundMessageChan: outboundMessageChan,
		Metrics:             serverMetrics,
	})

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:         cfg.GetInt("api-port"),
		PeerManager:  peerManager,
		StateManager: stateManager,
		ZoneMover:    gameManager,
		Metrics:      serverMetrics,
	})
	go apiServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server: %v", err)
		}
	}()

	log.Info("Starting game manager")
	if err := gameManager.Start(ctx); err != nil {
		log.Error("Game manager stopped: %v", err)
	}
}

// loadConfig resolves settings with flag > env > config file > default
// precedence. Config keys match the flag names.
func loadConfig(configPath string) (*viper.Viper, error) {
	cfg := viper.New()
	flag.VisitAll(func(f *flag.Flag) {
		cfg.SetDefault(f.Name, f.DefValue)
	})
	cfg.SetEnvPrefix("VANGUARD")
	cfg.AutomaticEnv()

	if configPath != "" {
		cfg.SetConfigFile(configPath)
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		cfg.Set(f.Name, f.Value.String())
	})
	return cfg, nil
}

func newRepository(ctx context.Context, cfg *viper.Viper) (repositories.Repository, error) {
	if connStr := cfg.GetString("database-url"); connStr != "" {
		log.Info("Using Postgres repository")
		return repositories.NewPostgresRepository(ctx, connStr)
	}
	path := cfg.GetString("database-path")
	log.Info("Using SQLite repository at %s", path)
	return repositories.NewSQLiteRepository(ctx, path)
}

func newAuthProvider(ctx context.Context, cfg *viper.Viper) (authproviders.AuthProvider, error) {
	if projectID := cfg.GetString("firebase-project-id"); projectID != "" {
		log.Info("Using Firebase auth provider")
		return authproviders.NewFirebaseAuthProvider(ctx, projectID, cfg.GetString("firebase-api-key"))
	}
	log.Warn("Using local auth provider, tokens are not verified")
	return authproviders.NewLocalAuthProvider(), nil
}
