// Command client is a headless client used for exercising servers. It
// registers, wanders the zone at the server tick rate, and runs the same
// prediction and interpolation pipeline a rendering client would.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberforge/vanguard/pkg/client/input"
	"github.com/emberforge/vanguard/pkg/client/interpolation"
	clientnetwork "github.com/emberforge/vanguard/pkg/client/network"
	"github.com/emberforge/vanguard/pkg/client/prediction"
	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/queue"
	"github.com/emberforge/vanguard/pkg/version"
)

func main() {
	hostname := flag.String("hostname", "localhost", "Server hostname")
	tcpPort := flag.Int("tcp-port", 8888, "Server TCP port")
	udpPort := flag.Int("udp-port", 8889, "Server UDP port")
	token := flag.String("token", "local:bot", "Auth token")
	displayName := flag.String("display-name", "bot", "Display name")
	characterID := flag.Int("character-id", 1, "Character ID to play")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)

	log.Info("Starting client version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverMessageQueue := queue.NewInMemoryQueue(1000)
	networkManager := clientnetwork.NewNetworkManager(serverMessageQueue)
	if err := networkManager.Connect(ctx, clientnetwork.RegisterOptions{
		Hostname:    *hostname,
		TCPPort:     *tcpPort,
		UDPPort:     *udpPort,
		Token:       *token,
		DisplayName: *displayName,
		CharacterID: int32(*characterID),
	}); err != nil {
		panic(fmt.Sprintf("Failed to connect: %v", err))
	}
	defer func() {
		if err := networkManager.Disconnect(); err != nil {
			log.Error("Failed to disconnect: %v", err)
		}
	}()
	log.Info("Connected as peer %d in zone %s", networkManager.PeerID(), networkManager.Zone())

	bot := newBot(networkManager)
	bot.run(ctx)
}

type bot struct {
	networkManager *clientnetwork.NetworkManager
	sampler        *input.Sampler
	predictor      *prediction.Predictor
	remotes        map[uint32]*interpolation.Interpolator
}

func newBot(networkManager *clientnetwork.NetworkManager) *bot {
	return &bot{
		networkManager: networkManager,
		sampler: input.NewSampler(input.NewSamplerOptions{
			Source: newWanderSource(),
		}),
		remotes: make(map[uint32]*interpolation.Interpolator),
	}
}

func (b *bot) run(ctx context.Context) {
	ticker := time.NewTicker(constants.TickInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-b.networkManager.TCPClientErrChan():
			log.Error("TCP connection lost: %v", err)
			return
		case err := <-b.networkManager.UDPClientErrChan():
			log.Error("UDP connection lost: %v", err)
			return
		case <-ticker.C:
			if done := b.drainServerMessages(); done {
				return
			}
			b.step()
			b.networkManager.UpdateServerTime(constants.TickInterval.Seconds())

			ticks++
			if ticks%100 == 0 {
				b.logStatus()
			}
		}
	}
}

// step samples one input, predicts its result locally, and sends the
// redundant input batch.
func (b *bot) step() {
	if b.predictor == nil {
		// no initial sync yet
		return
	}

	in := b.sampler.Sample(time.Now())
	b.predictor.ApplyInput(in)
	b.predictor.Update()

	if err := b.networkManager.SendInputBatch(b.sampler.Batch()); err != nil {
		log.Error("Failed to send input batch: %v", err)
	}
}

// drainServerMessages processes everything the server sent since the
// last tick. It reports true when the server has disconnected us.
func (b *bot) drainServerMessages() bool {
	items, err := b.networkManager.ServerMessageQueue().ReadAllMessages()
	if err != nil {
		log.Error("Failed to read server messages: %v", err)
		return false
	}
	for _, item := range items {
		msg, ok := item.(*messages.Message)
		if !ok {
			log.Error("Unexpected message item type %T", item)
			continue
		}
		if done := b.handleServerMessage(msg); done {
			return true
		}
	}
	return false
}

func (b *bot) handleServerMessage(msg *messages.Message) bool {
	switch msg.Type {
	case messages.MessageTypeServerInitialSync:
		var sync messages.ServerInitialSync
		if err := json.Unmarshal(msg.Payload, &sync); err != nil {
			log.Error("Failed to unmarshal initial sync: %v", err)
			return false
		}
		b.handleInitialSync(&sync)
	case messages.MessageTypeServerWorldState:
		var worldState messages.ServerWorldState
		if err := json.Unmarshal(msg.Payload, &worldState); err != nil {
			log.Error("Failed to unmarshal world state: %v", err)
			return false
		}
		b.handleWorldState(&worldState)
	case messages.MessageTypeServerZoneLoad:
		var zoneLoad messages.ServerZoneLoad
		if err := json.Unmarshal(msg.Payload, &zoneLoad); err != nil {
			log.Error("Failed to unmarshal zone load: %v", err)
			return false
		}
		log.Info("Loading zone %s (%s)", zoneLoad.Zone, zoneLoad.SceneRef)
		b.remotes = make(map[uint32]*interpolation.Interpolator)
	case messages.MessageTypeServerPeerJoined:
		var joined messages.ServerPeerJoined
		if err := json.Unmarshal(msg.Payload, &joined); err != nil {
			log.Error("Failed to unmarshal peer joined: %v", err)
			return false
		}
		log.Info("Peer %d (%s) joined", joined.Peer.PeerID, joined.Peer.DisplayName)
		remote := interpolation.NewInterpolator(interpolation.NewInterpolatorOptions{})
		remote.Observe(joined.State)
		b.remotes[joined.Peer.PeerID] = remote
	case messages.MessageTypeServerPeerLeft:
		var left messages.ServerPeerLeft
		if err := json.Unmarshal(msg.Payload, &left); err != nil {
			log.Error("Failed to unmarshal peer left: %v", err)
			return false
		}
		log.Info("Peer %d left", left.PeerID)
		delete(b.remotes, left.PeerID)
	case messages.MessageTypeServerEquipResult:
		var equip messages.ServerEquipResult
		if err := json.Unmarshal(msg.Payload, &equip); err != nil {
			log.Error("Failed to unmarshal equip result: %v", err)
			return false
		}
		log.Debug("Peer %d equipped %s in %s", equip.PeerID, equip.ItemID, equip.Slot)
	case messages.MessageTypeServerHitResult:
		var hit messages.ServerHitResult
		if err := json.Unmarshal(msg.Payload, &hit); err != nil {
			log.Error("Failed to unmarshal hit result: %v", err)
			return false
		}
		if hit.TargetID == b.networkManager.PeerID() {
			log.Info("Took %d damage from peer %d", hit.Damage, hit.AttackerID)
		}
	case messages.MessageTypeServerDisconnect:
		var disconnect messages.ServerDisconnect
		if err := json.Unmarshal(msg.Payload, &disconnect); err != nil {
			log.Error("Failed to unmarshal disconnect: %v", err)
			return true
		}
		log.Info("Disconnected by server: %s", disconnect.Reason)
		return true
	default:
		log.Debug("Ignoring message of type %s", msg.Type)
	}
	return false
}

func (b *bot) handleInitialSync(sync *messages.ServerInitialSync) {
	peerID := b.networkManager.PeerID()
	b.remotes = make(map[uint32]*interpolation.Interpolator)

	for id, snap := range sync.Entities {
		if id == peerID {
			var state types.EntityState
			state.ApplySnapshot(snap)
			b.predictor = prediction.NewPredictor(prediction.NewPredictorOptions{
				Initial: state,
			})
			continue
		}
		remote := interpolation.NewInterpolator(interpolation.NewInterpolatorOptions{})
		remote.Observe(snap)
		b.remotes[id] = remote
	}
	log.Info("Synced to zone %s at tick %d with %d peers", sync.Zone, sync.Tick, len(sync.Roster))
}

func (b *bot) handleWorldState(worldState *messages.ServerWorldState) {
	peerID := b.networkManager.PeerID()
	for id, snap := range worldState.Entities {
		if id == peerID {
			if b.predictor == nil {
				continue
			}
			b.sampler.Ack(snap.AckTick)
			correction := b.predictor.Reconcile(snap)
			if correction.Resimulated {
				log.Debug("Prediction error %.3f, resimulated", correction.Magnitude)
			}
			continue
		}
		remote, ok := b.remotes[id]
		if !ok {
			remote = interpolation.NewInterpolator(interpolation.NewInterpolatorOptions{})
			b.remotes[id] = remote
		}
		remote.Observe(snap)
	}
}

func (b *bot) logStatus() {
	serverTime, ping := b.networkManager.ServerTime()
	if b.predictor == nil {
		log.Info("Awaiting initial sync, ping %.1fms", ping)
		return
	}
	pos := b.predictor.State().Position
	visible := 0
	for _, remote := range b.remotes {
		if _, ok := remote.Sample(int64(serverTime)); ok {
			visible++
		}
	}
	log.Info("At (%.1f, %.1f), ping %.1fms, %d peers visible", pos.X, pos.Y, ping, visible)
}

// wanderSource produces a random walk: pick a heading, follow it for a
// couple of seconds, occasionally stand still.
type wanderSource struct {
	rng       *rand.Rand
	moveX     float64
	moveY     float64
	ticksLeft int
}

func newWanderSource() *wanderSource {
	return &wanderSource{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (w *wanderSource) Sample() (moveX, moveY, aimX, aimY float64, actions uint32) {
	if w.ticksLeft <= 0 {
		w.ticksLeft = 40 + w.rng.Intn(40)
		if w.rng.Intn(4) == 0 {
			w.moveX, w.moveY = 0, 0
		} else {
			heading := w.rng.Float64() * 2 * math.Pi
			w.moveX = math.Cos(heading)
			w.moveY = math.Sin(heading)
		}
	}
	w.ticksLeft--

	return w.moveX, w.moveY, w.moveX, w.moveY, 0
}
