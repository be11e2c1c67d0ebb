package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gregor-bridge/internal/cloud"
	"github.com/nerrad567/gregor-bridge/internal/command"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

const (
	// commandTimeout bounds one cloud round trip made for a command.
	commandTimeout = 15 * time.Second

	// eventBuffer is how many registry events may wait for publication.
	eventBuffer = 256

	defaultBridgeID = "gregor"
)

// MQTTClient is the broker surface the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Commander executes user commands against the cloud.
// *command.Dispatcher satisfies it.
type Commander interface {
	Open(ctx context.Context, deviceID int64) (registry.CoverState, error)
	Close(ctx context.Context, deviceID int64) (registry.CoverState, error)
	SetMode(ctx context.Context, roomID int64, mode string) error
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds the dependencies of a Bridge.
type Options struct {
	MQTTClient MQTTClient
	Registry   *registry.Registry
	Commander  Commander

	// Topics defaults to the "gregor" prefix.
	Topics mqtt.Topics

	// QoS for state and ack messages. Default: 1.
	QoS byte

	BridgeID       string
	Version        string
	HealthInterval time.Duration

	// Cloud reports token state in health messages. Optional.
	Cloud TokenSource

	Logger Logger
}

// Bridge exposes the registry on MQTT.
//
// Every registry change is published retained under gregor/state/...,
// commands on gregor/command/{drive|room}/{id} are routed to the Commander
// and answered on gregor/ack/..., and a health message is kept current.
//
// Registry events are queued and published from a single goroutine so the
// poll cycle never waits on the broker. When the queue is full the event is
// dropped and counted; the next snapshot or change restores the state.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client    MQTTClient
	reg       *registry.Registry
	commander Commander
	topics    mqtt.Topics
	qos       byte
	health    *HealthReporter

	events      chan registry.Event
	unsubscribe func()

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64
	eventsDropped    atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge validates opts and creates a bridge. Call Start to begin.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidOptions)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidOptions)
	}
	if opts.Commander == nil {
		return nil, fmt.Errorf("%w: commander is required", ErrInvalidOptions)
	}

	qos := opts.QoS
	if qos == 0 {
		qos = 1
	}
	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = defaultBridgeID
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		client:    opts.MQTTClient,
		reg:       opts.Registry,
		commander: opts.Commander,
		topics:    opts.Topics,
		qos:       qos,
		events:    make(chan registry.Event, eventBuffer),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  bridgeID,
		Version:   opts.Version,
		Topic:     opts.Topics.Health(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Cloud:     opts.Cloud,
		Stats:     b.Stats,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to commands, publishes a snapshot of the registry and
// begins forwarding registry events and health.
func (b *Bridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		err = b.start(ctx)
	})
	return err
}

func (b *Bridge) start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.AllCommands()
	if err := b.client.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.wg.Add(1)
	go b.publishLoop()
	b.unsubscribe = b.reg.Subscribe(b.enqueue)

	b.PublishSnapshot()

	b.health.SetDeviceCount(len(b.reg.DeviceIDs()))
	b.health.Start(ctx)

	b.logInfo("bridge started", "devices", len(b.reg.DeviceIDs()))
	return nil
}

// Stop detaches from the registry, aborts in-flight commands and publishes
// a final "stopping" health status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// PublishSnapshot publishes the current state of every entity. It is run on
// start and should be run again after the broker connection is restored.
func (b *Bridge) PublishSnapshot() {
	for _, e := range b.reg.Entities() {
		state := e.State()
		b.publishState(b.topics.EntityState(state.MAC), NewEntityStateMessage(state))

		for _, s := range b.reg.Sensors(state.MAC) {
			b.publishState(b.topics.SensorState(s.MAC, string(s.Kind)), NewSensorStateMessage(state.DeviceID, s))
		}
	}
	for _, c := range b.reg.Covers() {
		snap := c.Snapshot()
		b.publishState(b.topics.CoverState(snap.MAC), NewCoverStateMessage(snap))
	}
	for _, m := range b.reg.Modes() {
		state := m.State()
		b.publishState(b.topics.RoomMode(state.RoomID), NewModeStateMessage(state))
	}
	b.health.SetDeviceCount(len(b.reg.DeviceIDs()))
}

// Stats returns the bridge's traffic counters.
func (b *Bridge) Stats() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		StatesPublished:  b.statesPublished.Load(),
		EventsDropped:    b.eventsDropped.Load(),
	}
}

// enqueue is the registry handler. Sensor events that changed nothing are
// skipped since the retained message already carries the value.
func (b *Bridge) enqueue(ev registry.Event) {
	if ev.Type == registry.EventSensor && !ev.Changed {
		return
	}

	select {
	case b.events <- ev:
	default:
		b.eventsDropped.Add(1)
		b.logWarn("event queue full, dropping event", "type", ev.Type, "device_id", ev.DeviceID)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case ev := <-b.events:
			b.publishEvent(ev)
		}
	}
}

func (b *Bridge) publishEvent(ev registry.Event) {
	switch ev.Type {
	case registry.EventSensor:
		if ev.Sensor != nil {
			b.publishState(b.topics.SensorState(ev.Sensor.MAC, string(ev.Sensor.Kind)),
				NewSensorStateMessage(ev.DeviceID, *ev.Sensor))
		}
	case registry.EventEntity:
		if ev.Entity != nil {
			b.publishState(b.topics.EntityState(ev.Entity.MAC), NewEntityStateMessage(*ev.Entity))
		}
	case registry.EventCover:
		if ev.Cover != nil {
			b.publishState(b.topics.CoverState(ev.Cover.MAC), NewCoverStateMessage(*ev.Cover))
		}
	case registry.EventMode:
		if ev.Mode != nil {
			b.publishState(b.topics.RoomMode(ev.Mode.RoomID), NewModeStateMessage(*ev.Mode))
		}
	default:
		b.logWarn("unknown registry event", "type", ev.Type)
	}
}

func (b *Bridge) publishState(topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.client.Publish(topic, payload, b.qos, true); err != nil {
		b.logError("failed to publish state", fmt.Errorf("%s: %w", topic, err))
		return
	}
	b.statesPublished.Add(1)
}

// handleMQTTMessage receives everything on gregor/command/+/+.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	target, rawID, ok := b.topics.ParseCommand(topic)
	if !ok {
		b.logWarn("ignoring message on unexpected topic", "topic", topic)
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.logWarn("ignoring command with non-numeric id", "topic", topic)
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.commandsReceived.Add(1)
		b.commandsFailed.Add(1)
		b.publishAck(NewAckError(cmd, target, id, ErrCodeInvalidCommand, "malformed command payload"))
		b.logError("failed to parse command", err)
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.handleCommand(target, id, cmd)
}

func (b *Bridge) handleCommand(target string, id int64, cmd CommandMessage) {
	b.commandsReceived.Add(1)
	b.logInfo("received command",
		"command_id", cmd.ID,
		"target", target,
		"target_id", id,
		"command", cmd.Command,
		"source", cmd.Source)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	state, err := b.executeCommand(ctx, target, id, cmd)
	if err != nil {
		b.commandsFailed.Add(1)
		code := errorCode(err)
		b.publishAck(NewAckError(cmd, target, id, code, err.Error()))
		b.logWarn("command failed", "command_id", cmd.ID, "code", code, "error", err)
		return
	}

	b.publishAck(NewAckMessage(cmd, target, id, state))
}

func (b *Bridge) executeCommand(ctx context.Context, target string, id int64, cmd CommandMessage) (string, error) {
	switch target {
	case mqtt.TargetDrive:
		switch cmd.Command {
		case CommandOpen:
			state, err := b.commander.Open(ctx, id)
			return string(state), err
		case CommandClose:
			state, err := b.commander.Close(ctx, id)
			return string(state), err
		}
	case mqtt.TargetRoom:
		if cmd.Command == CommandSetMode {
			mode, ok := cmd.StringParam("mode")
			if !ok {
				return "", fmt.Errorf("%w: set_mode requires a string \"mode\" parameter", cloud.ErrInvalidArgument)
			}
			return mode, b.commander.SetMode(ctx, id, mode)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	return "", fmt.Errorf("%w: %q for %s", ErrUnknownCommand, cmd.Command, target)
}

// errorCode maps a command error onto an ack error code.
func errorCode(err error) string {
	var apiErr *cloud.APIError
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, cloud.ErrInvalidArgument):
		return ErrCodeInvalidParameters
	case errors.Is(err, command.ErrUnknownDrive), errors.Is(err, ErrUnknownTarget), errors.Is(err, cloud.ErrNotFound):
		return ErrCodeUnknownTarget
	case errors.Is(err, command.ErrNoRoom):
		return ErrCodeNoRoom
	case errors.Is(err, cloud.ErrUnauthorized):
		return ErrCodeUpstreamUnauthorised
	case errors.As(err, &apiErr):
		return ErrCodeUpstreamError
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeBridgeError
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.client.Publish(b.topics.Ack(ack.Target, ack.TargetID), payload, b.qos, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
