package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nerrad567/gregor-bridge/internal/cloud"
	"github.com/nerrad567/gregor-bridge/internal/device"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// DefaultRoomCacheTTL bounds how long a resolved drive room is trusted.
const DefaultRoomCacheTTL = 5 * time.Minute

// RoomController is the subset of the cloud client the dispatcher needs.
type RoomController interface {
	SetRoomState(ctx context.Context, id int64, state string) (map[string]any, error)
	FetchDevice(ctx context.Context, id int64, includeSensorData, includeRoomData bool) (*device.Device, error)
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher turns open, close and mode intents into room state changes.
//
// Drives are actuated through their room: opening a drive sets its room to
// "open". Local state (cover prediction, room mode) is only touched after
// the cloud accepted the change and stays a prediction until the next poll.
type Dispatcher struct {
	client RoomController
	reg    *registry.Registry
	rooms  *cache.Cache
	logger Logger
}

// New creates a Dispatcher. roomTTL bounds the drive to room cache;
// zero selects DefaultRoomCacheTTL.
func New(client RoomController, reg *registry.Registry, roomTTL time.Duration) *Dispatcher {
	if roomTTL <= 0 {
		roomTTL = DefaultRoomCacheTTL
	}
	return &Dispatcher{
		client: client,
		reg:    reg,
		rooms:  cache.New(roomTTL, 2*roomTTL),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Open asks the cloud to open the drive's room and predicts the cover state.
func (d *Dispatcher) Open(ctx context.Context, deviceID int64) (registry.CoverState, error) {
	return d.actuate(ctx, deviceID, cloud.RoomStateOpen)
}

// Close asks the cloud to close the drive's room and predicts the cover state.
func (d *Dispatcher) Close(ctx context.Context, deviceID int64) (registry.CoverState, error) {
	return d.actuate(ctx, deviceID, cloud.RoomStateClose)
}

func (d *Dispatcher) actuate(ctx context.Context, deviceID int64, state string) (registry.CoverState, error) {
	cover, ok := d.reg.CoverByID(deviceID)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownDrive, deviceID)
	}

	roomID, err := d.RoomOf(ctx, deviceID)
	if err != nil {
		return "", err
	}

	if _, err := d.client.SetRoomState(ctx, roomID, state); err != nil {
		return "", fmt.Errorf("drive %d %s: %w", deviceID, state, err)
	}

	var predicted registry.CoverState
	if state == cloud.RoomStateOpen {
		predicted = cover.Open()
	} else {
		predicted = cover.Close()
	}
	d.selectMode(roomID, state)

	d.logger.Info("drive command sent",
		"device_id", deviceID,
		"room_id", roomID,
		"command", state,
		"predicted", predicted,
	)
	return predicted, nil
}

// SetMode switches a room to one of cloud.RoomStates.
// An unknown mode fails with cloud.ErrInvalidArgument before any request.
func (d *Dispatcher) SetMode(ctx context.Context, roomID int64, mode string) error {
	if !cloud.ValidRoomState(mode) {
		return fmt.Errorf("%w: room mode %q", cloud.ErrInvalidArgument, mode)
	}

	if _, err := d.client.SetRoomState(ctx, roomID, mode); err != nil {
		return fmt.Errorf("room %d mode %s: %w", roomID, mode, err)
	}

	d.selectMode(roomID, mode)
	d.logger.Info("room mode set", "room_id", roomID, "mode", mode)
	return nil
}

// RoomOf resolves the room a drive belongs to: cache first, then the
// registry's cover, then a device fetch with room data.
func (d *Dispatcher) RoomOf(ctx context.Context, deviceID int64) (int64, error) {
	key := strconv.FormatInt(deviceID, 10)
	if v, ok := d.rooms.Get(key); ok {
		return v.(int64), nil
	}

	cover, ok := d.reg.CoverByID(deviceID)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownDrive, deviceID)
	}

	if roomID, ok := cover.RoomID(); ok {
		d.rooms.SetDefault(key, roomID)
		return roomID, nil
	}

	dev, err := d.client.FetchDevice(ctx, deviceID, false, true)
	if err != nil {
		return 0, fmt.Errorf("resolving room of drive %d: %w", deviceID, err)
	}
	if dev.Kind != device.KindDrive {
		return 0, fmt.Errorf("%w: device %d is a %s", ErrUnknownDrive, deviceID, dev.Kind)
	}
	if dev.RoomID == nil {
		return 0, fmt.Errorf("%w: %d", ErrNoRoom, deviceID)
	}

	d.rooms.SetDefault(key, *dev.RoomID)
	d.logger.Debug("drive room resolved", "device_id", deviceID, "room_id", *dev.RoomID)
	return *dev.RoomID, nil
}

// ForgetRoom drops a cached drive to room mapping.
func (d *Dispatcher) ForgetRoom(deviceID int64) {
	d.rooms.Delete(strconv.FormatInt(deviceID, 10))
}

func (d *Dispatcher) selectMode(roomID int64, mode string) {
	if err := d.reg.EnsureMode(roomID, "").Select(mode); err != nil {
		d.logger.Warn("room mode not recorded", "room_id", roomID, "mode", mode, "error", err)
	}
}
