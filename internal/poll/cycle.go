package poll

import (
	"context"
	"fmt"

	"github.com/nerrad567/gregor-bridge/internal/device"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// Fetcher is the subset of the cloud client the cycle needs.
type Fetcher interface {
	FetchDevice(ctx context.Context, id int64, includeSensorData, includeRoomData bool) (*device.Device, error)
	FetchDevices(ctx context.Context, includeSensorData, includeRoomData bool) ([]*device.Device, error)
}

// Logger defines the logging interface used by the Cycle.
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

// Cycle refreshes registry state from the cloud.
//
// Update is sequential and synchronous for one device. The cycle does no
// locking of its own beyond the registry's; callers must not run two updates
// for the same device at once.
type Cycle struct {
	client Fetcher
	reg    *registry.Registry
	logger Logger
}

// New creates a Cycle that reads from client and writes into reg.
func New(client Fetcher, reg *registry.Registry) *Cycle {
	return &Cycle{
		client: client,
		reg:    reg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the cycle.
func (c *Cycle) SetLogger(logger Logger) {
	c.logger = logger
}

// Update fetches one device with sensor and room data and applies it.
// Fetch errors are returned unchanged in kind; nothing is retried.
func (c *Cycle) Update(ctx context.Context, deviceID int64) error {
	d, err := c.client.FetchDevice(ctx, deviceID, true, true)
	if err != nil {
		return fmt.Errorf("updating device %d: %w", deviceID, err)
	}
	c.Apply(d)
	return nil
}

// UpdateAll fetches every device in one request and applies those the
// registry knows. It returns the number of devices applied.
func (c *Cycle) UpdateAll(ctx context.Context) (int, error) {
	return c.UpdateSelected(ctx, nil)
}

// UpdateSelected is UpdateAll restricted to the device ids include accepts.
// A nil include accepts every device.
func (c *Cycle) UpdateSelected(ctx context.Context, include func(deviceID int64) bool) (int, error) {
	devices, err := c.client.FetchDevices(ctx, true, true)
	if err != nil {
		return 0, fmt.Errorf("updating all devices: %w", err)
	}

	applied := 0
	for _, d := range devices {
		if include != nil && !include(d.ID) {
			continue
		}
		if _, ok := c.reg.Entity(d.MAC); !ok {
			c.logger.Debug("skipping unprovisioned device", "id", d.ID, "mac", d.MAC)
			continue
		}
		c.Apply(d)
		applied++
	}
	return applied, nil
}

// Apply pushes one fetched device into the registry.
//
// Online devices mark their entity available and update every sensor whose
// slot the payload mentioned; an explicit null makes that sensor
// unavailable and absent slots are left alone. Offline devices mark the
// entity and every sensor unavailable. Drive covers follow the polled
// position whatever the status.
func (c *Cycle) Apply(d *device.Device) {
	online := d.Online()

	known := c.reg.UpdateEntity(d.MAC, registry.EntityUpdate{
		Status:     d.State(),
		Available:  online,
		Attributes: attributes(d),
		RoomID:     d.RoomID,
		RoomName:   d.RoomName,
	})
	if !known {
		c.logger.Warn("polled device is not provisioned", "id", d.ID, "mac", d.MAC)
		return
	}

	applied := 0
	for _, kind := range device.SensorKinds(d.Kind) {
		if !online {
			c.reg.ApplyValue(d.MAC, kind, nil)
			continue
		}
		v, observed := d.Value(kind)
		if !observed {
			continue
		}
		if c.reg.ApplyValue(d.MAC, kind, v) {
			applied++
		}
	}

	if d.Kind == device.KindDrive {
		if cover, ok := c.reg.Cover(d.MAC); ok {
			cover.ApplyPosition(d.Position())
		}
	}

	c.logger.Debug("device updated",
		"id", d.ID,
		"mac", d.MAC,
		"state", d.State(),
		"values", applied,
	)
}

// attributes collects the entity attributes the payload mentioned.
func attributes(d *device.Device) map[string]any {
	attrs := make(map[string]any, 3)
	if v, ok := d.Value(device.HardwareVersion); ok && v != nil {
		attrs[registry.AttrHardwareVersion] = v
	}
	if v, ok := d.Value(device.SoftwareVersion); ok && v != nil {
		attrs[registry.AttrSoftwareVersion] = v
	}
	if v, ok := d.Value(device.RSSI); ok && v != nil {
		attrs[registry.AttrRSSI] = v
	}
	return attrs
}
