package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/gregor-bridge/internal/device"
)

// Room states accepted by SetRoomState.
const (
	RoomStateAuto   = "auto"
	RoomStateOpen   = "open"
	RoomStateClose  = "close"
	RoomStateAiring = "airing"
	RoomStateRelax  = "relax"
)

// RoomStates lists every accepted room state in display order.
var RoomStates = []string{RoomStateOpen, RoomStateClose, RoomStateAuto, RoomStateAiring, RoomStateRelax}

// ValidRoomState reports whether s is an accepted room state.
func ValidRoomState(s string) bool {
	return slices.Contains(RoomStates, s)
}

// Room is an entry of the room list.
type Room struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
	Image string `json:"image,omitempty"`
}

// FetchAccount returns the authenticated account record.
func (c *Client) FetchAccount(ctx context.Context) (map[string]any, error) {
	var account map[string]any
	if err := c.do(ctx, http.MethodGet, "/v2/accounts/me", nil, &account); err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return account, nil
}

// ValidateToken checks the stored token against the account endpoint.
func (c *Client) ValidateToken(ctx context.Context) error {
	_, err := c.FetchAccount(ctx)
	return err
}

// FetchDevices lists every device on the account.
//
// Records of an unknown kind are logged and skipped so one unsupported unit
// does not hide the rest; any other normalization failure is returned.
func (c *Client) FetchDevices(ctx context.Context, includeSensorData, includeRoomData bool) ([]*device.Device, error) {
	path := "/v2/devices" + includeQuery(includeSensorData, includeRoomData)

	var resp struct {
		Devices []map[string]any `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}

	devices := make([]*device.Device, 0, len(resp.Devices))
	for _, raw := range resp.Devices {
		d, err := device.Normalize(raw)
		if errors.Is(err, device.ErrUnknownDeviceKind) {
			c.logger.Warn("skipping device of unknown kind", "type", raw["type"], "id", raw["id"])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("normalizing device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// FetchDevice fetches a single device by its numeric id.
func (c *Client) FetchDevice(ctx context.Context, id int64, includeSensorData, includeRoomData bool) (*device.Device, error) {
	path := "/v2/devices/" + strconv.FormatInt(id, 10) + includeQuery(includeSensorData, includeRoomData)

	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching device %d: %w", id, err)
	}

	d, err := device.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("normalizing device %d: %w", id, err)
	}
	return d, nil
}

// FindDeviceByMAC looks a device up by MAC address across the account.
func (c *Client) FindDeviceByMAC(ctx context.Context, mac string) (*device.Device, error) {
	want, err := device.NormalizeMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	devices, err := c.FetchDevices(ctx, false, false)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.MAC == want {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device %s", ErrNotFound, want)
}

// FetchRooms lists the account's rooms.
func (c *Client) FetchRooms(ctx context.Context, includeImage bool) ([]Room, error) {
	path := "/v2.1/rooms"
	if includeImage {
		path += "?include=image"
	}

	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching rooms: %w", err)
	}
	return resp.Rooms, nil
}

// roomDetailIncludes is the include list requested by FetchRoom.
var roomDetailIncludes = []string{"image", "power_profile", "room_data", "devices", "device_data"}

// FetchRoom returns every detail the cloud holds on one room.
func (c *Client) FetchRoom(ctx context.Context, id int64) (map[string]any, error) {
	path := fmt.Sprintf("/v2/rooms/%d?include=%s", id, strings.Join(roomDetailIncludes, ","))

	var room map[string]any
	if err := c.do(ctx, http.MethodGet, path, nil, &room); err != nil {
		return nil, fmt.Errorf("fetching room %d: %w", id, err)
	}
	return room, nil
}

// SetRoomState switches a room to one of the RoomStates.
// An unknown state fails with ErrInvalidArgument without touching the network.
func (c *Client) SetRoomState(ctx context.Context, id int64, state string) (map[string]any, error) {
	if !ValidRoomState(state) {
		return nil, fmt.Errorf("%w: room state %q not one of %s", ErrInvalidArgument, state, strings.Join(RoomStates, ", "))
	}

	var resp map[string]any
	path := "/v2/rooms/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPut, path, map[string]string{"state": state}, &resp); err != nil {
		return nil, fmt.Errorf("setting room %d state %s: %w", id, state, err)
	}

	c.logger.Info("room state set", "room_id", id, "state", state)
	return resp, nil
}

// includeQuery builds the ?include= list for device endpoints.
func includeQuery(sensorData, roomData bool) string {
	var parts []string
	if sensorData {
		parts = append(parts, "device_data")
	}
	if roomData {
		parts = append(parts, "room_data")
	}
	if len(parts) == 0 {
		return ""
	}
	return "?include=" + strings.Join(parts, ",")
}
