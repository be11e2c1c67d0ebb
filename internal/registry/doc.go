// Package registry holds the long-lived state the bridge exposes: one Sensor
// per (device MAC, measurement), one Entity per device, one Cover per drive
// and one ModeSelect per room.
//
// Devices from the cloud are transient. The poll cycle reads each fetched
// device and pushes its values in here through ApplyValue, UpdateEntity and
// Cover.ApplyPosition. Consumers (MQTT bridge, local API, telemetry) read
// snapshots or Subscribe to change events.
//
// # Keys
//
// Sensors are keyed by Key{MAC, Kind} with the MAC in normalized form.
// Lookups accept any MAC spelling device.NormalizeMAC understands.
//
// # Availability
//
//	ApplyValue(mac, kind, nil)    sensor unavailable; value kept or cleared per StalePolicy
//	ApplyValue(mac, kind, v)      sensor available, value v
//	unregistered (mac, kind)      no-op, nothing created
//
// # Cover States
//
//	Open()              open if position is 100, else opening
//	Close()             closed if position is 0 or unknown, else closing
//	ApplyPosition(p)    closed if p is 0 or unknown, else open
//	IsClosed()          position == 0, ignoring predictions
//
// Thread Safety: the registry and every object it hands out are safe for
// concurrent use.
package registry
