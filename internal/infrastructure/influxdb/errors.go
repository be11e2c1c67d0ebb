package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrNotConnected indicates the client was closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrUnhealthy indicates a health check ping failed.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrDisabled indicates telemetry export is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
