package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// SensorMeasurement is the InfluxDB measurement every reading is written to.
const SensorMeasurement = "sensor_readings"

// Tag keys on SensorMeasurement points.
const (
	TagMAC        = "mac"
	TagKind       = "kind"
	TagDeviceKind = "device_kind"
)

// SensorReading is one numeric sample.
type SensorReading struct {
	MAC        string
	Kind       string
	DeviceKind string
	Value      float64
	Time       time.Time
}

// Point converts r to a line-protocol point. A zero Time becomes now.
func (r SensorReading) Point() *write.Point {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		SensorMeasurement,
		map[string]string{
			TagMAC:        r.MAC,
			TagKind:       r.Kind,
			TagDeviceKind: r.DeviceKind,
		},
		map[string]interface{}{
			"value": r.Value,
		},
		ts,
	)
}

// WriteSensorReading queues r for the next batch. Dropped silently once
// the client is closed.
func (c *Client) WriteSensorReading(r SensorReading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(r.Point())
}

// HandleEvent is a registry.Handler that exports every available numeric
// sensor value. Non-numeric values and events of other types are ignored.
func (c *Client) HandleEvent(ev registry.Event) {
	r, ok := ReadingFromEvent(ev)
	if !ok {
		return
	}
	c.WriteSensorReading(r)
}

// ReadingFromEvent extracts a reading from a sensor event carrying a
// numeric value.
func ReadingFromEvent(ev registry.Event) (SensorReading, bool) {
	if ev.Type != registry.EventSensor || ev.Sensor == nil {
		return SensorReading{}, false
	}
	s := ev.Sensor
	if !s.Available || !s.HasValue {
		return SensorReading{}, false
	}
	v, ok := toFloat(s.Value)
	if !ok {
		return SensorReading{}, false
	}

	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = ev.Time
	}
	return SensorReading{
		MAC:        s.MAC,
		Kind:       string(s.Kind),
		DeviceKind: ev.DeviceKind,
		Value:      v,
		Time:       ts,
	}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
