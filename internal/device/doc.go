// Package device provides the canonical model for MyGregor hardware and the
// normalizer that builds it from raw cloud API records.
//
// A Device is transient: one is built for every device record the cloud
// returns, read by the update cycle and then discarded. Long-lived state
// (sensor values, availability, cover position) lives in the registry
// package, never here.
//
// # Slots
//
// Every Device kind has a fixed set of named measurement slots. A slot is in
// exactly one of three states:
//
//	unset   the payload did not mention the measurement at all
//	null    the payload carried the key with an explicit null
//	set     the payload carried a value
//
// Unset and null are deliberately distinct. The update cycle skips unset
// slots entirely but treats null as "sensor unavailable".
//
// # Kinds
//
//	Station  co2, temperature, humidity, noise, luminosity, radiation,
//	         rssi, hw_version, sw_version, state
//	Drive    noise, voltage, battery_level, rssi, hw_version, sw_version,
//	         state, position
//
// # Usage
//
//	d, err := device.Normalize(record)
//	if errors.Is(err, device.ErrUnknownDeviceKind) {
//	    // skip hardware this bridge does not understand
//	}
//	if d.Online() {
//	    v, _ := d.Value(device.Temperature)
//	}
package device
