package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownDeviceKind) {
//	    // handle unsupported hardware
//	}
var (
	// ErrUnknownDeviceKind is returned when a record's type is missing or is
	// neither Station nor Drive.
	ErrUnknownDeviceKind = errors.New("device: unknown device kind")

	// ErrUnknownSlot is returned when setting a measurement the device kind does not define.
	ErrUnknownSlot = errors.New("device: unknown slot")

	// ErrInvalidDevice is returned when a record lacks its id or mac.
	ErrInvalidDevice = errors.New("device: invalid record")

	// ErrInvalidMAC is returned when a MAC address cannot be parsed.
	ErrInvalidMAC = errors.New("device: invalid mac address")
)
