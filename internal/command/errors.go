package command

import "errors"

// Domain errors for the command package.
var (
	// ErrUnknownDrive is returned when the device id is not a provisioned drive.
	ErrUnknownDrive = errors.New("command: unknown drive")

	// ErrNoRoom is returned when a drive is not assigned to any room.
	ErrNoRoom = errors.New("command: drive has no room")
)
