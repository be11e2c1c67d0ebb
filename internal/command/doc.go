// Package command dispatches user intents to the cloud.
//
//	Open(drive)          PUT /v2/rooms/{room} {"state":"open"}, cover predicted
//	Close(drive)         PUT /v2/rooms/{room} {"state":"close"}, cover predicted
//	SetMode(room, mode)  PUT /v2/rooms/{room} {"state":mode}, mode select updated
//
// On failure the error is returned and no local state changes. A drive's
// room is cached for a configurable TTL.
package command
