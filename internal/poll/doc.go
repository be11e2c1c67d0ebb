// Package poll implements the refresh cycle that moves fresh cloud data into
// the registry.
//
// For one device the cycle is:
//
//  1. GET /v2/devices/{id}?include=device_data,room_data
//  2. online: entity available, ApplyValue for every observed sensor slot
//  3. offline: entity unavailable, ApplyValue(nil) for every sensor kind
//  4. drives: cover state recomputed from the polled position
//
// Offline handling is driven by the device's reported state, never by
// request failures. A failed fetch returns an error and leaves the registry
// untouched.
package poll
