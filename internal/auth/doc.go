// Package auth issues and verifies the bearer tokens that guard the local
// API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. There is no user
// store: an operator mints tokens with `gregorbridge token` and hands them
// to the home-automation host. Two roles exist. A viewer may read devices
// and sensors and follow the event stream; an operator may additionally
// move drives, change room modes and force refreshes.
package auth
