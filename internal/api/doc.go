// Package api implements the bridge's local HTTP API and WebSocket event
// stream.
//
// It exposes the registry (devices, sensors, covers) and the command path
// (drive open/close, room modes, forced refresh) to a home-automation host
// on the LAN. Every route except /api/v1/health requires a bearer token
// minted by package auth; commands additionally need the operator role.
//
// # Error mapping
//
// Errors from the cloud and the command layer map onto HTTP statuses:
//
//	cloud.ErrInvalidArgument       400 bad_request
//	cloud.ErrNotFound, unknown id  404 not_found
//	command.ErrNoRoom              409 no_room
//	scheduler.ErrUpdateInFlight    409 conflict
//	scheduler.ErrStopped           503 unavailable
//	cloud.ErrUnauthorized          502 upstream_unauthorised
//	*cloud.APIError                502 upstream_error
//	context deadline               504 upstream_timeout
//
// # Event stream
//
// GET /api/v1/ws upgrades to a WebSocket. Browsers, which cannot set an
// Authorization header on the upgrade, first POST /api/v1/auth/ws-ticket
// and connect with ?ticket=. Clients subscribe to channels named after
// registry event types ("sensor.changed", "cover.changed" and so on) and
// receive each change as it is applied.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
