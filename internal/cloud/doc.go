// Package cloud is a thin client for the MyGregor cloud REST API.
//
// The client owns a bearer token and nothing else. It does not cache, retry
// or refresh tokens; every method maps to exactly one HTTP request (two for
// FindDeviceByMAC, which lists devices first).
//
// # Error Mapping
//
//	no token set         ErrUnauthorized, no request sent
//	400 on /v2/auth      ErrUnauthorized
//	401                  ErrUnauthorized
//	404                  ErrNotFound
//	other non-2xx        *APIError (errors.Is(err, ErrAPI) is true)
//	bad room state       ErrInvalidArgument, no request sent
//
// Failure messages come from the server's "message" field when present and
// fall back to "Error <status> executing <METHOD> <path>".
//
// # Usage
//
//	c := cloud.NewClient(cloud.Options{Timeout: 10 * time.Second})
//	if _, err := c.Authenticate(ctx, user, pass); err != nil {
//	    return err
//	}
//	devices, err := c.FetchDevices(ctx, true, true)
package cloud
