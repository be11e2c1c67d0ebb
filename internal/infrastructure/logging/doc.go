// Package logging builds the bridge's structured logger on log/slog.
//
// Every record carries the service name and build version. Level, format
// (json or text) and destination (stdout or stderr) come from the logging
// section of the config file:
//
//	logging:
//	  level: info
//	  format: json
//	  output: stdout
//
// The *Logger satisfies the small Logger interfaces declared by the cloud,
// registry, poll, command, scheduler, bridge and mqtt packages, so one value
// is passed everywhere:
//
//	log := logging.New(cfg.Logging, version)
//	reg := registry.New(client, registry.Options{Logger: log})
//
// Attributes named token, access_token, password, secret or authorization
// are printed as "[REDACTED]" whatever their value.
package logging
