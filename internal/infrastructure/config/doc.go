// Package config loads the bridge configuration.
//
// Values are resolved in three layers: built-in defaults, then the YAML
// file, then GREGOR_* environment variables. The result is validated as a
// whole and every problem is reported in one error.
//
// Credentials (the cloud token or password, MQTT and InfluxDB secrets and
// the local API signing key) are meant to arrive through the environment so
// the file can be committed:
//
//	GREGOR_CLOUD_USERNAME=me@example.com GREGOR_CLOUD_PASSWORD=... \
//	GREGOR_CONFIG=/etc/gregor/config.yaml gregorbridge
package config
